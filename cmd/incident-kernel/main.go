package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	appconfig "github.com/manthysbr/incidentdesk/internal/config"
	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/services"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "incident-kernel",
	Short: "Chat front door for incident management",
	Long: `incident-kernel turns free-text incident requests into operations against
an incident backend. Without a subcommand it starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show the command the rule-based classifier derives from text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := services.NewIntentClassifier(domain.BuiltinCatalog())
		if err != nil {
			return err
		}
		command := classifier.Classify(strings.Join(args, " "))
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(command)
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the operations the dispatcher can execute",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMUTATING\tREQUIRED\tDESCRIPTION")
		for _, op := range domain.BuiltinCatalog().List() {
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", op.Name, op.Mutating, strings.Join(op.Required, ","), op.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (environment variables override it)")
	rootCmd.AddCommand(serveCmd, classifyCmd, catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func loadConfig(logger *slog.Logger) (*domain.AppConfig, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded", "config", appconfig.Masked(cfg))
	return cfg, nil
}
