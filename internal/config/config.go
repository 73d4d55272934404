// Package config loads the application configuration from defaults, an
// optional YAML file and the environment, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/manthysbr/incidentdesk/internal/core/domain"
)

const defaultOpenAIBase = "https://api.openai.com/v1"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration. path may be empty.
func Load(path string) (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()
	// Modes are resolved after the environment is read so credentials
	// decide them when nothing explicit was configured.
	cfg.Backend.Mode = ""
	cfg.Reasoning.Mode = ""

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ollamaHinted := strings.TrimSpace(os.Getenv("OLLAMA_HOST")) != ""
	resolveModes(cfg, ollamaHinted)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *domain.AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *domain.AppConfig, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("INCIDENT_ADDR", &cfg.Server.Addr)
	if v, ok := lookup("INCIDENT_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	str("INCIDENT_BACKEND_MODE", &cfg.Backend.Mode)
	str("PAGERDUTY_USER_API_KEY", &cfg.Backend.APIKey)
	str("PAGERDUTY_API_HOST", &cfg.Backend.APIHost)
	str("INCIDENT_REQUESTER_ID", &cfg.Backend.RequesterID)
	duration("INCIDENT_REQUEST_TIMEOUT", &cfg.Backend.RequestTimeout)
	duration("INCIDENT_FIXTURE_LATENCY", &cfg.Backend.FixtureLatency)

	str("INCIDENT_REASONING_MODE", &cfg.Reasoning.Mode)
	str("OPENAI_API_KEY", &cfg.Reasoning.APIKey)
	str("OPENAI_API_BASE", &cfg.Reasoning.RemoteURL)
	str("OPENAI_MODEL", &cfg.Reasoning.Model)
	str("OLLAMA_HOST", &cfg.Reasoning.LocalURL)
	integer("INCIDENT_MAX_ITERATIONS", &cfg.Reasoning.MaxIterations)

	integer("INCIDENT_FAILURE_THRESHOLD", &cfg.Dispatcher.FailureThreshold)
	integer("INCIDENT_CONTEXT_WINDOW", &cfg.Dispatcher.ContextWindow)

	str("INCIDENT_DUCKDB_PATH", &cfg.Storage.DuckDBPath)
	str("INCIDENT_TEAM_ID", &cfg.Scope.TeamID)
	str("INCIDENT_TEAM_NAME", &cfg.Scope.TeamName)

	return errors.Join(errs...)
}

// resolveModes picks live/fixture and the reasoning mode from the available
// credentials when they were not set explicitly.
func resolveModes(cfg *domain.AppConfig, ollamaHinted bool) {
	cfg.Backend.Mode = strings.ToLower(cfg.Backend.Mode)
	if cfg.Backend.Mode == "" {
		if cfg.Backend.APIKey != "" {
			cfg.Backend.Mode = domain.BackendLive
		} else {
			cfg.Backend.Mode = domain.BackendFixture
		}
	}

	cfg.Reasoning.Mode = strings.ToLower(cfg.Reasoning.Mode)
	if cfg.Reasoning.Mode == "" {
		switch {
		case cfg.Reasoning.APIKey != "":
			cfg.Reasoning.Mode = domain.ReasoningRemote
		case ollamaHinted:
			cfg.Reasoning.Mode = domain.ReasoningLocal
		default:
			cfg.Reasoning.Mode = domain.ReasoningNone
		}
	}
	if cfg.Reasoning.Mode == domain.ReasoningRemote && cfg.Reasoning.RemoteURL == "" {
		cfg.Reasoning.RemoteURL = defaultOpenAIBase
	}
}

// Validate checks struct tags and returns every violation in one error.
func Validate(cfg *domain.AppConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Masked returns a copy safe to log or serve.
func Masked(cfg *domain.AppConfig) *domain.AppConfig {
	cp := *cfg
	cp.Backend.APIKey = MaskSecret(cfg.Backend.APIKey)
	cp.Reasoning.APIKey = MaskSecret(cfg.Reasoning.APIKey)
	return &cp
}

// MaskSecret returns a masked version safe for display: "****abcd"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
