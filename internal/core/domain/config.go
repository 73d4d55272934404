package domain

import "time"

// Backend and reasoning modes.
const (
	BackendFixture = "fixture"
	BackendLive    = "live"

	ReasoningNone   = "none"
	ReasoningLocal  = "local"
	ReasoningRemote = "remote"
)

// ServerConfig configures the transport shim.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr" validate:"required"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// BackendConfig selects and configures the execution backend.
type BackendConfig struct {
	Mode           string        `json:"mode" yaml:"mode" validate:"required,oneof=fixture live"`
	APIHost        string        `json:"api_host" yaml:"api_host" validate:"required_if=Mode live"`
	APIKey         string        `json:"api_key" yaml:"api_key" validate:"required_if=Mode live"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" validate:"gte=0"`
	FixtureLatency time.Duration `json:"fixture_latency" yaml:"fixture_latency" validate:"gt=0"`
	RequesterID    string        `json:"requester_id" yaml:"requester_id"`
}

// ReasoningConfig configures the optional LLM-backed strategy.
type ReasoningConfig struct {
	Mode          string `json:"mode" yaml:"mode" validate:"required,oneof=none local remote"`
	LocalURL      string `json:"local_url" yaml:"local_url" validate:"omitempty,url"`
	RemoteURL     string `json:"remote_url" yaml:"remote_url" validate:"required_if=Mode remote"`
	APIKey        string `json:"api_key" yaml:"api_key" validate:"required_if=Mode remote"`
	Model         string `json:"model" yaml:"model"` // empty selects the provider's default model
	MaxIterations int    `json:"max_iterations" yaml:"max_iterations" validate:"gte=1,lte=25"`
}

// DispatcherConfig holds the breaker threshold and the reasoning context size.
type DispatcherConfig struct {
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold" validate:"gte=1"`
	ContextWindow    int `json:"context_window" yaml:"context_window" validate:"gte=0"`
}

// StorageConfig configures history persistence. An empty path keeps history in memory only.
type StorageConfig struct {
	DuckDBPath string `json:"duckdb_path" yaml:"duckdb_path"`
}

// ScopeConfig is the static allow-list of monitored resources.
type ScopeConfig struct {
	TeamID   string    `json:"team_id" yaml:"team_id" validate:"required"`
	TeamName string    `json:"team_name" yaml:"team_name" validate:"required"`
	Services []Service `json:"services" yaml:"services" validate:"required,min=1,dive"`
}

// AllowsService reports whether id is on the allow-list.
func (s ScopeConfig) AllowsService(id string) bool {
	for _, svc := range s.Services {
		if svc.ID == id {
			return true
		}
	}
	return false
}

// ServiceIDs returns the allow-listed service ids in configuration order.
func (s ScopeConfig) ServiceIDs() []string {
	ids := make([]string, len(s.Services))
	for i, svc := range s.Services {
		ids[i] = svc.ID
	}
	return ids
}

// AppConfig is the main application configuration
type AppConfig struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Backend    BackendConfig    `json:"backend" yaml:"backend"`
	Reasoning  ReasoningConfig  `json:"reasoning" yaml:"reasoning"`
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Scope      ScopeConfig      `json:"scope" yaml:"scope"`
}

// DefaultConfig returns safe defaults: fixture backend, no reasoning strategy.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3001", "http://127.0.0.1:3001"},
		},
		Backend: BackendConfig{
			Mode:           BackendFixture,
			APIHost:        "https://api.pagerduty.com",
			RequestTimeout: 30 * time.Second,
			FixtureLatency: 100 * time.Millisecond,
		},
		Reasoning: ReasoningConfig{
			Mode:          ReasoningNone,
			LocalURL:      "http://localhost:11434",
			MaxIterations: 10,
		},
		Dispatcher: DispatcherConfig{
			FailureThreshold: 3,
			ContextWindow:    10,
		},
		Scope: ScopeConfig{
			TeamID:   "P80ZU3K",
			TeamName: "DPE Prod Ops",
			Services: []Service{
				{ID: "PFDU7FI", Name: "EdgeNode Modelling - Prod"},
				{ID: "PBD0TCK", Name: "EdgeNode DP&E Ingestion and controls - Prod"},
			},
		},
	}
}
