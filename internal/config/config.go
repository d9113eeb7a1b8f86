// Package config loads and validates the orchestration engine's YAML
// configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Tools     ToolsConfig     `yaml:"tools"`
	Policy    PolicyConfig    `yaml:"policy"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures process-level listeners.
type ServerConfig struct {
	MetricsPort int `yaml:"metrics_port"`
}

// LLMConfig configures the provider router.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures a single registered provider.
type LLMProviderConfig struct {
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	MaxOutputTokens  int    `yaml:"max_output_tokens"`
}

// SessionConfig configures the session event log and context packer.
type SessionConfig struct {
	DatabasePath     string        `yaml:"database_path"`
	ContextBudget    int           `yaml:"context_budget"`
	ReserveForOutput int           `yaml:"reserve_for_output"`
	MaxTurns         int           `yaml:"max_turns"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
}

// ArtifactsConfig configures the content-addressed artifact store.
type ArtifactsConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// ToolsConfig configures the tool registry's risk gating defaults.
type ToolsConfig struct {
	// MaxRisk is the highest risk tier the policy engine allows to run
	// ("read_only", "write", "destructive", "shell"); the tool list sent
	// to the LLM is not filtered by it.
	MaxRisk string `yaml:"max_risk"`
}

// PolicyConfig configures the policy engine and its audit log.
type PolicyConfig struct {
	BlockedPatterns  []string `yaml:"blocked_patterns"`
	RedactedFields   []string `yaml:"redacted_fields"`
	AuditLogPath     string   `yaml:"audit_log_path"`
	AuditMaxBackups  int      `yaml:"audit_max_backups"`
	RequireConfirmAt string   `yaml:"require_confirm_at"`
}

// LoggingConfig configures the process-wide structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File, if set, directs logs to a rotating file instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads, env-expands, and decodes the YAML file at path, then applies
// environment overrides, defaults, and validation in that order.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Session.DatabasePath == "" {
		cfg.Session.DatabasePath = "sessions.db"
	}
	if cfg.Session.ContextBudget == 0 {
		cfg.Session.ContextBudget = 100_000
	}
	if cfg.Session.ReserveForOutput == 0 {
		cfg.Session.ReserveForOutput = 4_096
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = 10
	}
	if cfg.Session.ToolTimeout == 0 {
		cfg.Session.ToolTimeout = 30 * time.Second
	}
	if cfg.Artifacts.BaseDir == "" {
		cfg.Artifacts.BaseDir = "artifacts"
	}
	if cfg.Tools.MaxRisk == "" {
		cfg.Tools.MaxRisk = "shell"
	}
	if cfg.Policy.AuditLogPath == "" {
		cfg.Policy.AuditLogPath = "audit.log"
	}
	if cfg.Policy.AuditMaxBackups == 0 {
		cfg.Policy.AuditMaxBackups = 5
	}
	if cfg.Policy.RequireConfirmAt == "" {
		cfg.Policy.RequireConfirmAt = "destructive"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB == 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups == 0 {
			cfg.Logging.MaxBackups = 5
		}
		if cfg.Logging.MaxAgeDays == 0 {
			cfg.Logging.MaxAgeDays = 28
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("NEXUSENGINE_METRICS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSENGINE_DEFAULT_PROVIDER")); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSENGINE_SESSION_DB")); v != "" {
		cfg.Session.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("NEXUSENGINE_AUDIT_LOG")); v != "" {
		cfg.Policy.AuditLogPath = v
	}
}

// ValidationError aggregates every config issue found at once, rather than
// failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}
	for name, p := range cfg.LLM.Providers {
		if strings.TrimSpace(p.Model) == "" {
			issues = append(issues, fmt.Sprintf("llm.providers[%s].model is required", name))
		}
	}

	if cfg.Session.ContextBudget <= 0 {
		issues = append(issues, "session.context_budget must be > 0")
	}
	if cfg.Session.ReserveForOutput < 0 {
		issues = append(issues, "session.reserve_for_output must be >= 0")
	}
	if cfg.Session.ReserveForOutput >= cfg.Session.ContextBudget {
		issues = append(issues, "session.reserve_for_output must be less than session.context_budget")
	}
	if cfg.Session.MaxTurns <= 0 {
		issues = append(issues, "session.max_turns must be > 0")
	}
	if cfg.Session.ToolTimeout <= 0 {
		issues = append(issues, "session.tool_timeout must be > 0")
	}

	if !validRiskTier(cfg.Tools.MaxRisk) {
		issues = append(issues, `tools.max_risk must be "read_only", "write", "destructive", or "shell"`)
	}
	if !validRiskTier(cfg.Policy.RequireConfirmAt) {
		issues = append(issues, `policy.require_confirm_at must be "read_only", "write", "destructive", or "shell"`)
	}
	if cfg.Policy.AuditMaxBackups < 0 {
		issues = append(issues, "policy.audit_max_backups must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, `logging.level must be "debug", "info", "warn", or "error"`)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "text":
	default:
		issues = append(issues, `logging.format must be "json" or "text"`)
	}

	for _, pattern := range cfg.Policy.BlockedPatterns {
		if strings.TrimSpace(pattern) == "" {
			issues = append(issues, "policy.blocked_patterns entries must not be blank")
			break
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validRiskTier(tier string) bool {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "read_only", "write", "destructive", "shell":
		return true
	default:
		return false
	}
}
