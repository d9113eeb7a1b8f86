package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nexusengine.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  extra: true
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.ContextBudget != 100_000 {
		t.Fatalf("ContextBudget = %d, want 100000", cfg.Session.ContextBudget)
	}
	if cfg.Tools.MaxRisk != "shell" {
		t.Fatalf("MaxRisk = %q, want shell", cfg.Tools.MaxRisk)
	}
	if cfg.Policy.AuditLogPath != "audit.log" {
		t.Fatalf("AuditLogPath = %q, want audit.log", cfg.Policy.AuditLogPath)
	}
}

func TestLoadValidatesDefaultProviderMustExist(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic:
      model: claude-opus-4
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesProviderRequiresModel(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "model is required") {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestLoadValidatesReserveForOutputBelowBudget(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
session:
  context_budget: 1000
  reserve_for_output: 1000
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "reserve_for_output") {
		t.Fatalf("expected reserve_for_output error, got %v", err)
	}
}

func TestLoadValidatesMaxRiskTier(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
tools:
  max_risk: catastrophic
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "tools.max_risk") {
		t.Fatalf("expected tools.max_risk error, got %v", err)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-123")
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
      api_key: ${TEST_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test-123" {
		t.Fatalf("APIKey = %q, want sk-test-123", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      model: claude-opus-4
---
llm:
  default_provider: anthropic
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for multiple documents")
	}
}
