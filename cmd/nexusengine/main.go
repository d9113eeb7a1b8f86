// Package main provides the CLI entry point for nexusengine, a single-
// session LLM tool-calling orchestration engine.
//
// # Basic Usage
//
// Start an interactive chat session against a configured provider:
//
//	nexusengine chat --config nexusengine.yaml
//
// Check the configuration file for problems without starting anything:
//
//	nexusengine config check --config nexusengine.yaml
//
// # Environment Variables
//
//   - NEXUSENGINE_CONFIG: path to the configuration file (default: nexusengine.yaml)
//
// Provider API keys come from llm.providers.<name>.api_key in the
// configuration file; ${VAR} references there (for example
// ${ANTHROPIC_API_KEY}) are expanded from the environment.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nexusengine/core/internal/config"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main for testability.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "nexusengine",
		Short:   "nexusengine - single-session LLM tool-calling orchestration engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `nexusengine drives one conversation session through a bounded turn loop:
stream a provider's response, assemble any tool calls, validate and
policy-check them, execute sequentially, and record everything to an
append-only session event log.

Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}

// configureLogging switches the default logger to a rotating file sink
// when cfg.File is set, matching the ambient structured-logging setup
// every subcommand otherwise inherits from main's stderr default.
func configureLogging(cfg config.LoggingConfig) {
	var writer io.Writer = os.Stderr
	if cfg.File != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("NEXUSENGINE_CONFIG"); env != "" {
		return env
	}
	return "nexusengine.yaml"
}
