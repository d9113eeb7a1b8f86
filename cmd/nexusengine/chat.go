package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nexusengine/core/internal/artifacts"
	"github.com/nexusengine/core/internal/backend"
	"github.com/nexusengine/core/internal/config"
	pctx "github.com/nexusengine/core/internal/context"
	"github.com/nexusengine/core/internal/metrics"
	"github.com/nexusengine/core/internal/orchestrator"
	"github.com/nexusengine/core/internal/policy"
	"github.com/nexusengine/core/internal/providers"
	"github.com/nexusengine/core/internal/sessions"
	"github.com/nexusengine/core/internal/tokencount"
	"github.com/nexusengine/core/internal/tools"
	"github.com/nexusengine/core/internal/tools/bridge"
	"github.com/nexusengine/core/pkg/models"
)

// buildChatCmd creates the "chat" command that runs an interactive
// terminal session against the configured provider.
func buildChatCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive orchestrated chat session",
		Long: `Start an interactive terminal session. Each line you type becomes one
user turn; the orchestrator streams the assistant's response, dispatching
any tool calls sequentially through the registry, validator, and policy
engine before returning.

Press Ctrl+D to end the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), resolveConfigPath(configPath), sessionID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&sessionID, "session", "", "Resume an existing session ID instead of starting a new one")
	return cmd
}

func runChat(ctx context.Context, configPath, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg.Logging)

	m := metrics.New()
	if cfg.Server.MetricsPort > 0 {
		go serveMetrics(cfg.Server.MetricsPort)
	}

	store, err := sessions.Open(ctx, cfg.Session.DatabasePath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	counter := tokencount.New()
	packer := pctx.New(counter)

	var sess *sessions.Session
	if sessionID != "" {
		sess, err = sessions.Resume(ctx, store, packer, sessionID)
	} else {
		sess, err = sessions.Start(ctx, store, packer, nil)
	}
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	artifactStore, err := artifacts.New(cfg.Artifacts.BaseDir, slog.Default())
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	registry := tools.NewRegistry()
	localBackend := backend.NewLocalBackend(".", 30*time.Second, []backend.DiagnosticInfo{
		{Name: "disk_usage", Description: "Reports free disk space for the target."},
	}, nil)
	for _, t := range []tools.Tool{
		bridge.ResolveTargetTool{Backend: localBackend},
		bridge.ListDiagnosticsTool{Backend: localBackend},
		bridge.RunDiagnosticTool{Backend: localBackend},
		bridge.RunShellTool{Backend: localBackend},
	} {
		if err := registry.Register(t, false); err != nil {
			return fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}
	validator := tools.NewValidator()

	maxRisk, err := parseRiskTier(cfg.Tools.MaxRisk)
	if err != nil {
		return err
	}
	requireConfirmAt, err := parseRiskTier(cfg.Policy.RequireConfirmAt)
	if err != nil {
		return err
	}

	pol, err := policy.NewEngine(policy.Config{
		MaxRisk:            maxRisk,
		ConfirmWrite:       requireConfirmAt <= models.RiskWrite,
		ConfirmDestructive: requireConfirmAt <= models.RiskDestructive,
		ConfirmShell:       requireConfirmAt <= models.RiskShell,
		BlockedPatterns:    cfg.Policy.BlockedPatterns,
		RedactionPatterns:  cfg.Policy.RedactedFields,
		AuditLogPath:       cfg.Policy.AuditLogPath,
		KeepFiles:          cfg.Policy.AuditMaxBackups,
	})
	if err != nil {
		return fmt.Errorf("open policy engine: %w", err)
	}
	defer pol.Close()

	router := providers.NewRouter()
	for name, pc := range cfg.LLM.Providers {
		switch strings.ToLower(name) {
		case "anthropic":
			router.Register(providers.NewAnthropicProvider(pc.APIKey, pc.Model, pc.MaxContextTokens, pc.MaxOutputTokens))
		case "openai":
			router.Register(providers.NewOpenAIProvider(pc.APIKey, pc.Model, pc.MaxContextTokens, pc.MaxOutputTokens))
		}
	}
	if err := router.SetActive(cfg.LLM.DefaultProvider); err != nil {
		return fmt.Errorf("set active provider: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	orch := orchestrator.New(sess, registry, validator, router, pol, artifactStore, orchestrator.Config{
		SystemPrompt: "You are a terse, capable assistant with access to diagnostic and shell tools.",
		ToolTimeout:  cfg.Session.ToolTimeout,
		MaxTurns:     cfg.Session.MaxTurns,
		Confirm:      confirmFromStdin(reader, m),
	})

	m.ActiveSessions.Inc()
	defer m.ActiveSessions.Dec()

	fmt.Printf("session %s (provider: %s). Ctrl+D to exit.\n", sess.ID(), router.Active())
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		chunks, err := orch.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		for chunk := range chunks {
			fmt.Print(chunk.Content)
		}
		fmt.Println()
		m.RecordTurn("completed")
	}
}

func confirmFromStdin(reader *bufio.Reader, m *metrics.Metrics) orchestrator.ConfirmFunc {
	return func(ctx context.Context, toolName string, call models.ToolCall) bool {
		fmt.Printf("confirm %s(%v)? [y/N] ", toolName, call.Arguments)
		line, err := reader.ReadString('\n')
		approved := err == nil && strings.EqualFold(strings.TrimSpace(line), "y")
		m.RecordConfirmation(approved)
		return approved
	}
}

func parseRiskTier(tier string) (models.RiskLevel, error) {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "read_only":
		return models.RiskReadOnly, nil
	case "write":
		return models.RiskWrite, nil
	case "destructive":
		return models.RiskDestructive, nil
	case "shell", "":
		return models.RiskShell, nil
	default:
		return 0, fmt.Errorf("unknown risk tier %q", tier)
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}
