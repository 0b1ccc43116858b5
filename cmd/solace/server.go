package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/solace/internal/api"
	"github.com/kalambet/solace/internal/companion"
	"github.com/kalambet/solace/internal/composer"
	"github.com/kalambet/solace/internal/config"
	"github.com/kalambet/solace/internal/conversation"
	"github.com/kalambet/solace/internal/insights"
	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/llm"
	"github.com/kalambet/solace/internal/notify"
	"github.com/kalambet/solace/internal/retention"
	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the solace server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running solace server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show solace system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "solace.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// parseDurationOr parses a configured duration, logging and falling back to
// def when the value is malformed.
func parseDurationOr(value string, def time.Duration, name string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", name, "value", value, "default", def)
		return def
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "solace version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Pull secrets from the platform store. Generated on first run.
	kc := config.NewKeychain()
	apiToken, err := config.GetAPIToken(kc)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	encryptionKey, err := config.GetEncryptionKey(kc)
	if err != nil {
		return fmt.Errorf("initializing encryption key: %w", err)
	}
	signingKey, err := config.GetSessionSigningKey(kc)
	if err != nil {
		return fmt.Errorf("initializing session signing key: %w", err)
	}
	slog.Info("secrets available")

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("solace is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("solace is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Security layer.
	cipher, err := security.NewCipher(encryptionKey)
	if err != nil {
		return fmt.Errorf("initializing cipher: %w", err)
	}
	sessions := security.NewSessionManager(signingKey, 0, nil)
	guard := security.NewGuard(store, cipher, sessions, security.Options{
		IdleTimeout: parseDurationOr(cfg.Companion.SessionIdleTimeout, 30*time.Minute, "companion.session_idle_timeout"),
	})

	// Companion core.
	conv := conversation.NewStore(store)
	jr := journal.NewService(store)
	inference := llm.New(cfg.Inference.BaseURL, cfg.Inference.APIKey, cfg.Inference.Model)
	comp := composer.New(companion.Persona, cfg.Companion.HistoryLimit, 0)
	orch := companion.New(guard, conv, jr, inference, comp, companion.Options{
		ChatRateLimit:  cfg.Companion.ChatRateLimit,
		JournalEntries: cfg.Companion.JournalContextEntries,
		Params: companion.Params{
			Temperature: cfg.Inference.Temperature,
			MaxTokens:   cfg.Inference.MaxTokens,
		},
	})

	// Insight engine with background refresh.
	engine := insights.NewEngine(jr, store, insights.Options{
		CacheTTL: parseDurationOr(cfg.Insights.CacheTTL, 6*time.Hour, "insights.cache_ttl"),
	})
	dispatcher := notify.NewDispatcher(notify.LogSender{}, nil)
	refresher := insights.NewRefresher(engine, store, dispatcher,
		parseDurationOr(cfg.Insights.RefreshInterval, time.Hour, "insights.refresh_interval"), nil)
	go refresher.Run(ctx)

	// Retention sweeper.
	sweeper := retention.NewSweeper(store,
		parseDurationOr(cfg.Retention.SweepInterval, time.Hour, "retention.sweep_interval"), nil, nil)
	go sweeper.Run(ctx)

	// HTTP server.
	handler := api.NewHandler(apiToken, api.Deps{
		Guard:     guard,
		Companion: orch,
		Insights:  engine,
		Journal:   jr,
	})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.NewMCPDeps(guard, orch, engine, jr), insights.TimeBasedRecommendations)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "solace listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("solace is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop solace (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to solace (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Inference.Model)
	printStatus("Inference URL", "%s", cfg.Inference.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
