// Command debugproxy runs the HTTP debugging reverse proxy: it forwards
// traffic to an upstream target, records every transaction for later
// inspection, and optionally supervises the upstream as a child process.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sofatutor/debugproxy/internal/admin"
	"github.com/sofatutor/debugproxy/internal/config"
	"github.com/sofatutor/debugproxy/internal/logging"
	"github.com/sofatutor/debugproxy/internal/process"
	"github.com/sofatutor/debugproxy/internal/proxy"
	"github.com/sofatutor/debugproxy/internal/recorder"
)

var (
	envFile         string
	port            int
	host            string
	upstreamTimeout int64
	clientTimeout   int64
	maxHistory      int
	truncateBody    int
	logLevel        string
	logFormat       string
	logFile         string
)

// monitorInterval is how often the supervisor loop polls the managed
// upstream process for an unexpected exit.
const monitorInterval = 1 * time.Second

var rootCmd = &cobra.Command{
	Use:   "debugproxy <upstream host:port> [-- command args...]",
	Short: "HTTP debugging reverse proxy with timeout handling",
	Long:  "debugproxy forwards requests to an upstream service, records every transaction, and serves an admin UI for inspecting them.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProxy,
}

func init() {
	rootCmd.Flags().StringVar(&envFile, "env", config.EnvOrDefault("ENV", ".env"), "Path to .env file")
	rootCmd.Flags().IntVarP(&port, "port", "p", config.EnvIntOrDefault("PORT", 8080), "Local port to listen on")
	rootCmd.Flags().StringVar(&host, "host", config.EnvOrDefault("HOST", "0.0.0.0"), "Host address to bind to")
	rootCmd.Flags().Int64VarP(&upstreamTimeout, "upstream-timeout", "u", int64(config.EnvIntOrDefault("UPSTREAM_TIMEOUT_MS", int(config.DefaultUpstreamTimeout.Milliseconds()))), "Upstream timeout in milliseconds")
	rootCmd.Flags().Int64VarP(&clientTimeout, "client-timeout", "c", int64(config.EnvIntOrDefault("CLIENT_TIMEOUT_MS", int(config.DefaultClientTimeout.Milliseconds()))), "Client timeout in milliseconds")
	rootCmd.Flags().IntVarP(&maxHistory, "max-history", "m", config.EnvIntOrDefault("MAX_HISTORY_SIZE", config.DefaultMaxHistorySize), "Maximum number of requests to keep in history")
	rootCmd.Flags().IntVar(&truncateBody, "truncate-body", config.EnvIntOrDefault("TRUNCATE_BODY_AT", config.DefaultTruncateBodyAt), "Body truncation size in bytes")
	rootCmd.Flags().StringVar(&logLevel, "log-level", config.EnvOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&logFormat, "log-format", config.EnvOrDefault("LOG_FORMAT", "console"), "Log format: json or console")
	rootCmd.Flags().StringVar(&logFile, "log-file", config.EnvOrDefault("LOG_FILE", ""), "Path to log file (default: stdout)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runProxy(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Printf("Warning: error loading %s file: %v\n", envFile, err)
		}
	}

	upstreamTarget := args[0]
	upstreamCommand := args[1:]

	upstreamAddr, err := parseUpstreamTarget(upstreamTarget)
	if err != nil {
		return fmt.Errorf("invalid upstream target format, use host:port: %w", err)
	}

	logger, err := logging.NewLogger(logLevel, logFormat, logFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.NewDefault()
	cfg.ClientTimeout = time.Duration(clientTimeout) * time.Millisecond
	cfg.UpstreamTimeout = time.Duration(upstreamTimeout) * time.Millisecond
	cfg.MaxHistorySize = maxHistory
	cfg.TruncateBodyAt = truncateBody
	store := config.NewStore(cfg)

	rec := recorder.New(cfg.MaxHistorySize)

	var supervisor *process.Manager
	if len(upstreamCommand) > 0 {
		supervisor = process.New(upstreamCommand)
		if err := supervisor.Start(); err != nil {
			return fmt.Errorf("failed to start upstream command %v: %w", upstreamCommand, err)
		}
	}

	adminServer := admin.NewServer(store, rec, nil, logger.With(zap.String(logging.FieldComponent, logging.ComponentAdmin)))

	// Redirects are handed back to the client unchanged, not followed.
	upstreamClient := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	engine := &proxy.Engine{
		Config:       store,
		Recorder:     rec,
		Upstream:     upstreamClient,
		UpstreamAddr: upstreamAddr,
		Admin:        adminServer,
		Logger:       logger.With(zap.String(logging.FieldComponent, logging.ComponentProxy)),
	}

	listenAddr := net.JoinHostPort(host, strconv.Itoa(port))
	server := &http.Server{
		Addr:    listenAddr,
		Handler: engine,
	}

	printBanner(upstreamAddr, listenAddr, cfg, supervisor)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErr:
			if err != nil && err != http.ErrServerClosed {
				logger.Error("proxy server stopped unexpectedly", zap.Error(err))
				stopSupervisor(supervisor, logger)
				return err
			}
			return nil

		case s := <-sig:
			logger.Info("received shutdown signal", zap.String("signal", s.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				logger.Warn("error during server shutdown", zap.Error(err))
			}
			stopSupervisor(supervisor, logger)
			logger.Info("shutdown complete")
			return nil

		case <-ticker.C:
			if supervisor == nil {
				continue
			}
			if !supervisor.IsRunning() {
				logger.Warn("upstream process exited unexpectedly, restarting")
				if err := supervisor.Restart(); err != nil {
					logger.Error("failed to restart upstream process", zap.Error(err))
				} else {
					logger.Info("upstream process restarted")
				}
			}
		}
	}
}

func stopSupervisor(supervisor *process.Manager, logger *zap.Logger) {
	if supervisor == nil {
		return
	}
	if err := supervisor.Stop(); err != nil {
		logger.Error("error stopping upstream process", zap.Error(err))
	}
}

// printBanner prints the one-time startup summary a user watches for when
// launching the proxy interactively, in the spirit of a CLI tool announcing
// it is ready. Routine operation after this point goes through the
// structured logger instead.
func printBanner(upstreamAddr, listenAddr string, cfg config.ProxyConfig, supervisor *process.Manager) {
	fmt.Println("DebugProxy started successfully!")
	fmt.Println()
	fmt.Println("Proxy Configuration:")
	fmt.Printf("  Listen Address:   %s\n", listenAddr)
	fmt.Printf("  Upstream Target:  %s\n", upstreamAddr)
	fmt.Printf("  Client Timeout:   %s\n", cfg.ClientTimeout)
	fmt.Printf("  Upstream Timeout: %s\n", cfg.UpstreamTimeout)
	fmt.Printf("  Max History:      %d requests\n", cfg.MaxHistorySize)
	fmt.Printf("  Body Truncation:  %d bytes\n", cfg.TruncateBodyAt)
	fmt.Println()
	fmt.Println("Web Interface:")
	webHost := "localhost"
	if idx := strings.LastIndex(listenAddr, ":"); idx >= 0 {
		if h := listenAddr[:idx]; h != "" && h != "0.0.0.0" {
			webHost = h
		}
		fmt.Printf("  URL: http://%s:%s/_proxy?token=%s\n", webHost, listenAddr[idx+1:], cfg.AccessToken)
	}
	fmt.Println()
	fmt.Println("Upstream Process:")
	switch {
	case supervisor == nil:
		fmt.Println("  Status: External (not managed)")
	default:
		if pid, ok := supervisor.PID(); ok {
			fmt.Printf("  Status: PID %d (running)\n", pid)
		} else {
			fmt.Println("  Status: Not running")
		}
	}
	fmt.Println()
	fmt.Println("Ready to receive requests. Press Ctrl+C to stop.")
}

// parseUpstreamTarget validates that target has exactly one colon
// separating a non-empty host from a valid uint16 port, and returns it
// unchanged for use as the dial address.
func parseUpstreamTarget(target string) (string, error) {
	parts := strings.Split(target, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("upstream target must be in format host:port")
	}
	if parts[0] == "" {
		return "", fmt.Errorf("host part cannot be empty")
	}
	if _, err := strconv.ParseUint(parts[1], 10, 16); err != nil {
		return "", fmt.Errorf("invalid port number: %w", err)
	}
	return target, nil
}
