package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/tape-guide-mcp/internal/config"
	"github.com/ironsheep/tape-guide-mcp/internal/detection"
	"github.com/ironsheep/tape-guide-mcp/internal/httpapi"
	"github.com/ironsheep/tape-guide-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "tape-guide-mcp - yellow tape direction detector (MCP server)")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: tape-guide-mcp [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Environment variables:")
	fmt.Fprintf(out, "  %s=PATH     Config file when --config is not given\n", config.EnvConfigPath)
	fmt.Fprintf(out, "  %s=debug Override the configured log level\n", config.EnvLogLevel)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Without --http the server communicates via MCP protocol over stdin/stdout.")
}

func main() {
	showVersion := flag.Bool("version", false, "Print version information")
	configPath := flag.String("config", "", "Path to the YAML config file")
	httpAddr := flag.String("http", "", "Serve the HTTP API on this address instead of MCP over stdio")
	writeConfigPath := flag.String("write-config", "", "Write the effective configuration as YAML to this path and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("tape-guide-mcp %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	}

	if *writeConfigPath != "" {
		if err := writeConfig(*configPath, *writeConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "tape-guide-mcp: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath, *httpAddr); err != nil {
		fmt.Fprintf(os.Stderr, "tape-guide-mcp: %v\n", err)
		os.Exit(1)
	}
}

// writeConfig saves the configuration run would use, defaults included, so it
// can be edited into a config file.
func writeConfig(configPath, out string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}
	return cfg.Save(out)
}

func run(configPath, httpAddr string) error {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}

	// stdout is for the MCP protocol
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting",
		"version", Version,
		"commit", GitCommit,
		"backend", cfg.Backend,
		"decider", cfg.Detection.Decider,
	)

	detector, err := detection.NewBackend(cfg.Backend, cfg.Detection, detection.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.HTTPAddr != "" {
		return serveHTTP(ctx, cfg, detector, logger)
	}

	srv := server.New(detector,
		server.WithLogger(logger),
		server.WithBatchWorkers(cfg.Server.BatchWorkers),
		server.WithMinROISize(cfg.Detection.MinROISize),
		server.WithVersion(Version),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, cfg *config.Config, detector detection.Analyzer, logger *slog.Logger) error {
	api := httpapi.New(detector,
		httpapi.WithLogger(logger),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithVersion(Version),
	)
	srv := api.NewServer(cfg.Server.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("stopped")
	return nil
}
