package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/palomarmail/palomar/config"
	"github.com/palomarmail/palomar/deliveryqueue"
	"github.com/palomarmail/palomar/filter"
	"github.com/palomarmail/palomar/httpapi"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/pkg/errors"
	"github.com/palomarmail/palomar/platform"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = ` ___    _    _      ___   __  __    _    ___
| _ \  /_\  | |    / _ \ |  \/  |  /_\  | _ \
|  _/ / _ \ | |__ | (_) || |\/| | / _ \ |   /
|_|  /_/ \_\|____| \___/ |_|  |_|/_/ \_\|_|_\`

// serverManager tracks running listeners for coordinated shutdown
type serverManager struct {
	wg sync.WaitGroup
	mu sync.Mutex
}

func (sm *serverManager) Add() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.wg.Add(1)
}

func (sm *serverManager) Done() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.wg.Done()
}

func (sm *serverManager) Wait() {
	sm.wg.Wait()
}

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	// Parse command-line flags
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("palomar version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load and validate configuration
	loadAndValidateConfig(*configPath, &cfg, errorHandler)

	// Initialize logging
	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "PALOMAR: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer func(f *os.File) {
			fmt.Fprintf(os.Stderr, "PALOMAR: Closing log file %s\n", f.Name())
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "PALOMAR: Error closing log file %s: %v\n", f.Name(), err)
			}
		}(logFile)
	}

	// Print startup banner
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, banner)
	fmt.Fprintln(os.Stderr, "")
	logger.Info("PALOMAR platform starting", "version", version, "commit", commit, "built", date)
	logger.Info("Logging configured", "format", cfg.Logging.Format, "level", cfg.Logging.Level)

	// Set up context and signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	// Build the platform and seed it from configuration
	p := platform.New(cfg.Queue.GetDispatchTier())
	if err := seedPlatform(p, &cfg); err != nil {
		errorHandler.FatalError("seed platform from configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}

	errChan := make(chan error, 1)

	// Start the dispatch queue worker
	interval, err := cfg.Queue.GetInterval()
	if err != nil {
		logger.Warn("Invalid queue interval, using default", "interval", cfg.Queue.Interval, "error", err)
		interval = 30 * time.Second
	}
	worker := deliveryqueue.NewWorker(p.Queue(), p.Dispatch, interval, cfg.Queue.GetBatchSize(), errChan)
	p.SetDispatchNotifier(worker.NotifyQueued)
	if err := worker.Start(ctx); err != nil {
		errorHandler.FatalError("start dispatch worker", err)
		os.Exit(errorHandler.WaitForExit())
	}
	defer worker.Stop()

	// Start the configured listeners
	sm := &serverManager{}
	if cfg.Metrics.Enabled {
		go startMetricsServer(ctx, sm, &cfg.Metrics, errChan)
	}
	if cfg.HTTPAPI.Start {
		go startAPIServer(ctx, sm, p, &cfg.HTTPAPI, errChan)
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		errorHandler.Shutdown(ctx)
		logger.Info("Waiting for all listeners to stop gracefully...")

		done := make(chan struct{})
		go func() {
			sm.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("All listeners closed")
		case <-time.After(10 * time.Second):
			logger.Warn("Listener shutdown timeout reached after 10 seconds")
		}
	case err := <-errChan:
		errorHandler.FatalError("server operation", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// loadAndValidateConfig loads configuration from file and validates it
func loadAndValidateConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		// If default config doesn't exist, that's okay - use application defaults
		if configPath == "config.toml" {
			logger.Info("Default configuration file not found, using application defaults", "path", configPath)
		} else {
			// User specified a config file that doesn't exist - that's an error
			errorHandler.ConfigError(configPath, statErr)
			os.Exit(errorHandler.WaitForExit())
		}
	} else if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		errorHandler.ConfigError(configPath, err)
		os.Exit(errorHandler.WaitForExit())
	} else {
		logger.Info("Loaded configuration", "path", configPath)
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}

	// An empty topology is fine: servers and accounts can be added over the API.
	if len(cfg.Servers) == 0 {
		logger.Info("No servers configured, starting with an empty topology")
	} else {
		logger.Info("Configuration validated",
			"servers", len(cfg.Servers),
			"links", len(cfg.Links),
			"accounts", len(cfg.Accounts),
			"filters", len(cfg.Filters))
	}
}

// seedPlatform registers the configured servers, links, accounts and filter
// rules. Filter rules are registered in file order, which is their evaluation
// order.
func seedPlatform(p *platform.Platform, cfg *config.Config) error {
	for _, s := range cfg.Servers {
		if err := p.RegisterServer(s.ID); err != nil {
			return fmt.Errorf("server %q: %w", s.ID, err)
		}
	}
	for _, l := range cfg.Links {
		if err := p.LinkServers(l.A, l.B); err != nil {
			return fmt.Errorf("link %q-%q: %w", l.A, l.B, err)
		}
	}
	for _, a := range cfg.Accounts {
		if err := p.RegisterAccount(a.Address, a.Server); err != nil {
			return fmt.Errorf("account %q: %w", a.Address, err)
		}
		if a.Script != "" {
			if err := p.SetAccountScript(a.Address, a.Script); err != nil {
				return fmt.Errorf("account %q script: %w", a.Address, err)
			}
		}
	}
	for _, f := range cfg.Filters {
		rule, err := filter.NewRule(f.Name, f.Field, f.Contains, f.Action, f.Tier, f.Folder)
		if err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
		if err := p.Filters().Register(rule); err != nil {
			return fmt.Errorf("filter %q: %w", f.Name, err)
		}
	}
	return nil
}

func startAPIServer(ctx context.Context, sm *serverManager, p *platform.Platform, cfg *config.HTTPAPIConfig, errChan chan error) {
	sm.Add()
	defer sm.Done()

	httpapi.Start(ctx, p, httpapi.ServerOptions{
		Addr:         cfg.GetAddr(),
		APIKey:       cfg.APIKey,
		AllowedHosts: cfg.AllowedHosts,
	}, errChan)
}

func startMetricsServer(ctx context.Context, sm *serverManager, cfg *config.MetricsConfig, errChan chan error) {
	sm.Add()
	defer sm.Done()

	mux := http.NewServeMux()
	mux.Handle(cfg.GetPath(), promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.GetAddr(),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down metrics server", "error", err)
		}
	}()

	logger.Info("Metrics server listening", "addr", cfg.GetAddr(), "path", cfg.GetPath())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server failed: %w", err)
	}
}
