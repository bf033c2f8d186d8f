package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/acodingmedic/Travel-Project-sub000/pkg/config"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/core"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/log"
	"github.com/acodingmedic/Travel-Project-sub000/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath  string
	dataDir     string
	metricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "holon",
	Short: "Holon - travel planning orchestration core",
	Long: `Holon runs the travel planning substrate: the event bus, state
manager, task queues, policy engine, and workflow orchestrator that carry
a plan request from intent to packaged itinerary.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Holon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "override data directory")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "override metrics listen address")
	statusCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "metrics listen address of the running core")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planning core",
	Long: `Start the planning core and serve the metrics and health endpoints.
The config file is watched for changes; hot-reloadable settings (log level,
admission limits) apply without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if metricsAddr != "" {
			cfg.Metrics.ListenAddr = metricsAddr
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSONOutput,
		})
		metrics.SetVersion(Version)

		c, err := core.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create core: %v", err)
		}
		if err := c.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start core: %v", err)
		}

		collector := metrics.NewCollector(metrics.Sources{
			Bus:      c.Bus,
			Queues:   c.Queues,
			State:    c.State,
			Policy:   c.Policy,
			Workflow: c.Workflow,
		})
		collector.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/livez", metrics.LivenessHandler())

		httpServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %v", err)
			}
		}()

		var watcher *config.Watcher
		if configPath != "" {
			watcher, err = config.NewWatcher(configPath, func(next *config.Config) {
				log.SetLevel(log.Level(next.Log.Level))
			})
			if err != nil {
				log.Errorf("config watch unavailable", err)
			}
		}

		fmt.Printf("Holon is running (metrics on %s). Press Ctrl+C to stop.\n", cfg.Metrics.ListenAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		if watcher != nil {
			watcher.Stop()
		}
		collector.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)

		c.Stop()
		fmt.Println("Shutdown complete")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of a running core",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := metricsAddr
		if addr[0] == ':' {
			addr = "localhost" + addr
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + addr + "/health")
		if err != nil {
			return fmt.Errorf("core unreachable at %s: %v", addr, err)
		}
		defer resp.Body.Close()

		var health metrics.HealthStatus
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			return fmt.Errorf("unexpected health response: %v", err)
		}

		fmt.Printf("Status:  %s\n", health.Status)
		if health.Version != "" {
			fmt.Printf("Version: %s\n", health.Version)
		}
		if health.Uptime != "" {
			fmt.Printf("Uptime:  %s\n", health.Uptime)
		}
		for name, st := range health.Components {
			fmt.Printf("  %-10s %s\n", name, st)
		}
		return nil
	},
}
