package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"nexus-hq/nexus/pkg/config"
	"nexus-hq/nexus/pkg/history"
	"nexus-hq/nexus/pkg/mcp"
	"nexus-hq/nexus/pkg/proxy/handlers"
	"nexus-hq/nexus/pkg/push"
	"nexus-hq/nexus/pkg/registry"
	"nexus-hq/nexus/pkg/server"
	"nexus-hq/nexus/pkg/telemetry"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	logFormat     string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Nexus gateway",
	Long: `Start the Nexus gateway with the specified configuration.

The gateway listens on the configured address, routes inference traffic to
registered downstream servers, dials the configured MCP tool servers, and
starts the health sweeper and optional push jobs.

Examples:
  # Start with the default config
  nexus run

  # Start with a custom config
  nexus run --config /etc/nexus/config.toml

  # Override the listen address
  nexus run --listen 0.0.0.0:9000

  # Validate config without starting the gateway
  nexus run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.logFormat, "log-format", "json", "log format (json, text)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
}

func runGateway(cmd *cobra.Command, args []string) error {
	telemetry.SetupLogging(runFlags.logLevel, runFlags.logFormat)

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	addr := cfg.Server.Addr()
	if runFlags.listenAddress != "" {
		addr = runFlags.listenAddress
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := config.NewStore(cfg)

	// Registry and health sweeper.
	reg := registry.New(registry.WithHealthCheckInterval(registry.HealthCheckIntervalFromEnv()))
	reg.StartSweeper(ctx)

	// MCP tool servers. A server that fails to dial is skipped, not fatal;
	// its tools simply never appear in the tool map.
	mcpReg := mcp.NewRegistry(Version)
	defer mcpReg.Close()
	for _, tool := range cfg.Mcp.Server.Tool {
		if !tool.Enable {
			continue
		}
		err := mcpReg.Connect(ctx, mcp.ServiceConfig{
			Name:            tool.Name,
			Transport:       tool.Transport,
			URL:             tool.URL,
			Command:         tool.Command,
			Enable:          tool.Enable,
			FallbackMessage: tool.FallbackMessage,
		})
		if err != nil {
			slog.Warn("failed to connect MCP tool server", "service", tool.Name, "error", err)
		}
	}

	// Optional chat-history recorder.
	var recorder *history.Recorder
	if cfg.History.Enable {
		histStore, err := history.NewStore(cfg.History.Path)
		if err != nil {
			return err
		}
		recorder = history.NewRecorder(histStore)
		defer recorder.Close()
	}

	metrics := telemetry.NewMetrics()

	handler := handlers.New(handlers.Config{
		Registry: reg,
		Mcp:      mcpReg,
		Store:    store,
		Client:   &http.Client{},
		Recorder: recorder,
		Metrics:  metrics,
	})

	// Hot reload of the RAG section.
	watcher, err := config.NewWatcher(cfgFile, store)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Warn("config watcher exited", "error", err)
			}
		}()
	}

	// Scheduled server-info / server-health pushes.
	pusher := push.New(push.Config{
		ServerInfoURL:   cfg.ServerInfoPushURL,
		ServerHealthURL: cfg.ServerHealthPushURL,
	}, handler, reg)
	if err := pusher.Start(ctx); err != nil {
		return err
	}

	return server.New(addr, handler, metrics).Start(ctx)
}
