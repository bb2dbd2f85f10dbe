package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"isoserve/api"
	"isoserve/config"
	"isoserve/logger"
)

// dotenvFile is read from the working directory when present.
const dotenvFile = ".env"

// NewRootCmd builds the isoserve command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isoserve [root]",
		Short: "Static file server with cross-origin isolation headers",
		Long: "Serves a directory over HTTP and adds Cross-Origin-Opener-Policy: same-origin,\n" +
			"Cross-Origin-Embedder-Policy: require-corp and Access-Control-Allow-Origin: *\n" +
			"to every response, so pages can use SharedArrayBuffer, WASM threads and WebGPU workers.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runServe,
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a JSON config file")
	flags.String("host", config.DefaultHost, "interface to bind")
	flags.IntP("port", "p", config.DefaultPort, "port to bind")
	flags.StringP("dir", "d", config.DefaultRoot, "directory to serve (the positional argument wins)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("metrics-listen", "", "address for the Prometheus /metrics listener (disabled when empty)")
	flags.Bool("metrics-runtime", false, "also export Go runtime and process metrics")
	flags.Int("max-concurrent", 0, "maximum requests handled at once (0 = unlimited)")

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig layers explicitly set flags and the positional root over config.Load.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath, dotenvFile)
	if err != nil {
		return nil, err
	}

	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("dir") {
		cfg.Server.Root, _ = flags.GetString("dir")
	}
	if len(args) > 0 {
		cfg.Server.Root = args[0]
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen, _ = flags.GetString("metrics-listen")
	}
	if flags.Changed("metrics-runtime") {
		cfg.Metrics.Runtime, _ = flags.GetBool("metrics-runtime")
	}
	if flags.Changed("max-concurrent") {
		cfg.Server.MaxConcurrent, _ = flags.GetInt("max-concurrent")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetLogger()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	log.Info("Loaded configuration", map[string]interface{}{
		"address":        cfg.Server.Address(),
		"root":           cfg.Server.Root,
		"max_concurrent": cfg.Server.MaxConcurrent,
		"metrics":        cfg.Metrics.Listen,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srv := api.NewServer(api.Options{
		Addr:            cfg.Server.Address(),
		Root:            cfg.Server.Root,
		MaxConcurrent:   cfg.Server.MaxConcurrent,
		MetricsAddr:     cfg.Metrics.Listen,
		RuntimeMetrics:  cfg.Metrics.Runtime,
		ShutdownTimeout: cfg.Server.GetShutdownTimeout(),
		Logger:          log,
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatal("Failed to start server", map[string]interface{}{
			"error":   err.Error(),
			"address": cfg.Server.Address(),
		})
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received shutdown signal", map[string]interface{}{
				"signal": sig.String(),
			})
			cancel()
		case <-ctx.Done():
		}
	}()

	err = srv.Wait()
	log.Info("Shutdown complete", nil)
	return err
}
