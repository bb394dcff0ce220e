package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/drover/pkg/api"
	"github.com/cuemby/drover/pkg/config"
	"github.com/cuemby/drover/pkg/coordinator"
	"github.com/cuemby/drover/pkg/events"
	"github.com/cuemby/drover/pkg/health"
	"github.com/cuemby/drover/pkg/lifecycle"
	"github.com/cuemby/drover/pkg/log"
	"github.com/cuemby/drover/pkg/metrics"
	"github.com/cuemby/drover/pkg/poller"
	"github.com/cuemby/drover/pkg/queue"
	"github.com/cuemby/drover/pkg/remote"
	"github.com/cuemby/drover/pkg/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Drover coordinator",
	Long: `Run the Drover coordinator: the REST API, the job worker pool,
the status poller and the task service health monitor in one process.

Configuration is layered from defaults, an optional YAML file (--config),
environment variables and these flags, in that order.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
	serverCmd.Flags().String("addr", "", "HTTP listen address")
	serverCmd.Flags().String("storage", "", "Storage driver: postgres, bolt or memory")
	serverCmd.Flags().String("data-dir", "", "Data directory for the bolt driver")
	serverCmd.Flags().Duration("task-timeout", 0, "Cancel releases whose tasks go quiet for this long")
	serverCmd.Flags().Duration("poll-interval", 0, "Time between task status poll sweeps")
	serverCmd.Flags().Duration("health-interval", 0, "Time between task service health sweeps")
	serverCmd.Flags().Int("workers", 0, "Job worker pool size")
	serverCmd.Flags().String("log-level", "", "Log level: debug, info, warn or error")
	serverCmd.Flags().Bool("log-json", false, "Log as JSON instead of console output")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("main")
	logger.Info().
		Str("version", Version).
		Str("storage", cfg.Storage.Driver).
		Str("queue", cfg.Queue.Driver).
		Msg("Starting Drover coordinator")

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()

	var emitter *events.Emitter
	if cfg.Events.URL != "" && cfg.Events.Subject != "" {
		emitter, err = events.NewEmitter(cfg.Events.URL, cfg.Events.Subject)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		logger.Info().Str("subject", cfg.Events.Subject).Msg("Event bus emission enabled")
	} else {
		logger.Info().Msg("Event bus emission disabled")
	}

	lc := lifecycle.NewManager(store, broker, emitter)

	q, err := openQueue(cfg)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	caller := remote.NewClient()
	coord := coordinator.New(store, lc, caller, q, cfg.Coordinator.TaskTimeout)
	monitor := health.NewMonitor(store, caller, q, cfg.Coordinator.HealthInterval)

	pool := queue.NewPool(q, cfg.Coordinator.Workers)
	coord.RegisterHandlers(pool)
	pool.Register(queue.KindHealthCheck, monitor.HandleHealthCheck)
	pool.Start()

	statusPoller := poller.New(store, q, cfg.Coordinator.PollInterval)
	statusPoller.Start()
	monitor.Start()

	collector := metrics.NewCollector(store)
	collector.Start()

	apiServer := api.NewServer(api.Options{
		Store:       store,
		Lifecycle:   lc,
		Coordinator: coord,
		Monitor:     monitor,
		Broker:      broker,
		Queue:       q,
		Version:     Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("API server failed")
	}

	// Stop intake first, then the background loops, then the sinks.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API shutdown incomplete")
	}
	statusPoller.Stop()
	monitor.Stop()
	pool.Stop()
	collector.Stop()
	broker.Stop()
	if emitter != nil {
		emitter.Close()
	}
	if err := q.Close(); err != nil {
		logger.Warn().Err(err).Msg("Queue close failed")
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

// applyFlags overlays explicitly set flags onto the configuration
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("storage") {
		cfg.Storage.Driver, _ = flags.GetString("storage")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("task-timeout") {
		cfg.Coordinator.TaskTimeout, _ = flags.GetDuration("task-timeout")
	}
	if flags.Changed("poll-interval") {
		cfg.Coordinator.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if flags.Changed("health-interval") {
		cfg.Coordinator.HealthInterval, _ = flags.GetDuration("health-interval")
	}
	if flags.Changed("workers") {
		cfg.Coordinator.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
}

// openStore builds the configured storage backend
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.PostgresDSN())
	case "bolt":
		return storage.NewBoltStore(cfg.Storage.DataDir)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openQueue builds the configured job queue backend
func openQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "redis":
		return queue.NewRedisQueue(cfg.RedisAddr(), cfg.Queue.Redis.Password, cfg.Queue.Redis.DB, "")
	case "memory":
		return queue.NewMemoryQueue(0), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
