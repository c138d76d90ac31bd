package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gpib-control/gpib-control-server/internal/api"
	"github.com/gpib-control/gpib-control-server/internal/config"
	"github.com/gpib-control/gpib-control-server/internal/gpib"
	"github.com/gpib-control/gpib-control-server/internal/integration"
	"github.com/gpib-control/gpib-control-server/internal/models"
	"github.com/gpib-control/gpib-control-server/internal/monitor"
	"github.com/gpib-control/gpib-control-server/internal/server"
	"github.com/gpib-control/gpib-control-server/internal/storage"
	"github.com/gpib-control/gpib-control-server/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/gpib-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := openStore(ctx, cfg.Database)
	defer store.Close()

	if err := bootstrapAdmin(ctx, store, cfg.Admin); err != nil {
		log.Error().Err(err).Msg("Failed to bootstrap admin user")
	}

	metrics := monitor.NewMetrics()
	eventLogger := server.NewEventLogger(store, 0)
	observers := []gpib.Observer{eventLogger, metrics}

	// The event log outlives the errgroup so shutdown disconnects are recorded
	stopEvents := startEventLogger(eventLogger)

	g, gctx := errgroup.WithContext(ctx)

	// Optional: NATS fan-out and integrations
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err := server.ConnectNATS(cfg.NATS)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			observers = append(observers, server.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix))

			forwarder := integration.NewForwarder(nc, cfg.Integration, cfg.NATS.SubjectPrefix, eventLogger)
			if forwarder.Enabled() {
				g.Go(func() error {
					log.Info().Msg("Starting integration forwarder")
					return forwarder.Start(gctx)
				})
			}
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	seed := cfg.GPIB.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	manager := gpib.NewManager(gpib.NewRegistry(),
		gpib.WithEnv(gpib.Env{Rand: gpib.NewRand(seed), Sleep: gpib.ScaledSleep(cfg.GPIB.LatencyScale)}),
		gpib.WithObserver(observers...),
	)

	if cfg.GPIB.AutoConnect {
		g.Go(func() error {
			autoConnect(gctx, store, manager, cfg.GPIB.AutoConnectWorkers)
			return nil
		})
	}

	apiServer := api.NewRESTServer(cfg, store, manager,
		api.WithMetrics(metrics),
		api.WithEventRecorder(eventLogger),
	)

	g.Go(func() error {
		if err := apiServer.ListenAndServe(cfg.API.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdown(apiServer, manager)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Server stopped with error")
	}

	stopEvents()

	if dropped := eventLogger.Dropped(); dropped > 0 {
		log.Warn().Int64("dropped", dropped).Msg("Event log entries dropped")
	}

	log.Info().Msg("GPIB server stopped")
}

// startEventLogger runs l until the returned stop func is called. stop
// flushes the queue before returning.
func startEventLogger(l *server.EventLogger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Event logger stopped")
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the API and then closes every instrument session
func shutdown(apiServer shutdowner, manager *gpib.Manager) {
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	n := manager.DisconnectAll(context.Background())
	log.Info().Int("count", n).Msg("Disconnected instruments")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openStore connects to PostgreSQL, or falls back to an in-memory store
// when no DSN is configured.
func openStore(ctx context.Context, cfg config.DatabaseConfig) storage.Store {
	if cfg.DSN == "" {
		log.Warn().Msg("Database DSN not configured, using in-memory store")
		return storage.NewMemoryStore()
	}

	store, err := storage.NewPostgresStore(cfg.DSN, storage.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	log.Info().Msg("Connected to database")
	return store
}

func bootstrapAdmin(ctx context.Context, store storage.Store, cfg config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	if _, err := store.GetUserByEmail(ctx, cfg.Email); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	user := &models.User{
		Email:        cfg.Email,
		Username:     "admin",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}

	log.Info().Str("email", cfg.Email).Msg("Created admin user")
	return nil
}

func autoConnect(ctx context.Context, store storage.Store, manager *gpib.Manager, workers int) {
	instruments, err := store.ListAutoConnectInstruments(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list auto-connect instruments")
		return
	}

	connected := manager.AutoConnect(ctx, instruments, workers)
	log.Info().
		Int("connected", connected).
		Int("total", len(instruments)).
		Msg("Auto-connect finished")
}
