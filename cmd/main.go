package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/codecoalition/collabd/internal/collab"
	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/configs"
	"github.com/codecoalition/collabd/internal/infrastructure/events"
	"github.com/codecoalition/collabd/internal/infrastructure/logging"
	"github.com/codecoalition/collabd/internal/infrastructure/messaging"
	"github.com/codecoalition/collabd/internal/infrastructure/metrics"
	"github.com/codecoalition/collabd/internal/infrastructure/ratelimiter"
	"github.com/codecoalition/collabd/internal/infrastructure/tracing"
	"github.com/codecoalition/collabd/internal/persistence/db"
	"github.com/codecoalition/collabd/internal/persistence/repository"
	"github.com/codecoalition/collabd/internal/presentation/api"
	"github.com/codecoalition/collabd/internal/presentation/handler/health"
	"github.com/codecoalition/collabd/internal/presentation/handler/rooms"
)

const (
	serviceName = "collabd"
)

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logging.FilePath,
		Encoding: cfg.Logging.Encoding,
		Level:    cfg.Logging.Level,
		Logger:   cfg.Logging.Logger,
	})
	logger.Init()

	collectors := metrics.New()

	snapshots := newSnapshotRepository(ctx, cfg, logger)

	var publisher *events.RoomPublisher
	if cfg.Messaging.Enabled {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.Messaging.AmqpURI)
		if err != nil {
			log.Fatal(err)
		}
		defer rabbitmq.Close()

		log.Println("Starting RabbitMQ connection")

		publisher = events.NewRoomPublisher(rabbitmq)

		roomConsumer := events.NewRoomConsumer(rabbitmq)
		go roomConsumer.Listen()
	}

	registry := collab.NewRegistry()
	hub := collab.NewHub(collab.HubOptions{
		Registry:    registry,
		Admission:   collab.NewAdmissionController(registry, cfg.Admission.OpenRooms),
		Workspace:   collab.NewWorkspaceKeeper(snapshots, logger, collectors, cfg.Snapshot.FlushInterval),
		Presence:    collab.NewPresenceTracker(registry),
		ScreenShare: collab.NewScreenShareState(registry),
		Publisher:   publisher,
		Logger:      logger,
		Metrics:     collectors,
	})

	roomHandler := rooms.NewHandler(hub, snapshots, logger)
	healthHandler := health.NewHandler()

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})
	app := api.NewApplication(*cfg, *roomHandler, *healthHandler, logger, rl, collectors)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.Mount()
	if err := app.Run(mux); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

func newSnapshotRepository(ctx context.Context, cfg *configs.Config, logger logging.Logger) domain.SnapshotRepository {
	if !cfg.Snapshot.Enabled {
		return nil
	}

	mongoCfg := &db.MongoConfig{
		URI:               cfg.Snapshot.MongoURI,
		Database:          cfg.Snapshot.Database,
		ConnectionTimeout: db.DefaultConnectionTimeout,
	}

	client, err := db.NewMongoClient(ctx, mongoCfg)
	if err != nil {
		log.Fatal(err)
	}

	repo := repository.NewWorkspaceSnapshotRepository(db.GetDatabase(client, mongoCfg))
	if idx, ok := repo.(interface{ EnsureIndexes(context.Context) error }); ok {
		if err := idx.EnsureIndexes(ctx); err != nil {
			logger.Warn(logging.Mongo, logging.Startup, "failed to ensure snapshot indexes",
				map[logging.ExtraKey]any{logging.ErrorMessage: err.Error()})
		}
	}

	return repo
}
