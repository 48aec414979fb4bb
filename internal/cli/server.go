package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neuroaid-diagnostic-service/internal/app"
	"neuroaid-diagnostic-service/internal/config"
	"neuroaid-diagnostic-service/internal/infra/events"
	"neuroaid-diagnostic-service/internal/infra/memory"
	"neuroaid-diagnostic-service/internal/infra/metrics"
	pgloader "neuroaid-diagnostic-service/internal/infra/postgres"
	rediscache "neuroaid-diagnostic-service/internal/infra/redis"
	"neuroaid-diagnostic-service/internal/infra/scoring"
	transport "neuroaid-diagnostic-service/internal/transport/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultScoringURL   = "http://localhost:5000"
	defaultEventRetries = 3
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the diagnostic quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var loader memory.CatalogLoader = memory.NewDefaultCatalogLoader()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgloader.NewCatalogLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalogs app.CatalogRepository
	if redisClient != nil {
		catalogs = rediscache.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalogs = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = rediscache.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	baseURL := cfg.Scoring.BaseURL
	if baseURL == "" {
		baseURL = defaultScoringURL
	}
	scorer := scoring.NewClient(scoring.Config{
		BaseURL:   baseURL,
		ScorePath: cfg.Scoring.ScorePath,
		SavePath:  cfg.Scoring.SavePath,
		Timeout:   config.TTLDuration(cfg.Scoring.Timeout, 0),
	})

	wmLogger := watermill.NewStdLogger(cfg.Log.Development, false)
	pubsub := events.NewGoChannel(wmLogger)
	publisher := events.NewPublisher(pubsub, cfg.Events.Topic, logger)
	defer publisher.Close()

	// finished assessments reach save_path through the event consumer, with retries
	maxRetries := cfg.Events.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultEventRetries
	}
	recorder, err := events.NewRecorderRouter(pubsub, scorer, events.RecorderConfig{
		Topic:         cfg.Events.Topic,
		MaxRetries:    maxRetries,
		RetryInterval: config.TTLDuration(cfg.Events.RetryInterval, 0),
	}, logger, wmLogger)
	if err != nil {
		return err
	}
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		if err := recorder.Run(recorderCtx); err != nil {
			logger.Error("assessment recorder stopped", zap.Error(err))
		}
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()
	// gochannel drops messages published before anyone subscribes
	select {
	case <-recorder.Running():
	case <-recorderDone:
		return errors.New("assessment recorder failed to start")
	}

	serviceOpts := []app.Option{
		app.WithPublisher(publisher),
		app.WithLogger(logger),
		app.WithDefaultCatalog(cfg.Catalog.DefaultID),
	}
	var routerOpts []transport.RouterOption
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)
		serviceOpts = append(serviceOpts, app.WithMetrics(m))
		routerOpts = append(routerOpts, transport.WithMetrics(m))
	}
	service := app.NewDiagnosticService(sessions, catalogs, scorer, serviceOpts...)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, logger, cfg.Server.CORSOrigins, routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting diagnostic service",
			zap.String("addr", server.Addr),
			zap.Bool("redis", redisClient != nil),
			zap.Bool("postgres", cfg.Postgres.URL != ""),
			zap.Bool("metrics", cfg.Metrics.Enabled),
			zap.String("scoring_url", baseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
