package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/banana-api/internal/api"
	"github.com/phrazzld/banana-api/internal/config"
	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/events"
	"github.com/phrazzld/banana-api/internal/generation"
	"github.com/phrazzld/banana-api/internal/platform/nanobanana"
	"github.com/phrazzld/banana-api/internal/platform/rediscache"
	"github.com/phrazzld/banana-api/internal/ratelimit"
	"github.com/phrazzld/banana-api/internal/service"
	"github.com/phrazzld/banana-api/internal/service/auth"
	"github.com/phrazzld/banana-api/internal/store"
	"github.com/phrazzld/banana-api/internal/task"
	"github.com/phrazzld/banana-api/internal/upload"
	"github.com/redis/go-redis/v9"
)

// application holds the shared dependencies of the server so they can be
// wired once and released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	taskStore store.TaskStore
	dbCloser  io.Closer
	uploads   *upload.Store
	redis     *redis.Client

	// Provider calls go through a bounded queue and worker pool.
	jobQueue   *task.JobQueue
	workerPool *task.WorkerPool
	provider   generation.Provider

	eventEmitter *events.InMemoryEventEmitter
	engine       *task.Engine
	sweeper      *task.Sweeper
	limiter      *ratelimit.Limiter

	generationService service.GenerationService
	callbackTokens    auth.CallbackTokenService
	apiKeys           *auth.APIKeyVerifier

	// stopBackground cancels goroutines started in newApplication.
	stopBackground context.CancelFunc
}

// providerFactory builds the upstream provider. Tests replace it.
var providerFactory = func(cfg config.ProviderConfig, l *slog.Logger) (generation.Provider, error) {
	return nanobanana.NewClient(cfg, l)
}

// newApplication creates an application with all dependencies initialized and
// its background workers running.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	ok := false
	defer func() {
		if !ok {
			app.cleanup()
		}
	}()

	var err error
	app.taskStore, app.dbCloser, err = setupTaskStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up task store: %w", err)
	}

	app.uploads, err = upload.New(upload.Config{
		Dir:          cfg.Upload.MediaDir,
		BaseURL:      cfg.Server.PublicBaseURL,
		AllowedTypes: cfg.Generation.AllowedContentTypes,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up upload store: %w", err)
	}
	logger.Info("Upload store initialized", "dir", app.uploads.Dir())

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.Subscribe(events.TypeTaskFinished, upload.NewCleanupHandler(app.uploads, logger))

	var engineOpts []task.EngineOption
	if cfg.Cache.RedisURL != "" {
		app.redis, err = rediscache.Connect(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache := rediscache.NewResultCache(app.redis, cfg.Cache.TTL(), logger)
		app.eventEmitter.Subscribe(events.TypeTaskFinished, cache)
		engineOpts = append(engineOpts, task.WithResultCache(cache))
		logger.Info("Result cache enabled", "ttl", cfg.Cache.TTL())
	}

	client, err := providerFactory(cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider client: %w", err)
	}

	app.jobQueue = task.NewJobQueue(cfg.Provider.QueueSize, logger)
	app.workerPool = task.NewWorkerPool(app.jobQueue, task.WorkerPoolConfig{
		WorkerCount: cfg.Provider.MaxConcurrentCalls,
	}, logger)
	app.workerPool.Start()
	app.provider = task.NewProviderPool(client, app.jobQueue, app.workerPool, logger)
	logger.Info("Provider worker pool started",
		"workers", cfg.Provider.MaxConcurrentCalls,
		"queue_size", cfg.Provider.QueueSize)

	app.engine = task.NewEngine(
		app.taskStore,
		app.provider,
		app.eventEmitter,
		task.EngineConfig{PollInterval: cfg.Generation.PollInterval()},
		logger,
		engineOpts...,
	)

	if cfg.Auth.CallbackSecret != "" {
		app.callbackTokens, err = auth.NewCallbackTokenService(cfg.Auth.CallbackSecret, cfg.Auth.CallbackTokenTTL())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize callback token service: %w", err)
		}
	} else {
		logger.Warn("Callback secret not configured; webhooks are accepted without a token")
	}

	if cfg.Auth.APIKeyHash != "" {
		app.apiKeys = auth.NewAPIKeyVerifier(cfg.Auth.APIKeyHash, nil)
	} else {
		logger.Warn("API key hash not configured; task endpoints are open")
	}

	app.generationService, err = service.NewGenerationService(
		app.taskStore,
		app.provider,
		app.uploads,
		api.NewCallbackURLFunc(cfg.Server.PublicBaseURL, app.callbackTokens),
		service.GenerationConfig{
			Limits: domain.Limits{
				MaxPromptLength: cfg.Generation.MaxPromptLength,
				MaxImages:       cfg.Generation.MaxImages,
			},
			MaxUploadBytes: cfg.Generation.MaxUploadBytes(),
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.stopBackground = cancel

	app.limiter = ratelimit.New(ratelimit.Config{
		Quota:   cfg.RateLimit.Quota,
		Window:  cfg.RateLimit.Window(),
		MaxKeys: cfg.RateLimit.MaxKeys,
	}, ratelimit.WithLogger(logger))
	go app.limiter.Run(bgCtx)

	if cfg.Sweep.Schedule != "" {
		app.sweeper, err = task.NewSweeper(app.taskStore, app.engine, task.SweeperConfig{
			Schedule:  cfg.Sweep.Schedule,
			BatchSize: cfg.Sweep.BatchSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sweeper: %w", err)
		}
		app.sweeper.Start()
		logger.Info("Task sweeper started", "schedule", cfg.Sweep.Schedule)
	}

	ok = true
	logger.Info("Application initialized successfully")
	return app, nil
}

// maxRequestBytes bounds a create request: every allowed upload at full size
// plus room for form fields.
func (app *application) maxRequestBytes() int64 {
	images := int64(app.config.Generation.MaxImages)
	if images < 1 {
		images = 1
	}
	return images*app.config.Generation.MaxUploadBytes() + 1<<20
}

// Run starts the HTTP server and blocks until it shuts down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases resources in reverse order of creation. It is safe on a
// partially initialized application.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.stopBackground != nil {
		app.stopBackground()
	}
	if app.workerPool != nil {
		app.workerPool.Stop()
	}
	if app.jobQueue != nil {
		app.jobQueue.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis client", "error", err)
		}
	}
	if app.dbCloser != nil {
		if err := app.dbCloser.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
