package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clipforge/highlights-api/internal/authz"
	"github.com/clipforge/highlights-api/internal/config"
	"github.com/clipforge/highlights-api/internal/engine"
	"github.com/clipforge/highlights-api/internal/handlers"
	"github.com/clipforge/highlights-api/internal/idempotency"
	"github.com/clipforge/highlights-api/internal/middleware"
	"github.com/clipforge/highlights-api/internal/migration"
	"github.com/clipforge/highlights-api/internal/notification"
	"github.com/clipforge/highlights-api/internal/provision"
	"github.com/clipforge/highlights-api/internal/repository"
	"github.com/clipforge/highlights-api/internal/routes"
	"github.com/clipforge/highlights-api/internal/temporal"
	"github.com/clipforge/highlights-api/internal/temporal/activities"
	"github.com/clipforge/highlights-api/internal/temporal/workflows"
	"github.com/clipforge/highlights-api/internal/token"
	clipworker "github.com/clipforge/highlights-api/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type application struct {
	config         *config.Config
	db             *sql.DB
	tokens         *token.Service
	orchestrator   *provision.Orchestrator
	temporalClient tc.Client
	logger         zerolog.Logger
	notifications  notification.Service
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	// Repositories shared across components.
	tenantRepo := repository.NewTenantRepository(db)
	provisionRepo := repository.NewProvisionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Initialize notification service.
	notifiers := []notification.Notifier{notification.NewWebhookNotifier(tenantRepo, logger)}
	if len(cfg.Email.AlertRecipients) > 0 {
		emailNotifier, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure email notifier")
		}
		notifiers = append(notifiers, emailNotifier)
	}
	notificationService := notification.NewService(notificationRepo, logger, notifiers...)

	// Idempotency store: redis when configured, otherwise postgres.
	var idemStore idempotency.Store
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		idemStore = idempotency.NewRedisStore(redisClient, 24*time.Hour)
	} else {
		idemStore = idempotency.NewPostgresStore(db)
	}

	// Provisioning orchestrator with its upstream collaborators.
	orchestrator := provision.NewOrchestrator(
		tenantRepo,
		provisionRepo,
		idemStore,
		provision.NewHTTPWorkspaceProvisioner(cfg.Provisioning.SheetsServiceURL, cfg.Provisioning.SheetsAPIKey, cfg.Provisioning.RequestTimeout),
		provision.NewHTTPWebhookRegistrar(cfg.Provisioning.WebhookServiceURL, cfg.Provisioning.WebhookAPIKey, cfg.Provisioning.RequestTimeout),
		notificationService,
		logger,
	)

	app := &application{
		config:        cfg,
		db:            db,
		tokens:        token.NewService(cfg.JWTSecret),
		orchestrator:  orchestrator,
		logger:        logger,
		notifications: notificationService,
	}

	// Async provisioning rides on Temporal when enabled; otherwise runs are
	// executed in-process.
	var temporalWorker worker.Worker
	if cfg.Temporal.Enabled {
		temporalClient, err := tc.Dial(tc.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    temporal.NewSDKLogger(logger),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Unable to create Temporal client")
		}
		defer temporalClient.Close()
		app.temporalClient = temporalClient
		temporalWorker = app.startTemporalWorker(logger)

		orchestrator.SetEnqueuer(func(ctx context.Context, tenantID string) error {
			_, err := temporalClient.ExecuteWorkflow(ctx, tc.StartWorkflowOptions{
				ID:        temporal.ProvisionWorkflowIDPrefix + tenantID,
				TaskQueue: temporal.TaskQueueName,
			}, workflows.ProvisionWorkflow, temporal.ProvisionParams{TenantID: tenantID})
			return err
		})
	} else {
		orchestrator.SetEnqueuer(func(_ context.Context, tenantID string) error {
			go func() {
				if _, err := orchestrator.Run(context.Background(), tenantID); err != nil {
					logger.Error().Err(err).Str("tenant_id", tenantID).Msg("async provisioning run failed")
				}
			}()
			return nil
		})
	}

	// Start the clip-extraction worker when enabled.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.Worker.Enabled {
		app.startClipWorker(workerCtx, logger)
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, temporalWorker, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	userRepo := repository.NewUserRepository(app.db)
	tenantRepo := repository.NewTenantRepository(app.db)
	magicLinkRepo := repository.NewMagicLinkRepository(app.db)
	jobRepo := repository.NewClipJobRepository(app.db)

	// Mailer for magic links: optional, the flow degrades to logging.
	var mailer notification.MagicLinkMailer
	if app.config.Email.SMTPHost != "" {
		smtpMailer, err := notification.NewSMTPMagicLinkMailer(app.config.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure magic link mailer")
		}
		mailer = smtpMailer
	}

	// Authorization guard shared across route groups.
	limiter := authz.NewIPLimiter(app.config.RateLimit.RequestsPerSecond, app.config.RateLimit.Burst)
	guard := authz.NewMiddleware(app.tokens, limiter, app.config.Session.CookieName, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, tenantRepo, magicLinkRepo, app.tokens, mailer, app.config, logger)
	tenantHandler := handlers.NewTenantHandler(tenantRepo, userRepo, app.orchestrator, logger)
	provisionHandler := handlers.NewProvisionHandler(app.orchestrator, logger)
	jobHandler := handlers.NewJobHandler(jobRepo, app.notifications, logger)
	notificationHandler := handlers.NewNotificationHandler(app.notifications, logger)

	return routes.NewRouter(guard, authHandler, tenantHandler, provisionHandler, jobHandler, notificationHandler)
}

func (app *application) startTemporalWorker(logger zerolog.Logger) worker.Worker {
	activityImpl := &activities.Activities{
		Orchestrator: app.orchestrator,
	}

	w := worker.New(app.temporalClient, temporal.TaskQueueName, worker.Options{})

	w.RegisterWorkflow(workflows.ProvisionWorkflow)
	w.RegisterActivity(activityImpl)

	// Start the worker in a goroutine so it doesn't block.
	go func() {
		logger.Info().Msg("Starting Temporal worker...")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("Unable to start worker")
		}
	}()

	return w
}

func (app *application) startClipWorker(ctx context.Context, logger zerolog.Logger) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Docker client")
	}

	launcher := engine.NewLauncher(
		dockerClient,
		app.config.Worker.EngineImage,
		app.config.Worker.ContainerCPULimit,
		app.config.Worker.ContainerMemoryLimit,
		logger,
	)

	clipWorker := clipworker.NewWorker(clipworker.Config{
		JobRepo:         repository.NewClipJobRepository(app.db),
		Launcher:        launcher,
		Tokens:          app.tokens,
		Notifier:        app.notifications,
		PollInterval:    app.config.Worker.PollInterval,
		CallbackBaseURL: app.config.Worker.CallbackBaseURL,
		ServerPort:      app.config.ServerPort,
	}, logger)

	go func() {
		if err := clipWorker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("clip worker exited")
		}
	}()
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, temporalWorker worker.Worker, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if temporalWorker != nil {
		logger.Info().Msg("Stopping Temporal worker...")
		temporalWorker.Stop()
		logger.Info().Msg("Temporal worker stopped.")
	}
}
