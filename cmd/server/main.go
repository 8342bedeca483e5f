package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/helpdesk/api/handler"
	"github.com/fastygo/helpdesk/internal/config"
	"github.com/fastygo/helpdesk/internal/infrastructure/buffer"
	"github.com/fastygo/helpdesk/internal/infrastructure/gemini"
	"github.com/fastygo/helpdesk/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/helpdesk/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/helpdesk/internal/infrastructure/redis"
	"github.com/fastygo/helpdesk/internal/middleware"
	"github.com/fastygo/helpdesk/internal/router"
	"github.com/fastygo/helpdesk/internal/services"
	"github.com/fastygo/helpdesk/internal/services/lifecycle"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	"github.com/fastygo/helpdesk/pkg/logger"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/repository/memory"
	"github.com/fastygo/helpdesk/repository/postgres"
	redisRepo "github.com/fastygo/helpdesk/repository/redis"
	"github.com/fastygo/helpdesk/usecase"
	"github.com/fastygo/helpdesk/usecase/access"
	authUC "github.com/fastygo/helpdesk/usecase/auth"
	"github.com/fastygo/helpdesk/usecase/classify"
	"github.com/fastygo/helpdesk/usecase/routing"
	"github.com/fastygo/helpdesk/usecase/tenant"
)

type repositories struct {
	businesses    repository.BusinessRepository
	departments   repository.DepartmentRepository
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	sessions      repository.SessionRepository
	checks        []monitor.Check
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
		Service:  cfg.AppName,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.Listen(context.Background())
	defer cancel()

	repos := openRepositories(appCtx, cfg, manager, zapLogger)

	var (
		bufferStore *buffer.Store
		transitions usecase.TransitionBuffer
	)
	if cfg.Buffer.Enabled && cfg.Storage == config.StoragePostgres {
		bufferStore, err = buffer.Open(cfg.Buffer.Path)
		if err != nil {
			zapLogger.Fatal("failed to open buffer store", zap.Error(err))
		}
		manager.RegisterCloser("buffer", bufferStore.Close)
	}

	var sizer monitor.Sizer
	if bufferStore != nil {
		sizer = bufferStore
	}
	mon := monitor.New(cfg.Context.MonitorInterval, sizer, zapLogger, repos.checks...)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	if bufferStore != nil {
		bufferProcessor := services.NewBufferProcessor(
			bufferStore,
			mon,
			repos.conversations,
			zapLogger,
			services.ProcessorConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  cfg.Buffer.BatchSize,
				MaxRetries: cfg.Buffer.MaxRetry,
				Retention:  cfg.Buffer.Retention,
			},
		)
		bufferProcessor.Start()
		manager.Register("buffer_processor", bufferProcessor.Stop)
		transitions = services.NewBufferBridge(bufferProcessor)
	}

	model := newModel(appCtx, cfg, zapLogger)
	gateway := classify.New(model, repos.departments, classify.Config{
		Threshold:          cfg.Classifier.Threshold,
		Timeout:            cfg.Classifier.Timeout,
		FallbackDepartment: cfg.Classifier.FallbackDepartment,
	}, zapLogger)

	engine := routing.New(
		repos.businesses,
		repos.conversations,
		repos.messages,
		gateway,
		transitions,
		routing.Policy(cfg.Routing.ConversationPolicy),
		zapLogger,
	)
	accessService := access.New(repos.conversations, repos.messages, repos.departments, repos.users, zapLogger)
	tenantUseCase := tenant.New(repos.businesses, repos.departments, repos.users, repos.conversations, repos.messages, zapLogger)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "dev-insecure-secret"
		zapLogger.Warn("JWT_SECRET not set, using development secret")
	}
	authUseCase := authUC.New(repos.users, repos.sessions, authUC.NewTokenIssuer(secret, cfg.Auth.Issuer), cfg.Auth.SessionTTL, zapLogger)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Auth:    apiHandler.NewAuthHandler(authUseCase, ctxAdapter, zapLogger),
		Message: apiHandler.NewMessageHandler(engine, tenantUseCase, ctxAdapter, zapLogger),
		Admin:   apiHandler.NewAdminHandler(accessService, ctxAdapter, zapLogger),
		Agent:   apiHandler.NewAgentHandler(accessService, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.Authenticate(authUseCase, cfg.Context.RequestTimeout, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage),
			zap.String("classifier", cfg.Classifier.Provider),
			zap.String("conversation_policy", cfg.Routing.ConversationPolicy),
		)
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, zapLogger *zap.Logger) repositories {
	if cfg.Storage == config.StorageMemory {
		zapLogger.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return repositories{
			businesses:    store.Businesses(),
			departments:   store.Departments(),
			users:         store.Users(),
			conversations: store.Conversations(),
			messages:      store.Messages(),
			sessions:      memory.NewSessionRepository(cfg.Auth.SessionTTL),
		}
	}

	if cfg.Migrations.Enabled {
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
	}

	pool, err := pgInfra.NewPool(ctx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(ctx, cfg.Redis, zapLogger)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.RegisterCloser("redis", redisClient.Close)

	return repositories{
		businesses:    postgres.NewBusinessRepository(pool),
		departments:   postgres.NewDepartmentRepository(pool),
		users:         postgres.NewUserRepository(pool),
		conversations: postgres.NewConversationRepository(pool),
		messages:      postgres.NewMessageRepository(pool),
		sessions:      redisRepo.NewSessionRepository(redisClient, cfg.Auth.SessionTTL),
		checks: []monitor.Check{
			{Name: "postgres", Critical: true, Timeout: 3 * time.Second, Probe: pgInfra.Ping(pool)},
			{Name: "redis", Critical: true, Timeout: 3 * time.Second, Probe: redisInfra.Ping(redisClient)},
		},
	}
}

// newModel returns the configured classifier model. A Gemini client that
// cannot be built degrades to the disabled model so routing still falls back.
func newModel(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) classify.Model {
	if cfg.Classifier.Provider == config.ClassifierDisabled {
		zapLogger.Info("classifier disabled, every message routes to the fallback department")
		return classify.Disabled
	}
	client, err := gemini.NewClient(ctx, cfg.Classifier, zapLogger)
	if err != nil {
		zapLogger.Error("classifier unavailable, routing to fallback only", zap.Error(err))
		return classify.Disabled
	}
	return client
}
