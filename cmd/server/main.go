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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/taskverse-backend/internal/auth"
	"github.com/AnshRaj112/taskverse-backend/internal/config"
	"github.com/AnshRaj112/taskverse-backend/internal/database"
	"github.com/AnshRaj112/taskverse-backend/internal/handlers"
	"github.com/AnshRaj112/taskverse-backend/internal/middleware"
	"github.com/AnshRaj112/taskverse-backend/internal/ranking"
	"github.com/AnshRaj112/taskverse-backend/internal/routes"
	"github.com/AnshRaj112/taskverse-backend/internal/services"
	"github.com/AnshRaj112/taskverse-backend/internal/session"
	"github.com/AnshRaj112/taskverse-backend/internal/store"
	"github.com/AnshRaj112/taskverse-backend/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// newLogger builds a JSON logger in production and a console logger
// elsewhere, at LOG_LEVEL.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	cipher, err := utils.NewCipher(cfg.EncryptionKey)
	if err != nil {
		logger.Error("ENCRYPTION_KEY is missing or invalid; generate one with: openssl rand -base64 32")
		return err
	}

	rules := store.NewRules(cfg.AdminEmails)

	// Connect to Redis
	rdb, err := database.ConnectRedis(ctx, cfg.RedisURI, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	// Connect to PostgreSQL
	pg, err := database.ConnectPostgres(ctx, cfg.PostgresURI, logger)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pg.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Document store
	var docs store.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("Using the in-memory document store; data is lost on restart")
		docs = store.NewMemory(rules)
	default:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			return fmt.Errorf("connecting to mongodb: %w", err)
		}
		defer database.DisconnectMongo(client)

		feed := store.NewChangeFeed(rdb, logger)
		g.Go(func() error { return feed.Run(gctx) })

		mongoStore := store.NewMongo(db, feed, rules, logger)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			logger.Warn("Failed to ensure MongoDB indexes", zap.Error(err))
		} else {
			logger.Info("MongoDB indexes ensured")
		}
		docs = mongoStore
	}

	// REST handlers answer and audit denials themselves, so the guard only
	// upgrades them to *PermissionError.
	guarded := store.NewGuard(docs, nil)

	now := services.Clock(time.Now)
	cache := services.NewCacheService(rdb, services.DefaultCacheTTL)
	settings := services.NewSettings(guarded, cache, logger)
	play := services.NewPlay(guarded, settings, now, logger)
	audit := services.NewDenialAudit(rdb, logger, now)

	avatarFn := session.AvatarFunc(session.DiceBearAvatar)
	var avatars *services.AvatarService
	if cfg.CloudinaryEnabled() {
		avatars, err = services.NewAvatarService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, guarded)
		if err != nil {
			logger.Warn("Avatar uploads disabled", zap.Error(err))
		} else {
			avatarFn = avatars.URL
			logger.Info("Cloudinary avatar service initialized")
		}
	} else {
		logger.Warn("Cloudinary credentials not found; avatar uploads disabled")
	}

	var ranker ranking.Ranker
	if cfg.GeminiAPIKey != "" {
		gemini, err := ranking.NewGeminiRanker(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("Task personalization disabled", zap.Error(err))
		} else {
			ranker = gemini
		}
	}

	authSvc := auth.NewService(
		auth.NewPostgresAccounts(pg),
		auth.NewRedisSessions(rdb),
		auth.NewTokenManager(cfg.JWTSecret, "taskverse"),
		auth.NewLogMailer(logger),
		auth.Options{FrontendURL: cfg.FrontendURL, Logger: logger},
	)

	blocklist := middleware.NewRedisRateLimiter(rdb, logger)

	api := &handlers.API{
		Auth:         authSvc,
		Store:        guarded,
		Wallet:       services.NewWallet(guarded, settings, cipher, now, logger),
		Play:         play,
		Submissions:  services.NewSubmissions(guarded, play, now, logger),
		Admin:        services.NewAdmin(guarded, now, logger),
		Settings:     settings,
		Avatars:      avatars,
		Audit:        audit,
		Personalizer: ranking.NewPersonalizer(ranker, logger),
		Blocklist:    blocklist,
		Logger:       logger,
	}

	gateway := handlers.NewGateway(docs, authSvc, audit, handlers.GatewayOptions{
		Roles:          session.AllowListPolicy(rules),
		Avatar:         avatarFn,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Production: host check, security headers, per-IP and login rate limits.
	// Elsewhere: the Redis blocklist only.
	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost) {
			r.Use(mw)
		}
		logger.Info("Production security enabled", zap.String("host", cfg.AllowedHost))
	} else {
		r.Use(blocklist.Middleware)
	}

	routes.SetupRoutes(r, api, gateway, middleware.Authenticate(authSvc, docs, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(gateway.Close)

	g.Go(func() error {
		logger.Info("TaskVerse backend running",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Environment),
			zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
