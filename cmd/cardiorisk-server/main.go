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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cardiorisk/cardiorisk/internal/config"
	"github.com/cardiorisk/cardiorisk/internal/domain/chatbot"
	"github.com/cardiorisk/cardiorisk/internal/domain/diagnosis"
	"github.com/cardiorisk/cardiorisk/internal/platform/auth"
	"github.com/cardiorisk/cardiorisk/internal/platform/db"
	"github.com/cardiorisk/cardiorisk/internal/platform/llm"
	"github.com/cardiorisk/cardiorisk/internal/platform/metrics"
	"github.com/cardiorisk/cardiorisk/internal/platform/middleware"
	"github.com/cardiorisk/cardiorisk/internal/platform/mlapi"
)

const version = "0.1.0"

// snapshotLookup exposes the latest stored diagnosis to the chatbot.
type snapshotLookup struct {
	svc *diagnosis.Service
}

func (l snapshotLookup) LatestSnapshot(ctx context.Context, patientID string) (*chatbot.Snapshot, error) {
	d, err := l.svc.LatestByPatient(ctx, patientID)
	if errors.Is(err, diagnosis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chatbot.Snapshot{
		PatientID:   d.PatientID,
		Prediction:  d.Prediction,
		Probability: d.Probability,
		Model:       d.Model,
		Timestamp:   d.Timestamp,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "cardiorisk-server",
		Short: "CHD risk prediction and chat API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

func newGenerator(cfg *config.Config) llm.Generator {
	if cfg.LLMProvider == "openai" {
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.LLMTimeout)
	}
	return llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.LLMTimeout, llm.WithGeminiBaseURL(cfg.GeminiBaseURL))
}

// newConversationStore returns the configured store and a cleanup func.
func newConversationStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (chatbot.Store, func(), error) {
	switch cfg.ConversationStore {
	case "memory":
		return chatbot.NewMemoryStore(), func() {}, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return chatbot.NewRedisStore(rdb), func() { rdb.Close() }, nil
	default:
		return chatbot.NewPGStore(pool), func() {}, nil
	}
}

type routes struct {
	health    echo.HandlerFunc
	healthDB  echo.HandlerFunc
	diagnosis *diagnosis.Handler
	chatbot   *chatbot.Handler
}

func newEcho(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics, r routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit("1M"))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))
	}

	e.GET("/health", r.health)
	e.GET("/health/db", r.healthDB)
	e.GET("/metrics", m.Handler())

	api := e.Group("/api")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			SigningKey: []byte(cfg.AuthJWTSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	r.diagnosis.RegisterRoutes(api)
	r.chatbot.RegisterRoutes(api)
	return e
}

func healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New()

	// Conversation store
	store, closeStore, err := newConversationStore(ctx, cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open conversation store")
	}
	defer closeStore()
	logger.Info().Str("store", cfg.ConversationStore).Msg("conversation store ready")

	// Diagnosis domain
	mlClient := mlapi.NewClient(cfg.MLAPIURL, cfg.MLAPITimeout, mlapi.WithObserver(m.MLCall))
	diagOpts := []diagnosis.Option{diagnosis.WithConversationPurger(store)}
	if cfg.ConversationStore == "postgres" {
		diagOpts = append(diagOpts, diagnosis.WithTxRunner(db.TxRunner(pool)))
	}
	diagSvc := diagnosis.NewService(diagnosis.NewRepoPG(pool), mlClient, logger, diagOpts...)

	// Chatbot domain
	gen := llm.Instrument(newGenerator(cfg), m.LLMCall)
	responder := chatbot.NewLanguageResponder(gen, store, cfg.ChatContextWindow, logger)
	chatSvc := chatbot.NewService(store, snapshotLookup{svc: diagSvc}, responder, logger,
		chatbot.WithTurnObserver(m.ChatTurn))
	logger.Info().Str("provider", gen.Provider()).Int("context_window", cfg.ChatContextWindow).Msg("chatbot ready")

	e := newEcho(cfg, logger, m, routes{
		health:    healthHandler,
		healthDB:  db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }),
		diagnosis: diagnosis.NewHandler(diagSvc),
		chatbot:   chatbot.NewHandler(chatSvc),
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
