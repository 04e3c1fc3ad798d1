package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/config"
	"github.com/noah-isme/gema-variant-engine/internal/database"
	"github.com/noah-isme/gema-variant-engine/internal/handler"
	"github.com/noah-isme/gema-variant-engine/internal/middleware"
	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
	"github.com/noah-isme/gema-variant-engine/internal/router"
	"github.com/noah-isme/gema-variant-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var natsConn *nats.Conn
	if cfg.QueueBackend == queue.BackendNATS {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+" api")
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	var redisClient *redis.Client
	if cfg.QueueBackend == queue.BackendRedis {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	producer, err := queue.NewProducer(queue.Options{
		Backend:  cfg.QueueBackend,
		Subject:  cfg.QueueSubject,
		RedisKey: cfg.QueueRedisKey,
	}, natsConn, redisClient, logger)
	if err != nil {
		log.Fatalf("failed to create grading queue producer: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	store := repository.NewStore(db)
	registry := questions.NewDefaultRegistry()
	invoker := questions.NewInvoker(cfg.PluginTimeout, logger)
	sink := service.NewErrorSink(logger)

	variantService := service.NewVariantService(store, registry, invoker, sink, logger)
	submissionService := service.NewSubmissionService(store, registry, invoker, sink, logger)
	gradingService := service.NewGradingService(store, registry, invoker, sink, producer, logger)
	renderService := service.NewRenderService(store, registry, invoker, sink, logger)
	lookupService := service.NewLookupService(store)
	manualGradingService := service.NewManualGradingService(store, validate, logger)

	variantHandler := handler.NewVariantHandler(variantService, renderService, lookupService, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, gradingService, lookupService, validate, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, manualGradingService, lookupService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		VariantHandler:    variantHandler,
		SubmissionHandler: submissionHandler,
		GradingHandler:    gradingHandler,
		Registry:          registry,
		HealthPing: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		JWTMiddleware: middleware.JWTProtected(cfg.JWTSecret),
	})

	logger.Info().
		Str("queue_backend", producer.Backend()).
		Strs("question_types", registry.Types()).
		Str("address", cfg.HTTPAddress()).
		Msg("starting api")

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
