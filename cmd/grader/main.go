package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/config"
	"github.com/noah-isme/gema-variant-engine/internal/database"
	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/internal/worker"
	"github.com/noah-isme/gema-variant-engine/pkg/ai"
	dockerexec "github.com/noah-isme/gema-variant-engine/pkg/docker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.ValidateGrader(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.QueueBackend == queue.BackendLog {
		log.Fatalf("grader needs a nats or redis queue backend")
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "grader").Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	var natsConn *nats.Conn
	if cfg.QueueBackend == queue.BackendNATS {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName+" grader")
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

	opts := queue.Options{
		Backend:  cfg.QueueBackend,
		Subject:  cfg.QueueSubject,
		RedisKey: cfg.QueueRedisKey,
	}
	producer, err := queue.NewProducer(opts, natsConn, redisClient, logger)
	if err != nil {
		log.Fatalf("failed to create grading queue producer: %v", err)
	}
	consumer, err := queue.NewConsumer(opts, natsConn, redisClient, logger)
	if err != nil {
		log.Fatalf("failed to create grading queue consumer: %v", err)
	}

	executor, err := dockerexec.NewDockerExecutor(dockerexec.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create docker executor: %v", err)
	}
	defer executor.Close()

	var evaluator ai.Evaluator
	switch {
	case cfg.AIProvider == "openai" && cfg.OpenAIAPIKey != "":
		openAI, err := ai.NewOpenAIEvaluator(ai.OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Logger: logger})
		if err != nil {
			log.Fatalf("failed to create openai evaluator: %v", err)
		}
		evaluator = openAI
	case cfg.AIProvider != "" && cfg.AIProvider != "openai":
		logger.Warn().Str("provider", cfg.AIProvider).Msg("unsupported ai provider, essay grading disabled")
	default:
		logger.Warn().Msg("openai api key not set, essay grading disabled")
	}

	graders := worker.Graders{
		questions.TypeCode: worker.NewCodeGrader(executor, evaluator, worker.CodeGraderConfig{
			ExecutionTimeout: cfg.ExecutionTimeout,
			MemoryLimitMB:    cfg.CodeRunMemoryMB,
			CPUShares:        cfg.CodeRunCPUShares,
		}, logger),
	}
	if evaluator != nil {
		graders[questions.TypeEssay] = worker.NewEssayGrader(evaluator)
	}

	store := repository.NewStore(db)
	registry := questions.NewDefaultRegistry()
	invoker := questions.NewInvoker(cfg.PluginTimeout, logger)
	sink := service.NewErrorSink(logger)

	gradingService := service.NewGradingService(store, registry, invoker, sink, producer, logger)
	resultService := service.NewExternalGradingService(store, logger)

	gradingWorker := worker.NewExternalGradingWorker(consumer, graders, resultService, logger)
	redispatcher := worker.NewRedispatcher(gradingService, cfg.RedispatchInterval, cfg.RedispatchAfter, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		redispatcher.Run(ctx)
	}()

	logger.Info().
		Str("queue_backend", cfg.QueueBackend).
		Bool("essay_grading", evaluator != nil).
		Msg("starting grader")

	if err := gradingWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("grading worker stopped with error")
	}

	stop()
	wg.Wait()
	log.Println("grader stopped")
}
