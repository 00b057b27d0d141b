package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"settlement-service/internal/config"
	hrest "settlement-service/internal/handler/rest"
	publisher "settlement-service/internal/pub"
	"settlement-service/internal/repository"
	"settlement-service/internal/service"
	"settlement-service/internal/usecase"
	"settlement-service/internal/worker"
	"settlement-service/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func NewSettlementServer(cfg config.AppConfig) {
	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	codeGen := utils.NewCodeGenerator()

	// --- Redis client ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- Kafka writer (notification side effects) ---
	kafkaWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
	}

	// --- Repositories ---
	escrowRepo := repository.NewEscrowRepo(dbpool)
	payoutRepo := repository.NewPayoutRepo(dbpool)
	accountRepo := repository.NewPayoutAccountRepo(dbpool)
	rateRepo := repository.NewRateRepo(dbpool)

	// --- Publishers / notifier ---
	eventPublisher := publisher.NewSettlementEventPublisher(rdb)
	notifier := usecase.NewNotificationBatcher(kafkaWriter, logger,
		usecase.NotificationBatchSize, usecase.NotificationFlushEvery)
	notifier.Start()

	// --- Usecases ---
	rateUC := usecase.NewRateUsecase(rateRepo, rdb, 30*time.Minute)
	tierUC := usecase.NewTierUsecase(accountRepo, rdb)
	escrowUC := usecase.NewEscrowUsecase(escrowRepo, tierUC, rateUC, codeGen, rdb, eventPublisher, notifier, logger)
	withdrawalUC := usecase.NewWithdrawalUsecase(escrowRepo, payoutRepo, tierUC, rateUC, codeGen, rdb, eventPublisher, notifier, logger)

	// --- Seed system in a goroutine (non-blocking) ---
	systemSeeder := service.NewSystemSeeder(rateRepo, dbpool)
	go func() {
		if err := systemSeeder.SeedSystem(context.Background()); err != nil {
			log.Printf("System seeding failed: %v", err)
		}
	}()

	// --- Auto-release sweeper ---
	sweeper := worker.NewReleaseSweeper(escrowUC, cfg.SweepInterval, logger)
	go sweeper.Start(context.Background())

	// --- REST handler ---
	restHandler := hrest.NewSettlementRestHandler(escrowUC, withdrawalUC, tierUC, rateUC)

	log.Printf("Settlement HTTP server listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, restHandler.Routes()); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
