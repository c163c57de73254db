package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/api"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/config"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/handler"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/kafka"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/payment"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/redis"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/observability"
	core "github.com/MarufurRahmanRahat/ticket-bari-server/internal/repository/postgres"
	service "github.com/MarufurRahmanRahat/ticket-bari-server/internal/services"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	// Инициализируем логи, метрики, трейсы
	shutdown := observability.Setup("ticket-bari-server", cfg)
	defer shutdown(context.Background())

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open Postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = core.EnsureSchema(ctx, db)
	cancel()
	if err != nil {
		slog.Error("failed to prepare database", "error", err)
		os.Exit(1)
	}

	ticketRepo := core.NewPostgresTicketRepository(db)
	bookingRepo := core.NewPostgresBookingRepository(db)
	transactionRepo := core.NewPostgresTransactionRepository(db)
	captureRepo := core.NewPostgresCaptureRepository(db)

	redisClient, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		os.Exit(1)
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.PaymentTimeout)
	verifier := payment.NewWebhookVerifier(cfg.StripeWebhookSecret)

	ledger := service.NewInventoryLedger(ticketRepo, cfg.DepartureLocation)
	ticketSvc := service.NewTicketService(ticketRepo)
	bookingSvc := service.NewBookingService(bookingRepo, ledger, producer, cfg.DepartureLocation)
	paymentSvc := service.NewPaymentService(bookingRepo, captureRepo, ledger, gateway, redisClient, producer, cfg.Currency, cfg.DepartureLocation)
	transactionSvc := service.NewTransactionService(transactionRepo)

	// Асинхронный захват платежей из вебхуков
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	paymentConsumer := kafka.NewConsumer(cfg.KafkaBrokers, kafka.TopicPaymentEvents, "ticket-bari-payments", paymentSvc)
	go paymentConsumer.Consume(consumerCtx)
	defer paymentConsumer.Close()
	defer stopConsumer()

	h := handler.NewHandler(ticketSvc, bookingSvc, paymentSvc, transactionSvc, verifier, producer)
	router := api.SetupRouter(h, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	stopConsumer()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
