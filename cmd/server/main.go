package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketing-service/config"
	"ticketing-service/internal/api"
	"ticketing-service/internal/broker"
	"ticketing-service/internal/credential"
	"ticketing-service/internal/notify"
	"ticketing-service/internal/processor"
	"ticketing-service/internal/redisclient"
	"ticketing-service/internal/service"
	"ticketing-service/internal/store"
	"ticketing-service/internal/util"
	"ticketing-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "ticketing-service",
		Usage: "ticket marketplace API and notification worker",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the notification worker",
				Action: func(c *cli.Context) error { return run(c.Context, true) },
			},
			{
				Name:   "worker",
				Usage:  "run only the notification worker",
				Action: func(c *cli.Context) error { return run(c.Context, false) },
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{Name: "up", Action: func(c *cli.Context) error { return migrate(false) }},
					{Name: "down", Action: func(c *cli.Context) error { return migrate(true) }},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("ticketing-service: %v", err)
	}
}

func migrate(down bool) error {
	cfg := config.Load()
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(down); err != nil {
		return err
	}
	util.GetLogger().Info("Migrations applied", zap.Bool("down", down))
	return nil
}

func run(ctx context.Context, serveHTTP bool) error {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting ticketing service", zap.Bool("http", serveHTTP))

	tp, err := util.InitTracer("ticketing-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailer := notify.NewMailer(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Business.EmailTimeout, cfg.Credential.QRSize)
	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(consumer, mailer)
	defer notificationWorker.Stop()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- notificationWorker.Start(ctx)
	}()

	if !serveHTTP {
		<-ctx.Done()
		logger.Info("Worker exited")
		return nil
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(false); err != nil {
		return err
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	publisher := broker.NewEventPublisher(producer)

	stripe := processor.NewStripe(
		cfg.Stripe.SecretKey,
		cfg.Stripe.WebhookSecret,
		cfg.Stripe.SuccessURL,
		cfg.Stripe.CancelURL,
		cfg.Business.ProcessorTimeout,
	)
	issuer := credential.NewIssuer(cfg.Credential.SigningKey)

	repo := store.Repository(db)
	fulfillment := service.NewFulfillmentService(repo, issuer, publisher)
	services := api.Services{
		Catalog:  service.NewCatalogService(repo, cfg.Business.DefaultCurrency),
		Checkout: service.NewCheckoutService(repo, stripe, fulfillment, redisClient, cfg.Business.CheckoutSessionTTL, cfg.Business.MaxTicketsPerOrder),
		Webhook:  service.NewWebhookService(repo, fulfillment, redisClient, cfg.Business.WebhookClaimTTL),
		CheckIn:  service.NewCheckInService(repo, issuer, publisher),
		Transfer: service.NewTransferService(repo, issuer, publisher),
		Refund:   service.NewRefundService(repo, stripe, publisher, redisClient),
		Payout:   service.NewPayoutService(repo, cfg.Business.DefaultCurrency),
		Tickets:  service.NewTicketService(repo, cfg.Credential.QRSize),
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, stripe, redisClient,
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
		api.Options{
			JWTSecret:      cfg.Auth.JWTSecret,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			ScanRateLimit:  cfg.Business.ScanRateLimit,
			ScanRateWindow: cfg.Business.ScanRateWindow,
		})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case err := <-workerErr:
		if err != nil && ctx.Err() == nil {
			logger.Error("Notification worker stopped", zap.Error(err))
		}
		<-ctx.Done()
	}

	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
	return nil
}
