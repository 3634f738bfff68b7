package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rescue-link/internal/gateway/api"
	"rescue-link/internal/gateway/app"
	"rescue-link/internal/gateway/consumer"
	"rescue-link/internal/gateway/repo"
	"rescue-link/internal/shared/config"
	"rescue-link/internal/shared/db"
	"rescue-link/internal/shared/health"
	"rescue-link/internal/shared/mq"
	"rescue-link/internal/shared/util"
)

func main() {
	logger := util.New()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("main", err)
	}

	pool, err := db.ConnectToDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("main", err)
	}
	defer pool.Close()

	rmqConn, rmqCh, err := mq.ConnectToRMQ(&cfg.RabbitMQ)
	if err != nil {
		logger.Fatal("main", err)
	}
	defer rmqConn.Close()
	defer rmqCh.Close()

	if err := rmqCh.ExchangeDeclare(
		"rescue_topic",
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		logger.Fatal("main", err)
	}

	for queue, key := range map[string]string{
		"rescue_status":     "rescue.status.*",
		"vehicle_positions": "rescue.vehicle.position",
	} {
		if _, err := rmqCh.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			logger.Fatal("main", err)
		}
		if err := rmqCh.QueueBind(queue, key, "rescue_topic", false, nil); err != nil {
			logger.Fatal("main", err)
		}
	}

	publisher := mq.NewPublisher(rmqCh)
	repository := repo.NewRequestRepo(pool)
	service := app.NewRescueService(repository, publisher, logger)
	hub := api.NewHub(logger)
	handler := api.NewHandler(service, hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := consumer.NewStatusConsumer(service, rmqCh, hub, logger).Start(ctx); err != nil {
		logger.Fatal("main", err)
	}
	if err := consumer.NewPositionConsumer(service, rmqCh, hub, logger).Start(ctx); err != nil {
		logger.Fatal("main", err)
	}

	mux := handler.RegisterRoutes()
	mux.HandleFunc("/health", health.Handler("rescue-gateway", pool, rmqConn))

	port := cfg.Gateway.Port
	if port == "" {
		port = "3000"
	}
	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		logger.Info("main", "rescue-gateway running on :"+port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("main", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("main", "shutting down rescue-gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("main", err)
	}
	logger.Info("main", "rescue-gateway stopped gracefully")
}
