package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ms-service-orders/internal/bootstrap"
	"ms-service-orders/internal/config"
	"ms-service-orders/internal/jobs"
	"ms-service-orders/internal/kafka"
	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/order/api"
	orderkafka "ms-service-orders/internal/order/kafka"
)

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, cfg.Log.Service)
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	log.Info("APP", "Starting Service Order Tracker initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx := context.Background()

	if cfg.Kafka.Enabled {
		log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, orderkafka.Topics(cfg.Kafka.TopicPrefix), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Info("KAFKA", "Lifecycle events disabled (KAFKA_ENABLED=false)")
	}

	log.Info("APP", fmt.Sprintf("Opening %s store", cfg.Store.Backend))
	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("APP", fmt.Sprintf("Failed to initialize: %v", err))
	}
	defer app.Close()

	stats := app.Service.AllocatorStats()
	log.LogAllocator("startup", fmt.Sprintf("%d/%d order ids in use", stats.Used, stats.Total))

	var monitor *jobs.PoolMonitor
	if cfg.Monitor.Enabled {
		monitor = jobs.NewPoolMonitor(app.Service, cfg.Monitor.Schedule, cfg.Monitor.WarnPercent, log)
		if err := monitor.Start(); err != nil {
			log.Error("MONITOR", err.Error())
			monitor = nil
		}
	}

	handler := api.NewHandler(app.Service, log)
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Service Order Tracker running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Service Order Tracker shutdown complete")
	}

	if monitor != nil {
		monitor.Stop()
	}
}
