// Package main provides the judge dispatcher HTTP server entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/config"
	"github.com/PATRIC3/judge-host/internal/dispatcher"
	"github.com/PATRIC3/judge-host/internal/judge"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	b, err := broker.NewRedisBroker(cfg.Broker.Addr, cfg.Broker.Password, cfg.Broker.DB, cfg.Broker.SocketTimeout)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer b.Close()

	queues := judge.NewQueues(cfg.Broker.KeyPrefix)

	server := dispatcher.NewServer(dispatcher.Config{
		WriteTimeout:          cfg.Server.WriteTimeout,
		MaxQueueWaitTime:      cfg.Timing.MaxQueueWaitTime,
		LongBatchMaxQueueWait: cfg.Timing.LongBatchMaxQueueWaitTime,
		MaxBatchChunkSize:     cfg.Batch.MaxBatchChunkSize,
		MaxLongBatchChunkSize: cfg.Batch.MaxLongBatchChunkSize,
	}, b, queues)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting judge dispatcher on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down dispatcher...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Dispatcher stopped")
}
