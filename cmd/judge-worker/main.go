// Package main provides the judge-worker process entry point: a single
// claim-execute-report loop, normally spawned and supervised in a pool
// by judge-supervisor.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/PATRIC3/judge-host/internal/broker"
	"github.com/PATRIC3/judge-host/internal/config"
	"github.com/PATRIC3/judge-host/internal/judge"
	"github.com/PATRIC3/judge-host/internal/lang"
	"github.com/PATRIC3/judge-host/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	index := flag.Int("index", 0, "Worker index, used to build a unique worker id")
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

	w := worker.New(worker.ID(*index), b, queues, worker.Config{
		MaxExecutionTime:     cfg.Timing.MaxExecutionTime,
		MaxQueueWorkLifeTime: cfg.Timing.MaxQueueWorkLifeTime,
		MaxMemoryBytes:       cfg.Sandbox.MaxMemoryMB * 1024 * 1024,
		MaxStdoutErrorLength: cfg.Sandbox.MaxStdoutErrorLength,
		BlockPopTimeout:      cfg.Broker.BlockPopTimeout,
		HeartbeatTTL:         cfg.Broker.WorkerHeartbeatTTL,
		Lang: lang.Config{
			PythonPath:      cfg.Lang.PythonPath,
			CppCompilerPath: cfg.Lang.CppCompilerPath,
			CppCompileFlags: cfg.Lang.CppCompileFlags,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Printf("worker %d: received shutdown signal", *index)
		cancel()
	}()

	w.Run(ctx)
}
