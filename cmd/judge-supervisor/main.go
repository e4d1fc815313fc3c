// Package main provides the judge-supervisor entry point: it spawns and
// restarts a pool of judge-worker child processes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/PATRIC3/judge-host/internal/config"
	"github.com/PATRIC3/judge-host/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	workerBin := flag.String("worker-bin", "judge-worker", "Path to the judge-worker binary")
	poolSize := flag.Int("pool-size", 0, "Number of worker processes to keep alive (0 = use worker.max_workers from config)")
	gracePeriod := flag.Duration("grace-period", 5*time.Second, "How long a worker gets to exit after SIGTERM before SIGKILL")
	restartBackoff := flag.Duration("restart-backoff", time.Second, "Minimum delay between a worker's death and its replacement")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	size := *poolSize
	if size <= 0 {
		size = cfg.Worker.MaxWorkers
	}
	if size <= 0 {
		size = 1
	}

	baseArgs := []string{}
	if *configPath != "" {
		baseArgs = append(baseArgs, "-config", *configPath)
	}

	s := supervisor.New(supervisor.Config{
		Command: *workerBin,
		ArgsForIndex: func(index int) []string {
			return append(append([]string{}, baseArgs...), "-index", strconv.Itoa(index))
		},
		PoolSize:       size,
		GracePeriod:    *gracePeriod,
		RestartBackoff: *restartBackoff,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("supervisor: received shutdown signal")
		cancel()
	}()

	log.Printf("supervisor: starting pool of %d workers", size)
	s.Run(ctx)
	log.Println("supervisor: all workers stopped")
}
