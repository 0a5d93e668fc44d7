package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messhall/internal/attendance"
	"messhall/internal/config"
	"messhall/internal/meal"
	"messhall/internal/metrics"
	"messhall/internal/queue"
	"messhall/internal/reconciler"
	"messhall/internal/store"
)

// Worker consumes reconcile jobs published by the api and repairs head counts
// on an interval.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreBackend == "memory" || cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs a shared store and queue (STORE_BACKEND=%s, QUEUE_BACKEND=%s); the api reconciles in-process otherwise",
			cfg.StoreBackend, cfg.QueueBackend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(pingCtx); err != nil {
		log.Printf("WARNING: redis not available: %v", err)
		log.Println("Worker will keep retrying while jobs are polled")
	}
	pingCancel()

	m := metrics.New()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		addr := ":" + cfg.WorkerMetricsPort
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics listener on %s stopped: %v", addr, err)
		}
	}()

	w := &reconciler.Worker{
		Queue:      queue.NewRedisQueue(redisClient.Client, cfg.QueueKey),
		Aggregator: attendance.NewAggregator(db, meal.Default(loc)),
		Metrics:    m,
		Interval:   cfg.ReconcileInterval,
	}
	if err := w.Run(ctx); err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker stopped")
}
