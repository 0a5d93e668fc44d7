package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"messhall/internal/api"
	"messhall/internal/attendance"
	"messhall/internal/auth"
	"messhall/internal/config"
	"messhall/internal/feedback"
	"messhall/internal/httpmiddleware"
	"messhall/internal/meal"
	"messhall/internal/menu"
	"messhall/internal/metrics"
	"messhall/internal/photos"
	"messhall/internal/queue"
	"messhall/internal/reconciler"
	"messhall/internal/registration"
	"messhall/internal/roster"
	"messhall/internal/schedule"
	"messhall/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	health := map[string]api.HealthCheck{"db": db.Ping}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		health["redis"] = redisClient.Ping
	} else {
		q = queue.NewInMemory(64)
	}

	m := metrics.New()
	clf := meal.Default(loc)
	ledger := attendance.NewLedger(db, clf)
	ledger.OnStale(reconciler.Notify(q))
	agg := attendance.NewAggregator(db, clf)
	scanner := attendance.NewScanner(roster.NewLookup(db), ledger, clf)
	sessions := attendance.NewSessions(scanner, nil)
	defer sessions.StopAll()

	// With an in-process queue nobody else can drain it. The worker checks
	// the view on startup; with Redis the worker may not be up yet.
	if cfg.QueueBackend == "redis" {
		_, _ = reconciler.Pass(ctx, agg, m, "startup")
	} else {
		w := &reconciler.Worker{Queue: q, Aggregator: agg, Metrics: m, Interval: cfg.ReconcileInterval}
		go func() {
			if err := w.Run(ctx); err != nil {
				log.Printf("reconciler stopped: %v", err)
			}
		}()
	}

	var uploader registration.PhotoUploader
	if cfg.CloudinaryEnabled() {
		uploader = photos.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured, signup photos stored as submitted")
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		log.Println("warning: ADMIN_EMAIL/ADMIN_PASSWORD not set, admin login disabled")
	}

	srv := api.New(api.Deps{
		Registration: registration.NewService(db, uploader, cfg.AllowedEmailDomain, registration.AdminCredentials{
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		}),
		Menu:        menu.NewService(db),
		Feedback:    feedback.NewService(db),
		Schedule:    schedule.NewService(db, clf),
		Scanner:     scanner,
		Ledger:      ledger,
		Aggregator:  agg,
		Sessions:    sessions,
		Classifier:  clf,
		Issuer:      auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Metrics:     m,
		Limiter:     httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Health:      health,
		CORSOrigins: cfg.CORSOrigins,
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s (store=%s, queue=%s, tz=%s)", cfg.HTTPPort, cfg.StoreBackend, cfg.QueueBackend, loc)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")
	sessions.StopAll()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
