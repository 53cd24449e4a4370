package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hispgo/program-messaging/internal/api"
	"github.com/hispgo/program-messaging/internal/cache"
	"github.com/hispgo/program-messaging/internal/client"
	"github.com/hispgo/program-messaging/internal/config"
	"github.com/hispgo/program-messaging/internal/metrics"
	"github.com/hispgo/program-messaging/internal/repo"
	"github.com/hispgo/program-messaging/internal/resolve"
	"github.com/hispgo/program-messaging/internal/scheduler"
	"github.com/hispgo/program-messaging/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("program-messaging starting (addr=%s, workers=%d, interval=%s, redis=%v)",
		cfg.Server.Address,
		cfg.Dispatch.Workers,
		cfg.Scheduler.Interval,
		cfg.Redis.Enabled,
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to ping database: %v", err)
	}
	cancel()

	messageRepo := repo.NewSQLMessageRepo(db, cfg.Query.DefaultPageSize)
	gatewayRepo := repo.NewSQLGatewayRepo(db)
	directory := repo.NewSQLDirectory(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	recorder := metrics.New(registry)

	resolver := resolve.NewResolver(directory, directory)
	clients := client.NewRegistry(client.SMTPSettings{
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	router := service.NewRouter(resolver, gatewayRepo, clients)
	dispatcher := service.NewDispatcher(cfg.Dispatch.Workers, cfg.Dispatch.SendTimeout)

	svc := service.New(router, dispatcher, messageRepo).WithMetrics(recorder)

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		svc = svc.WithReceiptCache(cache.NewRedisCache(rdb, cfg.Redis.TTL))
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) {
		svc.FlushOutbound(ctx, cfg.Scheduler.BatchSize)
	})
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(svc, messageRepo, gatewayRepo, sched).
		WithPageSize(cfg.Query.DefaultPageSize)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler, registry)),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
