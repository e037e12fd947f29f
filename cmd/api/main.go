package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/config"
	"authgrid.org/internal/httpapi"
	"authgrid.org/internal/kv"
	"authgrid.org/internal/obs"
	"authgrid.org/internal/ratelimit"
	"authgrid.org/internal/store/pg"
)

var version = "0.1.0"

func main() {
	cfg := config.Load()
	obs.Init()

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	fast, err := kv.OpenRedis(ctx, cfg.RedisAddr)
	cancel()
	if err != nil {
		log.Fatalf("open redis: %v", err)
	}
	defer fast.Close()

	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc := auth.NewService(store, tokens, fast,
		auth.WithDeviceAutoTrust(cfg.DeviceAutoTrust),
	)

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = svc.Bootstrap(bootCtx)
	cancel()
	if err != nil {
		log.Fatalf("bootstrap rbac: %v", err)
	}

	limiter := ratelimit.New(fast, cfg.RequestLimitPerMinute)
	api := httpapi.New(svc, tokens, limiter, httpapi.ReadyProbe{DB: store.DB()}, version)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgrid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
