package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/andyluo22/mini-hft/config"
	"github.com/andyluo22/mini-hft/internal/bootstrap"
	"github.com/andyluo22/mini-hft/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run returns the exit code so deferred cleanup finishes before os.Exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	z, err := logging.Init(cfg.App.LogLevel, cfg.App.Environment != "production")
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer func() { _ = z.Sync() }()

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		z.Warn("redis unavailable, running without it", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := bootstrap.BuildAPIRouter(bootstrap.APIRouterDeps{
		ServiceName:    "mini-hft-api",
		Version:        cfg.App.Version,
		EngineURL:      cfg.API.EngineURL,
		AllowedOrigins: cfg.API.AllowedOrigins,
		ProxyTimeout:   cfg.API.ProxyTimeout,
		ProxyRPS:       cfg.API.ProxyRPS,
		ProxyBurst:     cfg.API.ProxyBurst,
		Redis:          rdb,
		Registry:       reg,
	})

	if err := bootstrap.Serve(ctx, ":"+cfg.API.Port, router); err != nil {
		z.Error("api server stopped", zap.Error(err))
		return 1
	}
	return 0
}
