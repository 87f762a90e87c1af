package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/andyluo22/mini-hft/config"
	"github.com/andyluo22/mini-hft/internal/bootstrap"
	"github.com/andyluo22/mini-hft/internal/healthpage"
	"github.com/andyluo22/mini-hft/internal/logging"
	"github.com/andyluo22/mini-hft/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
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

	reg := prometheus.NewRegistry()
	apiClient := upstream.NewClient(cfg.Web.APIBase, 0, upstream.NewMetrics(reg))

	loads := healthpage.NewLoads(apiClient, cfg.Web.CheckTimeout, cfg.Web.PageTTL)
	defer loads.Close()

	z.Info("health page configured",
		zap.String("api_base", apiClient.BaseURL()),
		zap.Duration("page_ttl", cfg.Web.PageTTL),
	)

	router := bootstrap.BuildWebRouter(bootstrap.WebRouterDeps{
		ServiceName: "mini-hft-web",
		Loads:       loads,
		ConfigVar:   config.APIBaseEnv,
		Registry:    reg,
	})

	if err := bootstrap.Serve(ctx, ":"+cfg.Web.Port, router); err != nil {
		z.Error("web server stopped", zap.Error(err))
		return 1
	}
	return 0
}
