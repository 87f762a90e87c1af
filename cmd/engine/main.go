package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andyluo22/mini-hft/config"
	"github.com/andyluo22/mini-hft/internal/bootstrap"
	"github.com/andyluo22/mini-hft/internal/engine"
	"github.com/andyluo22/mini-hft/internal/logging"
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

	stp, err := engine.ParseSTPPolicy(cfg.Engine.STPPolicy)
	if err != nil {
		z.Error("invalid engine configuration", zap.Error(err))
		return 1
	}

	status := engine.NewStatus(engine.BuildInfo{
		Version: cfg.Engine.Version,
		GitSHA:  cfg.Engine.GitSHA,
	}, time.Now)

	bus := engine.NewBus(cfg.Engine.EventBuffer)
	matcher := engine.NewMatchEngine(bus, stp, engine.NewMetrics(status.Registry()))
	matcher.RegisterBookGauges(status.Registry())

	go bus.Run(ctx, logEvent(z))

	z.Info("match engine ready",
		zap.String("stp_policy", stp.String()),
		zap.Int("event_buffer", bus.Cap()),
	)

	if err := bootstrap.Serve(ctx, ":"+cfg.Engine.Port, bootstrap.BuildEngineRouter(status, matcher)); err != nil {
		z.Error("engine server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func logEvent(z *zap.Logger) func(engine.Event) {
	return func(e engine.Event) {
		switch ev := e.(type) {
		case engine.FillEvent:
			z.Debug("fill",
				zap.Uint64("taker_id", uint64(ev.TakerID)),
				zap.Uint64("maker_id", uint64(ev.MakerID)),
				zap.Stringer("taker_side", ev.TakerSide),
				zap.Int64("price", int64(ev.Price)),
				zap.Int64("qty", int64(ev.Qty)),
			)
		case engine.CancelEvent:
			z.Debug("cancel",
				zap.Uint64("id", uint64(ev.ID)),
				zap.Stringer("side", ev.Side),
				zap.Int64("price", int64(ev.Price)),
				zap.Int64("qty_canceled", int64(ev.QtyCanceled)),
			)
		case engine.BookChangeEvent:
			z.Debug("book_change",
				zap.Stringer("side", ev.Side),
				zap.Int64("price", int64(ev.Price)),
				zap.Int64("new_level_qty", int64(ev.NewLevelQty)),
			)
		}
	}
}
