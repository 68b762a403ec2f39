package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "CandleCast/internal/middleware"
	"CandleCast/internal/services/prediction"
	"CandleCast/internal/usecase"
	"CandleCast/pkg/cache"
	pkgch "CandleCast/pkg/clickhouse"
	"CandleCast/pkg/config"
	xhttp "CandleCast/pkg/http"
	pkgkafka "CandleCast/pkg/kafka"
	applogger "CandleCast/pkg/logger"
	"CandleCast/pkg/queue"
	"CandleCast/pkg/scheduler"
)

// Components are the long-lived parts of the process. Collector is nil when
// the exchange stream is disabled.
type Components struct {
	Config      *config.Config
	Logger      *applogger.Logger
	Collector   *usecase.TradeCollector
	Consumer    *pkgkafka.Consumer
	Handlers    []pkgkafka.MessageHandler
	Router      *usecase.StreamRouter
	Pipeline    *mid.InferencePipeline
	Models      *prediction.Server
	Scheduler   *scheduler.Scheduler
	Jobs        *queue.RedisQueue
	HTTP        *xhttp.Server
	Producer    *pkgkafka.Producer
	ClickHouse  *pkgch.Client
	Redis       *cache.RedisCache
	LocalCaches []*cache.LayeredCache
}

// App encapsulates the entire application lifecycle.
type App struct {
	c   Components
	log *applogger.Logger
}

func New(c Components) *App {
	return &App{c: c, log: c.Logger.With(applogger.String("component", "app"))}
}

// Run starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start(ctx context.Context) error {
	cfg := a.c.Config

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := a.c.Models.Refresh(loadCtx, cfg.Pairs); err != nil {
		a.log.Warn("initial model load incomplete", applogger.Error(err))
	}
	cancel()

	// the processing path is started back to front so nothing upstream
	// produces into a component that is not running yet
	a.c.Pipeline.Start(ctx)
	a.c.Router.Start(ctx)

	if err := a.c.Jobs.Start(); err != nil {
		return err
	}
	a.c.Scheduler.Start()

	for _, h := range a.c.Handlers {
		a.c.Consumer.RegisterHandler(h)
	}
	if err := a.c.Consumer.Start(); err != nil {
		return err
	}

	if err := a.c.HTTP.Start(); err != nil {
		return err
	}

	if a.c.Collector != nil {
		go func() {
			if err := a.c.Collector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("trade collector stopped", applogger.Error(err))
			}
		}()
	}
	a.log.Info("candlecast started",
		applogger.Strings("pairs", cfg.Pairs),
		applogger.Int("port", cfg.Server.Port),
		applogger.Bool("collector", a.c.Collector != nil))
	return nil
}

// shutdown stops producers of data before their consumers, then closes the
// infrastructure clients.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.c.Config.Server.ShutdownTimeout)
	defer cancel()

	step := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			a.log.Warn("shutdown step failed", applogger.String("step", name), applogger.Error(err))
		}
	}

	if a.c.Collector != nil {
		step("collector", a.c.Collector.Shutdown)
	}
	step("kafka consumer", a.c.Consumer.Stop)
	step("stream router", a.c.Router.Stop)
	step("inference pipeline", a.c.Pipeline.Stop)
	step("scheduler", a.c.Scheduler.Stop)
	step("job queue", a.c.Jobs.Stop)
	step("http", a.c.HTTP.Stop)

	// the error collector publishes through the producer, so flush it first
	a.c.Logger.RemoveCollector()
	step("kafka producer", func(context.Context) error { return a.c.Producer.Close() })
	step("clickhouse", func(context.Context) error { return a.c.ClickHouse.Close() })
	for _, lc := range a.c.LocalCaches {
		step("local cache", func(context.Context) error { return lc.Close() })
	}
	step("redis", func(context.Context) error { return a.c.Redis.Close() })
	a.log.Info("shutdown complete")
}
