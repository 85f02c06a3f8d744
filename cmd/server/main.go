package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rsipulse/internal/api"
	"rsipulse/internal/config"
	"rsipulse/internal/domain/service"
	"rsipulse/internal/infra/feed"
	"rsipulse/internal/infra/redis"
	"rsipulse/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalln("config:", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalln("logger:", err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	redisClient := redis.NewClient(cfg, logger)
	defer redisClient.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancelPing()

	engines, err := service.NewRegistry(cfg.RSIPeriod, cfg.MaxSymbols)
	if err != nil {
		logger.Fatal("engine registry", zap.Error(err))
	}
	readings := redis.NewReadingRepository(redisClient, cfg.MaxSymbols, cfg.ReadingTTL)
	rsiSvc := service.NewRSIService(engines, readings, m, logger, cfg.RSILow, cfg.RSIHigh)

	router := api.NewRouter(cfg, logger, rsiSvc, m)
	srv := &http.Server{
		Addr:    cfg.HTTPPort,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", zap.String("addr", cfg.HTTPPort), zap.Int("rsi_period", cfg.RSIPeriod))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return redisClient.Watch(ctx, 10*time.Second)
	})

	if symbols := cfg.SymbolList(); cfg.UpstreamURL != "" && len(symbols) > 0 {
		feedClient := feed.NewClient(cfg)
		defer feedClient.Close()
		poller := service.NewPoller(feedClient, rsiSvc, symbols, cfg.PollInterval, m, logger)
		g.Go(func() error {
			logger.Info("poller started", zap.Strings("symbols", symbols), zap.Duration("interval", cfg.PollInterval))
			return poller.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if err := zcfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return zcfg.Build()
}
