package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/kgraph/internal/app"
	"github.com/OFFIS-RIT/kgraph/internal/config"
	"github.com/OFFIS-RIT/kgraph/internal/queue"
	"github.com/OFFIS-RIT/kgraph/internal/util"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"
	"github.com/OFFIS-RIT/kgraph/pkg/logger/console"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvBool("LOG_JSON", false),
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	reg := prometheus.NewRegistry()
	core, err := app.New(ctx, cfg, reg)
	if err != nil {
		logger.Fatal("Failed to initialize pipeline", "err", err)
	}
	defer core.Close()

	conn, err := queue.Dial(cfg.RabbitMQ.URL())
	if err != nil {
		logger.Fatal("Failed to connect to queue", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	defaults := core.PipelineOptions()
	handlerParams := queue.NewHandlerParams{Processor: core.Pipeline, Defaults: &defaults}
	if core.Leases != nil {
		handlerParams.Locker = core.Leases
	}
	handler := queue.NewHandler(handlerParams)

	if addr := util.GetEnv("METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics endpoint stopped", "err", err)
			}
		}()
	}

	if err := queue.Consume(ctx, conn, ch, handler); err != nil {
		logger.Fatal("Consumer failed", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
