package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/kgraph/internal/app"
	"github.com/OFFIS-RIT/kgraph/internal/config"
	"github.com/OFFIS-RIT/kgraph/internal/queue"
	mid "github.com/OFFIS-RIT/kgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/kgraph/internal/storage"
	"github.com/OFFIS-RIT/kgraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

type NewParams struct {
	App *mid.App
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// New creates the echo instance with middleware and routes.
func New(params NewParams) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(params.App))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("256M"))

	RegisterRoutes(e, params.Gatherer)
	return e
}

// Run serves the API until ctx is done.
func Run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	core, err := app.New(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer core.Close()

	a := &mid.App{App: core}

	conn, err := queue.Dial(cfg.RabbitMQ.URL())
	if err != nil {
		logger.Warn("[Server] Queue unavailable, work runs inline", "err", err)
	} else {
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			return err
		}
		a.Queue = ch
	}

	if cfg.S3.Enabled() {
		bucket, err := storage.NewBucket(ctx, cfg.S3)
		if err != nil {
			return err
		}
		a.Bucket = bucket
	}

	e := New(NewParams{App: a, Gatherer: reg})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
	return nil
}
