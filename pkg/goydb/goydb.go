package goydb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/internal/controller"
	"github.com/goydb/mrindex/internal/handler"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Goydb struct {
	Storage  *storage.Storage
	Engine   *controller.Engine
	Registry *prometheus.Registry
	Handler  http.Handler
	Logger   logger.Logger
}

// BuildDatabase opens the storage and wires engine, metrics and routes.
func (c *Config) BuildDatabase() (*Goydb, error) {
	l := c.Logger()

	err := os.MkdirAll(c.DatabaseDir, 0o755)
	if err != nil {
		return nil, err
	}
	s, err := storage.Open(c.DatabaseDir, l)
	if err != nil {
		return nil, fmt.Errorf("unable to open storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	err = controller.RegisterMetrics(reg)
	if err != nil {
		s.Close()
		return nil, err
	}

	e := controller.NewEngine(s, c.EngineConfig(), l)

	r := mux.NewRouter()
	err = handler.Router{Engine: e, Logger: l, Gatherer: reg}.Build(r)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &Goydb{
		Storage:  s,
		Engine:   e,
		Registry: reg,
		Handler:  handlers.CombinedLoggingHandler(os.Stdout, handlers.RecoveryHandler()(r)),
		Logger:   l,
	}, nil
}

// Run starts the indexing engine and serves http on addr until ctx is
// done or one of them fails.
func (g *Goydb) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := g.Engine.Start(ctx)
		if err != nil {
			return fmt.Errorf("unable to start indexing: %w", err)
		}
		<-ctx.Done()
		g.Engine.Stop()
		return nil
	})
	eg.Go(func() error {
		g.Logger.Info("listening", "addr", addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (g *Goydb) Close() error {
	return g.Storage.Close()
}
