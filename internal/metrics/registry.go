// Package metrics wires up the single Prometheus registry the daemon
// process shares across its components (routing, slot scheduler),
// and exposes it over HTTP for a scrape target.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/up202104595/tdmamesh/internal/logger"
)

// Registry owns the process's Prometheus registry and the HTTP
// server that exposes it, so every component that wants an
// instrument registers against the same collector set instead of
// each standing up its own endpoint.
type Registry struct {
	reg    *prometheus.Registry
	server *http.Server
	lgr    logger.Logger
}

// New creates an empty registry. Components call Registerer() to get
// the prometheus.Registerer to construct their metrics against.
func New(lgr logger.Logger) *Registry {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Registry{reg: prometheus.NewRegistry(), lgr: lgr}
}

// Registerer exposes the underlying prometheus.Registerer for
// component constructors like routing.NewMetrics/slotsync.NewMetrics.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying prometheus.Gatherer, e.g. for a
// custom scrape handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Serve starts a /metrics HTTP endpoint on addr in the background. A
// second call before Shutdown returns an error.
func (r *Registry) Serve(addr string) error {
	if r.server != nil {
		return errors.New("metrics: already serving")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	r.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.lgr.Error("metrics server stopped unexpectedly", logger.F("err", err))
		}
	}()
	r.lgr.Info("metrics server listening", logger.F("addr", addr))
	return nil
}

// Shutdown gracefully stops the HTTP endpoint, if one was started.
func (r *Registry) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.server.Shutdown(shutdownCtx)
}
