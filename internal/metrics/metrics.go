// Package metrics exports engine activity as Prometheus metrics.
//
// Collector is an engine Observer. Register it next to the other observers
// and expose Handler (or Serve) to scrapers.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/txsim/internal/ir"
)

const namespace = "txsim"

// Collector counts lifecycle events.
//
// Every method only touches Prometheus atomics, so it is safe to call from
// worker goroutines.
type Collector struct {
	registry *prometheus.Registry

	enqueued  prometheus.Counter
	started   *prometheus.CounterVec
	completed prometheus.Counter
	retries   prometheus.Counter
	failed    prometheus.Counter
	released  prometheus.Counter
	inFlight  prometheus.Gauge
	duration  prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_enqueued_total",
			Help:      "Work items admitted to the channel.",
		}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_started_total",
			Help:      "Attempts started, by worker.",
		}, []string{"worker"}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_completed_total",
			Help:      "Work items that reached Completed.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_retried_total",
			Help:      "Transitions to Retrying.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_permanently_total",
			Help:      "Work items that reached FailedPermanently.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_released_total",
			Help:      "Unfinished work items written back as Pending on shutdown.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_in_flight",
			Help:      "Attempts currently executing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_processing_seconds",
			Help:      "Duration of successful attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	c.registry.MustRegister(
		c.enqueued,
		c.started,
		c.completed,
		c.retries,
		c.failed,
		c.released,
		c.inFlight,
		c.duration,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the underlying registry, e.g. for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) OnEnqueued(ir.WorkItem) {
	c.enqueued.Inc()
}

func (c *Collector) OnStarted(_ ir.WorkItem, worker string) {
	c.started.WithLabelValues(worker).Inc()
	c.inFlight.Inc()
}

func (c *Collector) OnCompleted(_ ir.WorkItem, elapsed time.Duration) {
	c.completed.Inc()
	c.inFlight.Dec()
	c.duration.Observe(elapsed.Seconds())
}

func (c *Collector) OnRetrying(ir.WorkItem, int) {
	c.retries.Inc()
	c.inFlight.Dec()
}

func (c *Collector) OnFailedPermanently(ir.WorkItem) {
	c.failed.Inc()
	c.inFlight.Dec()
}

// OnReleased counts a shutdown release. Only an item interrupted while
// Processing was still counted in flight.
func (c *Collector) OnReleased(_ ir.WorkItem, from ir.Status) {
	c.released.Inc()
	if from == ir.StatusProcessing {
		c.inFlight.Dec()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics and /healthz on addr until ctx ends.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
