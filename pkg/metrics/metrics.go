// Package metrics exposes the Prometheus instrumentation shared
// across index components. It observes the insert/delete/dedup/
// reclaim/connection-shim protocols from the outside — recording
// calls are additive and never change control flow.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether metrics are collected and where they are
// served.
type Config struct {
	Enabled bool
	Port    int
	Path    string
}

// DefaultConfig matches the rest of the ambient stack's convention of
// a safe, always-usable zero value.
func DefaultConfig() Config {
	return Config{Enabled: true, Port: 9090, Path: "/metrics"}
}

// Collector holds every metric the index reports. A disabled
// Collector's Record* methods are no-ops, so call sites never need to
// branch on whether metrics are enabled.
type Collector struct {
	cfg      Config
	registry *prometheus.Registry
	server   *http.Server

	inserts        *prometheus.CounterVec
	deletes        *prometheus.CounterVec
	dedupHits      prometheus.Counter
	dedupMisses    prometheus.Counter
	reclaimEnqueue prometheus.Counter
	reclaimDrained *prometheus.CounterVec
	storeRetries   prometheus.Counter
	storeFailures  prometheus.Counter
	operationTime  *prometheus.HistogramVec

	fsFileCount *prometheus.GaugeVec
	fsSize      *prometheus.GaugeVec
}

// New builds a Collector. When cfg.Enabled is false, the returned
// Collector still satisfies every method call but never touches a
// registry.
func New(cfg Config) *Collector {
	c := &Collector{cfg: cfg}
	if !cfg.Enabled {
		return c
	}

	c.registry = prometheus.NewRegistry()
	namespace := "pathindex"

	c.inserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "inserts_total", Help: "PathMap inserts by outcome.",
	}, []string{"outcome"})
	c.deletes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "deletes_total", Help: "PathMap deletes by outcome.",
	}, []string{"outcome"})
	c.dedupHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "dedup_hits_total", Help: "Inserts resolved to an existing checksum.",
	})
	c.dedupMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "dedup_misses_total", Help: "Inserts that registered a new checksum.",
	})
	c.reclaimEnqueue = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "reclaim_enqueued_total", Help: "Blobs enqueued for reclamation.",
	})
	c.reclaimDrained = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "reclaim_drained_total", Help: "Reclaim sweep outcomes.",
	}, []string{"outcome"})
	c.storeRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "store_guard_retries_total", Help: "Connection-shim reinit-and-retry attempts.",
	})
	c.storeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "store_guard_failures_total", Help: "Connection-shim retries that still failed.",
	})
	c.operationTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "operation_duration_seconds", Help: "Latency of index operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	c.fsFileCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "filesystem_file_count", Help: "Live file count per filesystem.",
	}, []string{"filesystem"})
	c.fsSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "filesystem_size_bytes", Help: "Live byte size per filesystem.",
	}, []string{"filesystem"})

	c.registry.MustRegister(
		c.inserts, c.deletes, c.dedupHits, c.dedupMisses,
		c.reclaimEnqueue, c.reclaimDrained, c.storeRetries, c.storeFailures,
		c.operationTime, c.fsFileCount, c.fsSize,
	)
	return c
}

// Start serves the Prometheus exposition endpoint in the background.
// It is a no-op when metrics are disabled.
func (c *Collector) Start(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.cfg.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts down the exposition endpoint, if one was started.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *Collector) RecordInsert(outcome string) {
	if !c.cfg.Enabled {
		return
	}
	c.inserts.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDelete(outcome string) {
	if !c.cfg.Enabled {
		return
	}
	c.deletes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDedup(hit bool) {
	if !c.cfg.Enabled {
		return
	}
	if hit {
		c.dedupHits.Inc()
	} else {
		c.dedupMisses.Inc()
	}
}

func (c *Collector) RecordReclaimEnqueue() {
	if !c.cfg.Enabled {
		return
	}
	c.reclaimEnqueue.Inc()
}

func (c *Collector) RecordReclaimDrain(outcome string) {
	if !c.cfg.Enabled {
		return
	}
	c.reclaimDrained.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStoreRetry() {
	if !c.cfg.Enabled {
		return
	}
	c.storeRetries.Inc()
}

func (c *Collector) RecordStoreFailure() {
	if !c.cfg.Enabled {
		return
	}
	c.storeFailures.Inc()
}

func (c *Collector) ObserveOperation(operation string, duration time.Duration) {
	if !c.cfg.Enabled {
		return
	}
	c.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) SetFilesystemGauges(filesystem string, fileCount, size int64) {
	if !c.cfg.Enabled {
		return
	}
	c.fsFileCount.WithLabelValues(filesystem).Set(float64(fileCount))
	c.fsSize.WithLabelValues(filesystem).Set(float64(size))
}
