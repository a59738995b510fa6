// Package metrics owns the Supervisor's small Prometheus registry. Nothing
// in this spec calls for an HTTP exposition endpoint, so the registry here
// is never wired to a promhttp.Handler; it exists purely to give the
// "stats" IPC command a concurrency-safe, typed source of truth instead of
// a scatter of mutex-guarded integers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds the daemon-wide counters and gauges described in §4.7's
// "Domain addition — counters": files scanned, files skipped, rescans
// triggered, active IPC connections, and the current cache strategy.
type Registry struct {
	registry *prometheus.Registry

	filesScanned   prometheus.Counter
	filesSkipped   prometheus.Counter
	rescans        prometheus.Counter
	connections    prometheus.Gauge
	strategyMemory prometheus.Gauge
	strategyHybrid prometheus.Gauge
	strategyFile   prometheus.Gauge
}

// New constructs a Registry with every metric registered against its own
// private prometheus.Registry, never the global default, since there is no
// exposition surface for it to feed.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		filesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discovery_files_scanned_total",
			Help: "Total number of files successfully parsed.",
		}),
		filesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discovery_files_skipped_total",
			Help: "Total number of files skipped (oversize, unreadable, or failing to parse).",
		}),
		rescans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discovery_rescans_total",
			Help: "Total number of watcher-triggered incremental rescans.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discovery_ipc_connections_active",
			Help: "Number of currently open IPC connections.",
		}),
		strategyMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "discovery_cache_strategy_active",
			Help:        "1 if this cache strategy is currently active, 0 otherwise.",
			ConstLabels: prometheus.Labels{"strategy": "memory"},
		}),
		strategyHybrid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "discovery_cache_strategy_active",
			Help:        "1 if this cache strategy is currently active, 0 otherwise.",
			ConstLabels: prometheus.Labels{"strategy": "hybrid"},
		}),
		strategyFile: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "discovery_cache_strategy_active",
			Help:        "1 if this cache strategy is currently active, 0 otherwise.",
			ConstLabels: prometheus.Labels{"strategy": "file"},
		}),
	}

	reg.MustRegister(
		r.filesScanned, r.filesSkipped, r.rescans, r.connections,
		r.strategyMemory, r.strategyHybrid, r.strategyFile,
	)
	return r
}

// AddFilesScanned increments the scanned-files counter by n.
func (r *Registry) AddFilesScanned(n int) {
	r.filesScanned.Add(float64(n))
}

// AddFilesSkipped increments the skipped-files counter by n.
func (r *Registry) AddFilesSkipped(n int) {
	r.filesSkipped.Add(float64(n))
}

// IncRescans records one watcher-triggered rescan.
func (r *Registry) IncRescans() {
	r.rescans.Inc()
}

// ConnectionOpened records a new IPC connection.
func (r *Registry) ConnectionOpened() {
	r.connections.Inc()
}

// ConnectionClosed records an IPC connection closing.
func (r *Registry) ConnectionClosed() {
	r.connections.Dec()
}

// SetStrategy records which cache strategy is currently active, clearing
// the other two gauges so exactly one reads 1 at a time.
func (r *Registry) SetStrategy(name string) {
	r.strategyMemory.Set(0)
	r.strategyHybrid.Set(0)
	r.strategyFile.Set(0)
	switch name {
	case "memory":
		r.strategyMemory.Set(1)
	case "hybrid":
		r.strategyHybrid.Set(1)
	case "file":
		r.strategyFile.Set(1)
	}
}

// Snapshot is a point-in-time read of every counter/gauge, used to answer
// the "stats" IPC command.
type Snapshot struct {
	FilesScanned int64
	FilesSkipped int64
	Rescans      int64
	Connections  int64
}

// Snapshot reads the current value of every metric. Prometheus counters and
// gauges don't expose a direct getter, so values are read the same way an
// exposition handler would: via Write into a dto.Metric.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned: int64(readCounter(r.filesScanned)),
		FilesSkipped: int64(readCounter(r.filesSkipped)),
		Rescans:      int64(readCounter(r.rescans)),
		Connections:  int64(readGauge(r.connections)),
	}
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func readGauge(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
