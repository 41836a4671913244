// Package metrics exposes Prometheus counters for graph creation runs.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runMetrics struct {
	once sync.Once

	files          *prometheus.CounterVec
	chunks         prometheus.Counter
	entities       prometheus.Counter
	relationships  prometheus.Counter
	dropped        prometheus.Counter
	deletions      prometheus.Counter
	deleteFailures prometheus.Counter
	merges         prometheus.Counter
	runs           *prometheus.CounterVec

	fileDuration prometheus.Histogram
	runDuration  prometheus.Histogram
}

var m runMetrics

func (m *runMetrics) init() {
	m.once.Do(func() {
		m.files = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "graphrag_files_processed_total", Help: "Files written to the graph, by kind"}, []string{"kind"})
		m.chunks = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_chunks_total", Help: "Chunks written"})
		m.entities = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_entities_total", Help: "Entities upserted"})
		m.relationships = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_relationships_total", Help: "Relationships written"})
		m.dropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_relationships_dropped_total", Help: "Relationships dropped for missing endpoints"})
		m.deletions = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_deletions_total", Help: "Documents deleted by reconciliation"})
		m.deleteFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_deletion_failures_total", Help: "Document deletions that failed"})
		m.merges = prometheus.NewCounter(prometheus.CounterOpts{Name: "graphrag_merges_total", Help: "Entity merges executed"})
		m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "graphrag_runs_total", Help: "Pipeline runs, by outcome"}, []string{"outcome"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
		m.fileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "graphrag_file_seconds", Help: "Time to extract one file", Buckets: buckets})
		m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "graphrag_run_seconds", Help: "Time for a whole run", Buckets: prometheus.ExponentialBuckets(1, 2, 12)})

		prometheus.MustRegister(
			m.files, m.chunks, m.entities, m.relationships, m.dropped,
			m.deletions, m.deleteFailures, m.merges, m.runs,
			m.fileDuration, m.runDuration,
		)
	})
}

// RecordFile counts one written file of the given kind ("doc" or "code").
func RecordFile(kind string, d time.Duration) {
	m.init()
	m.files.WithLabelValues(kind).Inc()
	m.fileDuration.Observe(d.Seconds())
}

// RecordGraph adds the record counts of one InsertCustomGraph call.
func RecordGraph(chunks, entities, relationships, dropped int) {
	m.init()
	m.chunks.Add(float64(chunks))
	m.entities.Add(float64(entities))
	m.relationships.Add(float64(relationships))
	m.dropped.Add(float64(dropped))
}

// RecordDeletions counts reconciliation deletions.
func RecordDeletions(deleted, failed int) {
	m.init()
	m.deletions.Add(float64(deleted))
	m.deleteFailures.Add(float64(failed))
}

// RecordMerges counts executed merges.
func RecordMerges(n int) {
	m.init()
	m.merges.Add(float64(n))
}

// RecordRun observes a finished run.
func RecordRun(d time.Duration, err error) {
	m.init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	m.init()
	return promhttp.Handler()
}
