// Package metrics counts what the tailer reads, matches and delivers, and
// renders the counters in the Prometheus text exposition format.
//
// All recording methods are safe to call on a nil *Metrics, so components can
// be built without metrics in tests.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "tailalert"

// Family names, exported for callers of Snapshot.
const (
	LinesRead      = namespace + "_lines_read_total"
	LinesMatched   = namespace + "_lines_matched_total"
	FileEvents     = namespace + "_file_events_total"
	Truncations    = namespace + "_truncations_total"
	Deliveries     = namespace + "_deliveries_total"
	DeliveryFailed = namespace + "_delivery_failures_total"
	QueueDepth     = namespace + "_queue_depth"
)

// Metrics owns a private registry so tests never collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	linesRead    prometheus.Counter
	linesMatched prometheus.Counter
	fileEvents   *prometheus.CounterVec
	truncations  prometheus.Counter
	delivered    *prometheus.CounterVec
	failed       *prometheus.CounterVec
}

// New registers the tailer's collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: LinesRead,
			Help: "Lines read from the watched file.",
		}),
		linesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: LinesMatched,
			Help: "Lines that matched the alert pattern.",
		}),
		fileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: FileEvents,
			Help: "Change events handled for the watched file, by kind.",
		}, []string{"kind"}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: Truncations,
			Help: "Times the watched file was found shorter than the read offset and re-read from the start.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: Deliveries,
			Help: "Alerts delivered, by destination.",
		}, []string{"destination"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: DeliveryFailed,
			Help: "Alert deliveries that failed, by destination.",
		}, []string{"destination"}),
	}
	m.reg.MustRegister(m.linesRead, m.linesMatched, m.fileEvents, m.truncations, m.delivered, m.failed)
	return m
}

// ObserveQueue exports depth() as the queue depth gauge. Call it once.
func (m *Metrics) ObserveQueue(depth func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: QueueDepth,
		Help: "Alerts waiting for the dispatcher.",
	}, func() float64 { return float64(depth()) }))
}

// Read records n lines read in one cycle.
func (m *Metrics) Read(n int) {
	if m == nil {
		return
	}
	m.linesRead.Add(float64(n))
}

// Matched records one line that matched.
func (m *Metrics) Matched() {
	if m == nil {
		return
	}
	m.linesMatched.Inc()
}

// Event records one handled file event of the given kind (create|modify|prime).
func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.fileEvents.WithLabelValues(kind).Inc()
}

// Truncated records n rewinds caused by the file shrinking in place.
func (m *Metrics) Truncated(n int) {
	if m == nil {
		return
	}
	m.truncations.Add(float64(n))
}

// Delivered records a successful delivery to destination.
func (m *Metrics) Delivered(destination string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(destination).Inc()
}

// Failed records a failed delivery to destination.
func (m *Metrics) Failed(destination string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(destination).Inc()
}

// Snapshot gathers every family and returns each one's value summed across
// labels, keyed by family name.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	if m == nil {
		return map[string]float64{}, nil
	}
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = sumFamily(mf)
	}
	return out, nil
}

// ServeHTTP writes all families in the Prometheus text format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	mfs, err := m.reg.Gather()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
