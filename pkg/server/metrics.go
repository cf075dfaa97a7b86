package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for the server and the
// script engine. It implements interp.Observer so the engine reports
// activity without importing this package.
type Metrics struct {
	srv       *Server
	startTime time.Time

	clientsConnected prometheus.Gauge
	channelsTotal    prometheus.Gauge
	rulesLoaded      prometheus.Gauge
	functionsLoaded  prometheus.Gauge
	deferredDepth    prometheus.Gauge

	eventsTotal   prometheus.Counter
	actionsTotal  prometheus.Counter
	syntaxErrors  prometheus.Counter
	deferredTotal *prometheus.CounterVec

	uptimeSeconds   prometheus.Gauge
	memoryHeapBytes prometheus.Gauge
	goroutines      prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics for the server.
func NewMetrics(srv *Server, startTime time.Time) *Metrics {
	m := &Metrics{
		srv:       srv,
		startTime: startTime,
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_clients_connected",
			Help: "Number of currently registered clients.",
		}),
		channelsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_channels_total",
			Help: "Number of live channels.",
		}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_rules_loaded",
			Help: "Number of event rules loaded from scripts.",
		}),
		functionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_functions_loaded",
			Help: "Number of user-defined script functions loaded.",
		}),
		deferredDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_deferred_depth",
			Help: "Destructive commands currently queued for deferred replay.",
		}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obbyscript_events_dispatched_total",
			Help: "Total events handed to the script engine.",
		}),
		actionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obbyscript_actions_executed_total",
			Help: "Total script actions executed.",
		}),
		syntaxErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "obbyscript_syntax_errors_total",
			Help: "Substitution syntax errors that aborted an action chain.",
		}),
		deferredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "obbyscript_deferred_total",
			Help: "Deferred destructive command outcomes.",
		}, []string{"outcome"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		memoryHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_memory_heap_bytes",
			Help: "Go heap memory allocated in bytes.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "obbyscript_goroutines",
			Help: "Number of active goroutines.",
		}),
	}

	prometheus.MustRegister(
		m.clientsConnected,
		m.channelsTotal,
		m.rulesLoaded,
		m.functionsLoaded,
		m.deferredDepth,
		m.eventsTotal,
		m.actionsTotal,
		m.syntaxErrors,
		m.deferredTotal,
		m.uptimeSeconds,
		m.memoryHeapBytes,
		m.goroutines,
	)

	return m
}

// --- interp.Observer ---

func (m *Metrics) EventDispatched() { m.eventsTotal.Inc() }
func (m *Metrics) ActionExecuted()  { m.actionsTotal.Inc() }
func (m *Metrics) SyntaxError()     { m.syntaxErrors.Inc() }
func (m *Metrics) DeferredQueued()  { m.deferredTotal.WithLabelValues("queued").Inc() }
func (m *Metrics) DeferredFlushed() { m.deferredTotal.WithLabelValues("flushed").Inc() }
func (m *Metrics) DeferredDropped() { m.deferredTotal.WithLabelValues("dropped").Inc() }

// Update refreshes all gauge metrics from current server state.
func (m *Metrics) Update() {
	m.clientsConnected.Set(float64(len(m.srv.World.users)))
	m.channelsTotal.Set(float64(len(m.srv.World.channels)))
	m.rulesLoaded.Set(float64(m.srv.Engine.RuleCount()))
	m.functionsLoaded.Set(float64(m.srv.Engine.FunctionCount()))
	m.deferredDepth.Set(float64(m.srv.Engine.DeferredCount()))

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	m.memoryHeapBytes.Set(float64(mem.HeapAlloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		promhttp.Handler().ServeHTTP(w, r)
	})
}
