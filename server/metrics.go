package server

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records agent activity for /metrics. It implements agent.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	turns       *prometheus.CounterVec
	toolCalls   *prometheus.CounterVec
	schedules   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentchat_connections",
			Help: "Open client connections",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentchat_turns_total",
			Help: "Agent turns started",
		}, []string{"agent"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentchat_tool_calls_total",
			Help: "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		schedules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentchat_scheduled_tasks_fired_total",
			Help: "Scheduled tasks fired",
		}, []string{"agent"}),
	}
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agentchat_goroutines",
		Help: "Number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(m.connections, m.turns, m.toolCalls, m.schedules, goroutines)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened(string) { m.connections.Inc() }
func (m *Metrics) ConnectionClosed(string) { m.connections.Dec() }

func (m *Metrics) TurnStarted(agent string) { m.turns.WithLabelValues(agent).Inc() }

func (m *Metrics) ToolCalled(tool, outcome string) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ScheduleFired(agent string) { m.schedules.WithLabelValues(agent).Inc() }
