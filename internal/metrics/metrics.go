package metrics

import (
	"strconv"

	"tradingboard/internal/common"
	"tradingboard/internal/engine"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements engine.Observer and engine.Reporter.
type Metrics struct {
	Mutations  *prometheus.CounterVec
	Executions *prometheus.CounterVec
	Notional   prometheus.Counter
	BookSize   prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_mutations_total",
			Help: "Book mutations by kind and whether they changed the book.",
		}, []string{"kind", "applied"}),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_executions_total",
			Help: "Committed executions by side.",
		}, []string{"side"}),
		Notional: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_executed_notional_total",
			Help: "Sum of committed quantities.",
		}),
		BookSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_book_size",
			Help: "Orders currently on the board.",
		}),
	}
	reg.MustRegister(m.Mutations, m.Executions, m.Notional, m.BookSize)
	return m
}

func (m *Metrics) ObserveMutation(mutation engine.Mutation, applied bool, size int) {
	m.Mutations.WithLabelValues(mutation.Kind.String(), strconv.FormatBool(applied)).Inc()
	m.BookSize.Set(float64(size))
}

func (m *Metrics) ReportExecution(exec common.Execution) {
	m.Executions.WithLabelValues(exec.Side.String()).Inc()
	m.Notional.Add(exec.Quantity.InexactFloat64())
}
