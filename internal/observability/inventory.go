package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// InventoryMetrics counts ledger activity. It satisfies inventory.MetricsRecorder.
type InventoryMetrics struct {
	movements   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	retries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewInventoryMetrics registers the inventory collectors against registerer.
func NewInventoryMetrics(registerer prometheus.Registerer) *InventoryMetrics {
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_inventory_movements_total",
		Help: "Committed stock movements by movement type.",
	}, []string{"type"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_inventory_rejections_total",
		Help: "Rejected inventory operations by operation and error kind.",
	}, []string{"op", "kind"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_inventory_retries_total",
		Help: "Ledger units retried after losing a write race.",
	}, []string{"op"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockflow_transfer_transitions_total",
		Help: "Warehouse transfer state transitions by resulting status.",
	}, []string{"status"})
	registerer.MustRegister(movements, rejections, retries, transitions)
	return &InventoryMetrics{movements: movements, rejections: rejections, retries: retries, transitions: transitions}
}

func (m *InventoryMetrics) ObserveMovement(movementType string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(movementType).Inc()
}

func (m *InventoryMetrics) ObserveRejection(op, kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(op, kind).Inc()
}

func (m *InventoryMetrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *InventoryMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}
