package metrics

import "github.com/prometheus/client_golang/prometheus"

// Contract mutation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ContractMetrics counts ContractStore mutations by operation and outcome.
type ContractMetrics struct {
	mutations *prometheus.CounterVec
}

// NewContractMetrics registers the contract collectors on the provided registerer.
func NewContractMetrics(reg prometheus.Registerer) *ContractMetrics {
	if reg == nil {
		return &ContractMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contract_mutations_total",
		Help:      "Contract mutations grouped by operation and outcome.",
	}, []string{"operation", "outcome"})
	reg.MustRegister(mutations)
	return &ContractMetrics{mutations: mutations}
}

// Observe records one mutation attempt; a nil err counts as success.
func (m *ContractMetrics) Observe(operation string, err error) {
	if m == nil || m.mutations == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.mutations.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}
