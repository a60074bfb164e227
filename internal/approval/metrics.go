package approval

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"frameworks/herald/internal/apperr"
)

type Metrics struct {
	Transitions *prometheus.CounterVec
}

// Observe counts one attempted operation labelled by its outcome.
func (m *Metrics) Observe(action string, err error) {
	if m == nil || m.Transitions == nil {
		return
	}

	result := "success"
	if err != nil {
		result = strings.ToLower(string(apperr.GetCode(err)))
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}
