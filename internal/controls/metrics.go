package controls

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ModeChanges *prometheus.CounterVec
	SystemMode  *prometheus.GaugeVec
	Cancelled   *prometheus.CounterVec
}

func (m *Metrics) IncModeChange(action string) {
	if m == nil || m.ModeChanges == nil {
		return
	}

	m.ModeChanges.WithLabelValues(action).Inc()
}

// SetMode sets the gauge for the active mode to 1 and the others to 0. The
// "paused" series tracks the pause flag.
func (m *Metrics) SetMode(s State) {
	if m == nil || m.SystemMode == nil {
		return
	}

	for _, mode := range Modes {
		v := 0.0
		if mode == s.Mode {
			v = 1
		}
		m.SystemMode.WithLabelValues(string(mode)).Set(v)
	}
	paused := 0.0
	if s.Paused {
		paused = 1
	}
	m.SystemMode.WithLabelValues("paused").Set(paused)
}

func (m *Metrics) AddCancelled(result string, n int) {
	if m == nil || m.Cancelled == nil || n == 0 {
		return
	}

	m.Cancelled.WithLabelValues(result).Add(float64(n))
}
