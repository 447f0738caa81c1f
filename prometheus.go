package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes pipeline gauges to Prometheus. Register it with a
// prometheus.Registerer; each scrape reads current counts from the store.
type Collector struct {
	store StateStore

	activeDesc *prometheus.Desc
	statusDesc *prometheus.Desc
}

// NewCollector creates a Prometheus collector over a state store.
func NewCollector(store StateStore) *Collector {
	return &Collector{
		store: store,
		activeDesc: prometheus.NewDesc(
			"pipeline_active_candidates",
			"Active candidates per template and phase.",
			[]string{"template", "phase"}, nil,
		),
		statusDesc: prometheus.NewDesc(
			"pipeline_candidates_total",
			"Candidate workflows per template and status.",
			[]string{"template", "status"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	ch <- c.statusDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	states, err := c.store.ListStates(context.Background())
	if err != nil {
		return
	}

	type phaseKey struct{ template, phase string }
	type statusKey struct {
		template string
		status   WorkflowStatus
	}
	active := map[phaseKey]int{}
	byStatus := map[statusKey]int{}
	for _, state := range states {
		if state.Status == StatusActive {
			active[phaseKey{state.TemplateID, state.CurrentPhase}]++
		}
		byStatus[statusKey{state.TemplateID, state.Status}]++
	}

	for key, count := range active {
		ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue,
			float64(count), key.template, key.phase)
	}
	for key, count := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue,
			float64(count), key.template, string(key.status))
	}
}
