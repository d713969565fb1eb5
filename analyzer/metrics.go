package analyzer

import (
	"github.com/aluiziolira/resale-scout/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the orchestrator.
type Metrics struct {
	AnalysesTotal     *prometheus.CounterVec
	CacheLookupsTotal *prometheus.CounterVec
	PriceSourceTotal  *prometheus.CounterVec
}

// NewMetrics constructs the collectors and registers them on reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	analyses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_analyses_total",
			Help: "Analyses by outcome.",
		},
		[]string{"outcome"},
	)
	lookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_cache_lookups_total",
			Help: "Result cache lookups by result.",
		},
		[]string{"result"},
	)
	sources := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resale_price_source_total",
			Help: "Reported prices by the extraction step that produced them.",
		},
		[]string{"source"},
	)

	if reg != nil {
		reg.MustRegister(analyses, lookups, sources)
	}

	return &Metrics{
		AnalysesTotal:     analyses,
		CacheLookupsTotal: lookups,
		PriceSourceTotal:  sources,
	}
}

// IncAnalysis counts one finished analysis.
func (m *Metrics) IncAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// IncPriceSource counts the source of a reported price.
func (m *Metrics) IncPriceSource(src models.PriceSource) {
	if m == nil {
		return
	}
	label := string(src)
	if label == "" {
		label = "none"
	}
	m.PriceSourceTotal.WithLabelValues(label).Inc()
}
