package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ComposeTotal counts post submissions by terminal status
var ComposeTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bereal_compose_total",
		Help: "Post submissions by terminal status.",
	},
	[]string{"status"},
)

// EnrichmentTotal counts best-effort enrichment outcomes by stage and result
var EnrichmentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "bereal_enrichment_total",
		Help: "Location enrichment outcomes.",
	},
	[]string{"stage", "result"},
)
