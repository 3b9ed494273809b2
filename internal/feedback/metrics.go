package feedback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// judgementsTotal counts recorded judgements by kind
var judgementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "brewtune_judgements_total",
	Help: "Feedback judgements recorded by kind",
}, []string{"kind"})
