package tuner

import "github.com/prometheus/client_golang/prometheus"

const namespace = "paratune"

var (
	iterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tuner",
		Name:      "iterations_total",
		Help:      "Number of optimizer iterations completed.",
	}, []string{"optimizer"})

	bestValue = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tuner",
		Name:      "best_value",
		Help:      "Lowest metric value found by the running tuner.",
	}, []string{"optimizer"})
)

func init() {
	prometheus.MustRegister(iterations)
	prometheus.MustRegister(bestValue)
}
