package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "paratune"
	promSubsystem = "transport"
)

var (
	sent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "messages_sent_total",
		Help:      "messages sent, by tag",
	}, []string{"tag"})
	received = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "messages_received_total",
		Help:      "messages delivered to a local mailbox, by tag",
	}, []string{"tag"})
	sentBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "sent_bytes_total",
		Help:      "message body bytes sent",
	})
	connectedRanks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystem,
		Name:      "connected_ranks",
		Help:      "ranks currently connected to the hub",
	})
)

func init() {
	prometheus.MustRegister(sent, received, sentBytes, connectedRanks)
}
