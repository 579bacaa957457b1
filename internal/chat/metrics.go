package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of clients that completed the handshake and are still connected",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Chat lines processed by outcome",
	}, []string{"type"})

	HandshakeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_handshake_failures_total",
		Help: "Sessions closed before reaching the chat loop, by reason",
	}, []string{"reason"})

	HubDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_hub_dropped_total",
		Help: "Messages evicted from lagging subscriber queues",
	})

	HistoryRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_history_records",
		Help: "Records currently retained for replay",
	})

	BroadcastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_broadcast_seconds",
		Help:    "Time to format, store and publish one chat line",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(HandshakeFailures)
	prometheus.MustRegister(HubDropped)
	prometheus.MustRegister(HistoryRecords)
	prometheus.MustRegister(BroadcastDuration)
}
