package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of occupied registry slots",
	})

	RejectedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rejected_connections_total",
		Help: "Connections closed at accept time because the registry was full",
	})

	AcceptErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_accept_errors_total",
		Help: "Accept calls that failed and were retried",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Broadcast messages by kind (room, server)",
	}, []string{"kind"})

	BroadcastDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_broadcast_seconds",
		Help:    "Time to log and fan out one broadcast",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	WriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_write_failures_total",
		Help: "Recipient writes that failed during a broadcast",
	})

	ChatLogFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_log_failures_total",
		Help: "Chat lines that could not be appended to the chat log",
	})

	AdminCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_admin_commands_total",
		Help: "Operator console commands by kind",
	}, []string{"command"})

	KickedClients = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_kicked_clients_total",
		Help: "Clients disconnected by an operator",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(RejectedConnections)
	prometheus.MustRegister(AcceptErrors)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(BroadcastDuration)
	prometheus.MustRegister(WriteFailures)
	prometheus.MustRegister(ChatLogFailures)
	prometheus.MustRegister(AdminCommands)
	prometheus.MustRegister(KickedClients)
}
