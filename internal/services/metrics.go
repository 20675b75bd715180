package services

import "github.com/prometheus/client_golang/prometheus"

// Omission reasons for dm_chat_list_omitted_total.
const (
	omitMissingUser   = "missing_user"
	omitUserLookup    = "user_lookup_failed"
	omitHistoryLookup = "history_failed"
)

var (
	// messagesSent counts messages persisted by MessageService.Send.
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_messages_sent_total",
			Help: "Total number of direct messages stored.",
		},
	)

	// chatListDuration observes the full aggregation time per chat list.
	chatListDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dm_chat_list_duration_seconds",
			Help:    "Time spent building a user's chat list.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// chatListOmitted counts correspondents dropped from a chat list.
	chatListOmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_chat_list_omitted_total",
			Help: "Correspondents left out of a chat list, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(messagesSent, chatListDuration, chatListOmitted)
}
