package flows

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowsResumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flows_resumed",
		Help: "Number of flows resurrected from checkpoints.",
	})

	checkpointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flow_checkpoints_written",
		Help: "Number of checkpoint writes.",
	})

	messagesDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_messages_deduplicated",
		Help: "Number of redelivered session messages discarded.",
	})
)
