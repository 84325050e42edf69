package flowmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flows_started",
		Help: "Number of flows started locally.",
	})

	respondersStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flows_responders_started",
		Help: "Number of responder flows spawned for peer inits.",
	})

	flowsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flows_errored",
		Help: "Number of flows finished with an error.",
	})

	sessionRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_inits_rejected",
		Help: "Number of SessionInit messages rejected.",
	})

	messagesSeenTwice = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_seen_twice",
		Help: "Number of inbound messages recognized as redelivered.",
	})
)
