package notifications

// Wakeup channels keyed by id. Listening returns a channel that is
// closed when someone notifies the id; the listener then goes back to
// the durable state to find out what actually happened. The flow
// manager notifies "Flow.<run-id>" when a flow terminates - the
// checkpoint store remains the authority on what a flow is waiting
// for.

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/services"
)

var (
	notificationsSentCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_send_count",
		Help: "Number of notification messages sent.",
	})
)

type NotificationService struct {
	mu sync.Mutex

	logger *logging.LogContext

	listeners map[string][]chan bool
}

func (self *NotificationService) ListenForNotification(
	id string) (<-chan bool, func()) {

	self.mu.Lock()
	defer self.mu.Unlock()

	listener := make(chan bool)
	self.listeners[id] = append(self.listeners[id], listener)

	return listener, func() {
		self.remove(id, listener)
	}
}

func (self *NotificationService) remove(id string, listener chan bool) {
	self.mu.Lock()
	defer self.mu.Unlock()

	listeners := self.listeners[id]
	result := make([]chan bool, 0, len(listeners))
	for _, item := range listeners {
		if item != listener {
			result = append(result, item)
		}
	}

	if len(result) == 0 {
		delete(self.listeners, id)
	} else {
		self.listeners[id] = result
	}
}

func (self *NotificationService) NotifyListener(id string) {
	self.mu.Lock()
	defer self.mu.Unlock()

	notificationsSentCounter.Inc()

	for _, listener := range self.listeners[id] {
		close(listener)
	}
	delete(self.listeners, id)
}

func StartNotificationService(
	ctx context.Context, wg *sync.WaitGroup,
	config_obj *config.Config) error {

	service := &NotificationService{
		logger:    logging.GetLogger(config_obj, &logging.NodeComponent),
		listeners: make(map[string][]chan bool),
	}

	services.RegisterNotifier(config_obj, service)
	service.logger.Info("<green>Starting</> Notification service.")
	return nil
}
