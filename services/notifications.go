package services

// Notifications are low latency wakeups keyed by an opaque id. A
// listener blocks on the returned channel; the channel is closed when
// the event fires. Notifications carry no data and are not reliable -
// they are an optimization over polling, and the flow framework only
// uses them where the durable state (checkpoint, ledger) is the
// authority.

import (
	"sync"

	"github.com/varunkm/corda/config"
)

var (
	notifier_mu sync.Mutex
	g_notifier  = make(map[string]Notifier)
)

type Notifier interface {
	ListenForNotification(id string) (<-chan bool, func())
	NotifyListener(id string)
}

func GetNotifier(config_obj *config.Config) (Notifier, error) {
	notifier_mu.Lock()
	defer notifier_mu.Unlock()

	notifier, pres := g_notifier[config_obj.PartyName]
	if !pres {
		return nil, NotRegisteredError
	}
	return notifier, nil
}

func RegisterNotifier(config_obj *config.Config, notifier Notifier) {
	notifier_mu.Lock()
	defer notifier_mu.Unlock()

	g_notifier[config_obj.PartyName] = notifier
}
