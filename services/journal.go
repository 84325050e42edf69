package services

// The journal organizes the node's feed queues. Callers push rows
// under a queue name; watchers receive every row pushed after they
// registered. Queues used by the flow framework:
//
//   StateMachines      - Added / Removed flow lifecycle events
//   Progress.<run-id>  - progress tracker steps of one flow
//   TxMappings         - run id to recorded transaction mappings
//
// Watchers are independent; a slow watcher loses its oldest rows
// (replaced by a loss marker) rather than stalling flow progress.

import (
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/varunkm/corda/config"
)

var (
	journal_mu sync.Mutex
	g_journal  = make(map[string]JournalService)
)

type JournalService interface {
	Watch(queue_name string) (output <-chan *ordereddict.Dict, cancel func())
	PushRow(queue_name string, row *ordereddict.Dict)
}

func GetJournal(config_obj *config.Config) (JournalService, error) {
	journal_mu.Lock()
	defer journal_mu.Unlock()

	journal, pres := g_journal[config_obj.PartyName]
	if !pres {
		return nil, NotRegisteredError
	}
	return journal, nil
}

func RegisterJournal(config_obj *config.Config, journal JournalService) {
	journal_mu.Lock()
	defer journal_mu.Unlock()

	g_journal[config_obj.PartyName] = journal
}
