package services

// The ledger is an external collaborator - validation, notarization
// and storage of transactions happen elsewhere. The flow framework
// only needs to know when a transaction becomes durable, so flows
// suspended on WaitForLedgerCommit can resume.

import (
	"sync"

	"github.com/varunkm/corda/config"
)

var (
	ledger_mu sync.Mutex
	g_ledger  = make(map[string]Ledger)
)

type Ledger interface {
	// The returned channel is closed once tx_hash is persisted. If
	// it already is, the channel is closed on return.
	WaitForCommit(tx_hash string) <-chan struct{}

	// Called by the ledger engine when a transaction is persisted.
	RecordTransaction(tx_hash string)
}

func GetLedger(config_obj *config.Config) (Ledger, error) {
	ledger_mu.Lock()
	defer ledger_mu.Unlock()

	ledger, pres := g_ledger[config_obj.PartyName]
	if !pres {
		return nil, NotRegisteredError
	}
	return ledger, nil
}

func RegisterLedger(config_obj *config.Config, ledger Ledger) {
	ledger_mu.Lock()
	defer ledger_mu.Unlock()

	g_ledger[config_obj.PartyName] = ledger
}

// A minimal in-process ledger, enough for nodes whose transaction
// engine runs in the same process and for tests.
type InMemoryLedger struct {
	mu sync.Mutex

	committed map[string]bool
	waiters   map[string][]chan struct{}
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		committed: make(map[string]bool),
		waiters:   make(map[string][]chan struct{}),
	}
}

func (self *InMemoryLedger) WaitForCommit(tx_hash string) <-chan struct{} {
	self.mu.Lock()
	defer self.mu.Unlock()

	done := make(chan struct{})
	if self.committed[tx_hash] {
		close(done)
		return done
	}

	self.waiters[tx_hash] = append(self.waiters[tx_hash], done)
	return done
}

func (self *InMemoryLedger) RecordTransaction(tx_hash string) {
	self.mu.Lock()
	defer self.mu.Unlock()

	if self.committed[tx_hash] {
		return
	}
	self.committed[tx_hash] = true

	for _, done := range self.waiters[tx_hash] {
		close(done)
	}
	delete(self.waiters, tx_hash)
}
