package api

// Futures and feeds. A Feed pairs an immutable snapshot with a live
// delta stream; the client closes the stream when done. Slow readers
// cannot stall flows - the journal drops their oldest rows and marks
// the loss.

import (
	"context"
	"sync"

	"github.com/Velocidex/ordereddict"
	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/acls"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/wire"
)

// A Future resolves to a flow's terminal result exactly once and
// caches it for later callers.
type Future struct {
	mu sync.Mutex

	result <-chan *flows.TerminalResult
	done   *flows.TerminalResult
}

func NewFuture(result <-chan *flows.TerminalResult) *Future {
	return &Future{result: result}
}

// Wait blocks until the flow terminates, returning its terminal
// error if any.
func (self *Future) Wait(ctx context.Context) error {
	terminal, err := self.terminal(ctx)
	if err != nil {
		return err
	}
	return terminal.Err
}

// Get waits for the terminal result and decodes the return value
// into target.
func (self *Future) Get(ctx context.Context, target interface{}) error {
	terminal, err := self.terminal(ctx)
	if err != nil {
		return err
	}

	if terminal.Err != nil {
		return terminal.Err
	}

	if terminal.Result == nil {
		return errors.New("flow returned no value")
	}
	return wire.UnmarshalPayload(terminal.Result, target)
}

func (self *Future) terminal(
	ctx context.Context) (*flows.TerminalResult, error) {

	self.mu.Lock()
	defer self.mu.Unlock()

	if self.done != nil {
		return self.done, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case terminal := <-self.result:
		self.done = terminal
		return terminal, nil
	}
}

// A state machine lifecycle event.
type StateMachineUpdate struct {
	// "Added" or "Removed". A "_Lost" update marks a gap caused by
	// slow consumption.
	Event     string
	RunId     string
	ClassName string
	Error     string
	Lost      bool
}

type StateMachinesFeed struct {
	Snapshot []*flows.Descriptor
	Updates  <-chan *StateMachineUpdate
	Cancel   func()
}

// StateMachinesFeed returns the live flows plus a stream of
// add/remove events. The subscription is taken before the snapshot,
// so an event may duplicate a snapshot entry but none is lost.
func (self *APIServer) StateMachinesFeed(
	principal string) (*StateMachinesFeed, error) {

	ok, err := acls.CheckAccess(self.config_obj, principal, acls.READ_RESULTS)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, PermissionDenied
	}

	rows, cancel := self.journal.Watch("StateMachines")
	snapshot := self.manager.Snapshot()

	updates := make(chan *StateMachineUpdate)
	go func() {
		defer close(updates)

		for row := range rows {
			updates <- rowToUpdate(row)
		}
	}()

	return &StateMachinesFeed{
		Snapshot: snapshot,
		Updates:  updates,
		Cancel:   cancel,
	}, nil
}

func rowToUpdate(row *ordereddict.Dict) *StateMachineUpdate {
	update := &StateMachineUpdate{}

	_, update.Lost = row.Get("_Lost")
	update.Event, _ = row.GetString("Event")
	update.RunId, _ = row.GetString("RunId")
	update.ClassName, _ = row.GetString("ClassName")
	update.Error, _ = row.GetString("Error")
	return update
}

// A run id to recorded transaction association.
type TransactionMapping struct {
	RunId  string
	TxHash string
}

type TransactionMappingFeed struct {
	Updates <-chan *TransactionMapping
	Cancel  func()
}

func (self *APIServer) TransactionMappingFeed(
	principal string) (*TransactionMappingFeed, error) {

	ok, err := acls.CheckAccess(self.config_obj, principal, acls.READ_RESULTS)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, PermissionDenied
	}

	rows, cancel := self.journal.Watch("TxMappings")

	updates := make(chan *TransactionMapping)
	go func() {
		defer close(updates)

		for row := range rows {
			mapping := &TransactionMapping{}
			mapping.RunId, _ = row.GetString("RunId")
			mapping.TxHash, _ = row.GetString("TxHash")
			updates <- mapping
		}
	}()

	return &TransactionMappingFeed{
		Updates: updates,
		Cancel:  cancel,
	}, nil
}
