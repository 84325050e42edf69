package flows

// The Coroutine is the API a flow step programs against. The four
// suspending primitives return a sentinel through the step's error
// result; the executor interprets the sentinel, checkpoints and parks
// the flow. A step must return the result of a suspending call
// immediately - the continuation is the next step.

import (
	"time"

	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/wire"
)

type WaitKind int

const (
	WAIT_NONE WaitKind = iota
	WAIT_RECEIVE
	WAIT_SLEEP
	WAIT_LEDGER
)

// What a parked flow is waiting for. Serialized into the checkpoint
// so a resurrected flow parks on the same condition.
type Wait struct {
	Kind      WaitKind
	SessionId wire.SessionID
	TypeHint  string

	// Absolute, so it survives a restart. For WAIT_RECEIVE a non
	// zero deadline is a receive timeout.
	DeadlineUnixNano int64

	TxHash string

	// Guards against timer events for a wait that was already
	// satisfied.
	Epoch uint64
}

// Sentinels recognized by the executor.
type suspendRequest struct{}

func (self *suspendRequest) Error() string { return "flow suspended" }

type subflowRequest struct {
	flow Flow
}

func (self *subflowRequest) Error() string { return "sub-flow requested" }

type returnRequest struct {
	result []byte
}

func (self *returnRequest) Error() string { return "flow returned" }

type Coroutine struct {
	exec *Executor

	delivered     []byte
	delivered_set bool
}

// RunId of the executing flow.
func (self *Coroutine) RunId() string {
	return self.exec.run_id
}

// Us returns the identity this node runs as.
func (self *Coroutine) Us() wire.Party {
	return wire.Party(self.exec.deps.ConfigObj.PartyName)
}

// Send serializes value into a SessionData on the session with party,
// creating the session with a SessionInit if none exists yet. It does
// not suspend.
func (self *Coroutine) Send(party wire.Party, value interface{}) error {
	return self.exec.stageSend(party, value)
}

// Receive suspends until a SessionData arrives from party. The
// payload is consumed in the next step with Payload(). type_hint
// names the expected type for diagnostics.
func (self *Coroutine) Receive(party wire.Party, type_hint string) error {
	return self.receive(party, type_hint, 0)
}

// ReceiveWithTimeout is Receive with an upper bound. On expiry the
// flow fails with UnexpectedFlowEnd.
func (self *Coroutine) ReceiveWithTimeout(
	party wire.Party, type_hint string, timeout time.Duration) error {
	deadline := self.exec.deps.Clock.Now().Add(timeout).UnixNano()
	return self.receive(party, type_hint, deadline)
}

func (self *Coroutine) receive(
	party wire.Party, type_hint string, deadline int64) error {

	session, err := self.exec.sessionFor(party)
	if err != nil {
		return err
	}

	session.ExpectedTypeHint = type_hint
	self.exec.park(&Wait{
		Kind:             WAIT_RECEIVE,
		SessionId:        session.OwnId,
		TypeHint:         type_hint,
		DeadlineUnixNano: deadline,
	})
	return &suspendRequest{}
}

// SendAndReceive enqueues the send and suspends for the reply as a
// single suspension point.
func (self *Coroutine) SendAndReceive(
	party wire.Party, value interface{}, type_hint string) error {
	err := self.Send(party, value)
	if err != nil {
		return err
	}
	return self.Receive(party, type_hint)
}

// Payload decodes the value delivered by the suspension that ended
// the previous step - a received SessionData or a sub-flow result.
func (self *Coroutine) Payload(target interface{}) error {
	if !self.delivered_set {
		return errors.New("no payload was delivered to this step")
	}
	return wire.UnmarshalPayload(self.delivered, target)
}

// Sleep suspends the flow until the duration elapses.
func (self *Coroutine) Sleep(duration time.Duration) error {
	self.exec.park(&Wait{
		Kind: WAIT_SLEEP,
		DeadlineUnixNano: self.exec.deps.Clock.Now().
			Add(duration).UnixNano(),
	})
	return &suspendRequest{}
}

// WaitForLedgerCommit suspends until the named transaction is
// persisted in the ledger. The run id to transaction mapping is
// published on the mapping feed.
func (self *Coroutine) WaitForLedgerCommit(tx_hash string) error {
	self.exec.park(&Wait{
		Kind:   WAIT_LEDGER,
		TxHash: tx_hash,
	})
	return &suspendRequest{}
}

// SubFlow runs child to completion before the next step. The child
// shares our run id and checkpoint; its result is available through
// Payload() in the next step. The boundary is a suspension point.
func (self *Coroutine) SubFlow(child Flow) error {
	return &subflowRequest{flow: child}
}

// Return completes the current flow (or sub-flow) with value.
func (self *Coroutine) Return(value interface{}) error {
	result, err := wire.MarshalPayload(value)
	if err != nil {
		return errors.Wrap(err, "serializing flow result")
	}
	return &returnRequest{result: result}
}

// Progress records the current progress tracker step.
func (self *Coroutine) Progress(label string) {
	self.exec.setProgress(label)
}

// PeerVersion reports the flow version the counterparty actually
// speaks, known once the session is confirmed.
func (self *Coroutine) PeerVersion(party wire.Party) (int, error) {
	session, pres := self.exec.table.GetByParty(
		self.exec.topFrame().id, party)
	if !pres {
		session, pres = self.exec.table.FindByParty(party)
	}
	if !pres {
		return 0, errors.Errorf("no session with %v", party)
	}
	return session.PeerVersion, nil
}
