package flows

// The executor drives a single flow. All access to the flow's state,
// its session table and its checkpoint is funneled through one
// goroutine consuming an event inbox, so a flow never runs
// concurrently with itself and never needs locks.
//
// The contract around suspension points: before any effect of a step
// becomes visible to the outside world, the continuation is captured
// and committed together with the outbound messages in one host
// transaction. Delivery of a matching message, a timer or a ledger
// commit unparks the flow.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/datastore"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/sessions"
	"github.com/varunkm/corda/utils"
	"github.com/varunkm/corda/wire"
)

type EventKind int

const (
	EVENT_START EventKind = iota
	EVENT_RESURRECT
	EVENT_MESSAGE
	EVENT_TIMER
	EVENT_LEDGER
	EVENT_KILL
)

type Event struct {
	Kind      EventKind
	From      wire.Party
	Envelope  *wire.Envelope
	MessageId string
	TxHash    string
	Epoch     uint64
}

// TerminalResult is what a finished flow leaves behind. Result is the
// serialized return value when Err is nil.
type TerminalResult struct {
	Result []byte
	Err    error
}

// Deps is everything the executor needs from the node. The manager
// wires these up; tests can substitute any of them.
type Deps struct {
	ConfigObj *config.Config
	DB        datastore.DataStore
	Clock     utils.Clock

	// Put a serialized envelope on the transport.
	Send func(to wire.Party, message_id string, data []byte)

	// Acknowledge a processed inbound message back to the
	// transport.
	Ack func(message_id string)

	// Pick a concrete endpoint for a logical identity (round-robin
	// over replicated groups).
	ResolveEndpoint func(party wire.Party) wire.Party

	// Build an empty flow instance for a class, used to rebuild
	// frames from a checkpoint.
	NewFlow func(class_name string) (Flow, error)

	// Maintain the node wide session id to run id index.
	RegisterSession   func(id wire.SessionID, run_id string)
	UnregisterSession func(id wire.SessionID)

	// Subscribe to a ledger commit. The channel is closed when the
	// transaction is persisted.
	WaitLedger func(tx_hash string) <-chan struct{}

	EmitProgress func(run_id, label string)
	EmitMapping  func(run_id, tx_hash string)

	OnTerminal func(run_id string, result *TerminalResult)
}

type liveFrame struct {
	id    uint64
	flow  Flow
	steps []Step
	index int
}

type Executor struct {
	deps   *Deps
	logger *logging.LogContext

	run_id     string
	class_name string
	version    int
	initiator  InitiatorKind

	frames    []*liveFrame
	frame_seq uint64
	table     *sessions.Table

	wait        *Wait
	wait_epoch  uint64
	armed_epoch uint64

	delivered     []byte
	delivered_set bool

	out_seq     uint64
	staged      []*PendingMessage
	pending     []*PendingMessage
	staged_acks []string

	progress       string
	progress_dirty bool
	mapping_tx     string

	kill     bool
	inbox    chan *Event
	terminal *TerminalResult
}

func NewExecutor(
	deps *Deps,
	run_id string,
	version int,
	initiator InitiatorKind,
	root Flow) *Executor {

	self := &Executor{
		deps:       deps,
		logger:     logging.GetLogger(deps.ConfigObj, &logging.FlowComponent),
		run_id:     run_id,
		class_name: root.Name(),
		version:    version,
		initiator:  initiator,
		table:      sessions.NewTable(),
		inbox:      make(chan *Event, 256),
	}
	self.pushFrame(root)
	return self
}

// ResurrectExecutor rebuilds a parked flow from its checkpoint.
func ResurrectExecutor(
	deps *Deps, body *CheckpointBody) (*Executor, error) {

	self := &Executor{
		deps:          deps,
		logger:        logging.GetLogger(deps.ConfigObj, &logging.FlowComponent),
		run_id:        body.RunId,
		class_name:    body.ClassName,
		version:       body.Version,
		initiator:     body.Initiator,
		table:         sessions.NewTable(),
		wait:          body.Wait,
		delivered:     body.Delivered,
		delivered_set: body.DeliveredSet,
		out_seq:       body.OutSeq,
		pending:       body.Outbound,
		progress:      body.Progress,
		inbox:         make(chan *Event, 256),
	}

	for _, record := range body.Sessions {
		self.table.Put(record)
		deps.RegisterSession(record.OwnId, self.run_id)
	}

	self.frame_seq = body.FrameSeq
	for _, frame := range body.Frames {
		flow, err := deps.NewFlow(frame.ClassName)
		if err != nil {
			return nil, errors.Wrap(err, "resurrecting flow")
		}
		err = wire.UnmarshalPayload(frame.State, flow)
		if err != nil {
			return nil, errors.Wrap(err, "restoring flow state")
		}
		self.frames = append(self.frames, &liveFrame{
			id:    frame.FrameId,
			flow:  flow,
			steps: flow.Steps(),
			index: frame.StepIndex,
		})
	}

	if len(self.frames) == 0 {
		return nil, errors.New("checkpoint has no frames")
	}

	if self.wait != nil {
		self.wait_epoch = self.wait.Epoch
	}
	return self, nil
}

func (self *Executor) RunId() string {
	return self.run_id
}

func (self *Executor) Describe() *Descriptor {
	return &Descriptor{
		RunId:        self.run_id,
		ClassName:    self.class_name,
		Initiator:    self.initiator,
		ProgressStep: self.progress,
	}
}

// SeedSession installs a pre-built session record before Start. Used
// by the manager to hand a responder its confirmed session.
func (self *Executor) SeedSession(record *sessions.Record) {
	record.FrameId = self.topFrame().id
	self.table.Put(record)
	self.deps.RegisterSession(record.OwnId, self.run_id)
}

// StageSystemMessage queues a protocol message (e.g. the responder's
// SessionConfirm) to be emitted with the initial checkpoint.
func (self *Executor) StageSystemMessage(to wire.Party, envelope *wire.Envelope) {
	self.stageEnvelope(to, envelope)
}

// StageAck defers a transport acknowledgment to the next commit, so
// the message is only forgotten once its consequences are durable.
func (self *Executor) StageAck(message_id string) {
	self.staged_acks = append(self.staged_acks, message_id)
}

// Start launches the executor goroutine. kind selects between a
// fresh entry point run and a resurrection.
func (self *Executor) Start(
	ctx context.Context, wg *sync.WaitGroup, kind EventKind) {

	wg.Add(1)
	self.inbox <- &Event{Kind: kind}

	go func() {
		defer wg.Done()

		for {
			select {
			case <-ctx.Done():
				// Graceful shutdown: the flow is parked and
				// checkpointed, or mid-event which completes below.
				return

			case event := <-self.inbox:
				self.process(event)
			}

			if self.terminal != nil {
				return
			}
		}
	}()
}

// Deliver posts an inbound session message. Safe to call from any
// goroutine.
func (self *Executor) Deliver(
	from wire.Party, envelope *wire.Envelope, message_id string) {
	self.inbox <- &Event{
		Kind:      EVENT_MESSAGE,
		From:      from,
		Envelope:  envelope,
		MessageId: message_id,
	}
}

// Kill requests external termination, honored at the next suspension
// point.
func (self *Executor) Kill() {
	self.inbox <- &Event{Kind: EVENT_KILL}
}

func (self *Executor) process(event *Event) {
	switch event.Kind {
	case EVENT_START:
		// The entry point is a suspension point: the initial
		// checkpoint is taken before the first step runs.
		if !self.commitParked() {
			return
		}
		self.drive()

	case EVENT_RESURRECT:
		flowsResumed.Inc()
		self.republishPending()
		self.drive()

	case EVENT_MESSAGE:
		self.handleMessage(event.From, event.Envelope, event.MessageId)

	case EVENT_TIMER:
		self.handleTimer(event.Epoch)

	case EVENT_LEDGER:
		if self.wait != nil && self.wait.Kind == WAIT_LEDGER &&
			self.wait.TxHash == event.TxHash {
			self.clearWait()
			self.drive()
		}

	case EVENT_KILL:
		self.kill = true
		if self.wait != nil {
			self.clearWait()
			self.terminate(nil, &KilledError{})
		}
	}
}

func (self *Executor) handleTimer(epoch uint64) {
	if self.wait == nil || self.wait.Epoch != epoch {
		return
	}

	switch self.wait.Kind {
	case WAIT_SLEEP:
		self.clearWait()
		self.drive()

	case WAIT_RECEIVE:
		hint := self.wait.TypeHint
		self.clearWait()
		self.terminate(nil, withReceiveSite(&UnexpectedFlowEnd{
			ExpectedType: hint,
			Reason:       "receive timed out",
		}))
	}
}

func (self *Executor) handleMessage(
	from wire.Party, envelope *wire.Envelope, message_id string) {

	if message_id != "" {
		self.staged_acks = append(self.staged_acks, message_id)
	}

	session, pres := self.table.Get(envelope.RecipientSessionId())
	if !pres {
		self.logger.Debug("Flow %v: dropping %v for unknown session %v",
			self.run_id, envelope.Kind(), envelope.RecipientSessionId())
		self.commitParked()
		return
	}

	switch {
	case envelope.Confirm != nil:
		released := session.HandleConfirm(envelope.Confirm, from)
		for _, payload := range released {
			self.stageEnvelope(session.Endpoint, &wire.Envelope{
				Data: &wire.SessionData{
					RecipientSessionId: session.PeerId,
					SeqNo:              payload.SeqNo,
					Payload:            payload.Payload,
				}})
		}
		self.commitParked()

	case envelope.Reject != nil:
		session.HandleReject(envelope.Reject)
		if self.waitingOn(session) {
			hint := self.wait.TypeHint
			self.clearWait()
			self.terminate(nil, withReceiveSite(&UnexpectedFlowEnd{
				ExpectedType: hint,
				Reason:       envelope.Reject.ErrorMessage,
			}))
			return
		}
		self.commitParked()

	default:
		if !session.QueueInbound(envelope) {
			messagesDeduplicated.Inc()
			// A duplicate changes nothing durable; just let the
			// transport forget it.
			self.releaseAcks()
			return
		}
		if self.waitingOn(session) {
			self.drive()
			return
		}
		self.commitParked()
	}
}

func (self *Executor) waitingOn(session *sessions.Record) bool {
	return self.wait != nil && self.wait.Kind == WAIT_RECEIVE &&
		self.wait.SessionId == session.OwnId
}

// drive runs the flow forward: execute steps while it is runnable,
// drain queued inbound messages into the current wait, park when
// neither makes progress.
func (self *Executor) drive() {
	for self.terminal == nil {
		if self.wait == nil {
			self.advance()
			continue
		}

		if !self.tryDrain() {
			self.armWait()
			return
		}
	}
}

// advance executes steps until the flow suspends, completes or
// fails.
func (self *Executor) advance() {
	for self.terminal == nil {
		if self.kill {
			self.terminate(nil, &KilledError{})
			return
		}

		frame := self.frames[len(self.frames)-1]
		if frame.index >= len(frame.steps) {
			self.popFrame(nil)
			continue
		}

		step := frame.steps[frame.index]
		err := self.runStep(step)

		switch t := err.(type) {
		case nil:
			frame.index++

		case *suspendRequest:
			// The continuation is the next step.
			frame.index++
			if !self.commitParked() {
				return
			}
			return

		case *subflowRequest:
			frame.index++
			self.pushFrame(t.flow)
			// A sub-flow boundary is a suspension point.
			if !self.commitParked() {
				return
			}

		case *returnRequest:
			self.popFrame(t.result)

		default:
			self.terminate(nil, err)
			return
		}
	}
}

func (self *Executor) runStep(step Step) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = goerrors.Wrap(fmt.Sprintf("panic in flow step %v: %v",
				step.Label, r), 2)
		}
	}()

	co := &Coroutine{
		exec:          self,
		delivered:     self.delivered,
		delivered_set: self.delivered_set,
	}
	self.delivered = nil
	self.delivered_set = false

	return step.Fn(co)
}

// tryDrain attempts to satisfy the current wait from queued inbound
// messages. Returns false when the flow must stay parked.
func (self *Executor) tryDrain() bool {
	if self.wait.Kind != WAIT_RECEIVE {
		return false
	}

	session, pres := self.table.Get(self.wait.SessionId)
	if !pres {
		self.terminate(nil, errors.Errorf(
			"flow waiting on unknown session %v", self.wait.SessionId))
		return true
	}

	envelope := session.PopInbound()
	if envelope == nil {
		return self.raiseIfDead(session)
	}

	switch {
	case envelope.Data != nil:
		self.delivered = envelope.Data.Payload
		self.delivered_set = true
		self.clearWait()
		return true

	case envelope.End != nil:
		session.HandleEnd()
		return self.raiseIfDead(session)

	case envelope.Error != nil:
		session.HandleErrorEnd(envelope.Error)
		return self.raiseIfDead(session)
	}
	return true
}

// raiseIfDead converts a dead session under a pending receive into
// the error the flow observes. Returns false if the session is still
// live (keep waiting).
func (self *Executor) raiseIfDead(session *sessions.Record) bool {
	if session.Live() {
		return false
	}

	hint := self.wait.TypeHint
	self.clearWait()

	if session.PeerError != nil {
		self.terminate(nil, withReceiveSite(&PeerException{
			Type:    session.PeerError.Type,
			Message: session.PeerError.Message,
			Peer:    session.Peer,
		}))
		return true
	}

	reason := "counterparty finished unexpectedly"
	if session.Rejected != "" {
		reason = session.Rejected
	}
	self.terminate(nil, withReceiveSite(&UnexpectedFlowEnd{
		ExpectedType: hint,
		Reason:       reason,
	}))
	return true
}

// withReceiveSite attaches a local backtrace so operators can find
// the receive that observed the failure. The trace never leaves the
// node, and the error keeps its concrete type.
func withReceiveSite(err error) error {
	trace := goerrors.Wrap(err, 2).ErrorStack()
	switch t := err.(type) {
	case *UnexpectedFlowEnd:
		t.Trace = trace
	case *PeerException:
		t.Trace = trace
	}
	return err
}

func (self *Executor) park(wait *Wait) {
	self.wait_epoch++
	wait.Epoch = self.wait_epoch
	self.wait = wait

	if wait.Kind == WAIT_LEDGER {
		self.mapping_tx = wait.TxHash
	}
}

func (self *Executor) clearWait() {
	self.wait = nil
	self.wait_epoch++
}

// armWait sets up the external nudge for a parked wait - a timer or a
// ledger commit subscription. Idempotent per wait epoch.
func (self *Executor) armWait() {
	if self.wait == nil || self.armed_epoch == self.wait.Epoch {
		return
	}
	self.armed_epoch = self.wait.Epoch
	epoch := self.wait.Epoch

	switch self.wait.Kind {
	case WAIT_SLEEP, WAIT_RECEIVE:
		if self.wait.DeadlineUnixNano == 0 {
			return
		}
		deadline := self.wait.DeadlineUnixNano
		now := self.deps.Clock.Now().UnixNano()
		timer := self.deps.Clock.After(durationUntil(now, deadline))
		go func() {
			<-timer
			self.inbox <- &Event{Kind: EVENT_TIMER, Epoch: epoch}
		}()

	case WAIT_LEDGER:
		tx_hash := self.wait.TxHash
		committed := self.deps.WaitLedger(tx_hash)
		go func() {
			<-committed
			self.inbox <- &Event{Kind: EVENT_LEDGER, TxHash: tx_hash}
		}()
	}
}

func (self *Executor) pushFrame(flow Flow) {
	self.frame_seq++
	self.frames = append(self.frames, &liveFrame{
		id:    self.frame_seq,
		flow:  flow,
		steps: flow.Steps(),
	})
}

func (self *Executor) topFrame() *liveFrame {
	return self.frames[len(self.frames)-1]
}

func (self *Executor) popFrame(result []byte) {
	if len(self.frames) == 1 {
		self.frames = nil
		self.finish(result)
		return
	}

	self.frames = self.frames[:len(self.frames)-1]
	self.delivered = result
	self.delivered_set = true
}

func (self *Executor) finish(result []byte) {
	self.terminateWith(&TerminalResult{Result: result})
}

func (self *Executor) terminate(result []byte, err error) {
	self.terminateWith(&TerminalResult{Result: result, Err: err})
}

// terminateWith ends the flow: every open session gets its end
// message, and the checkpoint delete, the outbound traffic and the
// result delivery commit as one host transaction. Checkpoint deletion
// is the sole marker of completion.
func (self *Executor) terminateWith(terminal *TerminalResult) {
	exception := ToWireException(terminal.Err)

	for _, session := range self.table.Open() {
		if session.PeerId == 0 {
			// Never confirmed; there is no peer session to address.
			session.State = sessions.ENDED
			continue
		}

		seq := session.NextSeq()
		if terminal.Err == nil {
			session.State = sessions.ENDED
			self.stageEnvelope(session.Endpoint, &wire.Envelope{
				End: &wire.NormalSessionEnd{
					RecipientSessionId: session.PeerId,
					SeqNo:              seq,
				}})
		} else {
			session.State = sessions.ERRORED
			self.stageEnvelope(session.Endpoint, &wire.Envelope{
				Error: &wire.ErrorSessionEnd{
					RecipientSessionId: session.PeerId,
					SeqNo:              seq,
					Exception:          exception,
				}})
		}
	}

	tx := datastore.NewTransaction(self.deps.DB)
	tx.DeleteCheckpoint(self.run_id)
	self.addEffects(tx)

	for id := range self.table.Records {
		session_id := id
		tx.AddEffect(func() {
			self.deps.UnregisterSession(session_id)
		})
	}

	run_id := self.run_id
	tx.AddEffect(func() {
		self.deps.OnTerminal(run_id, terminal)
	})

	err := tx.Commit()
	if err != nil {
		self.logger.Error("Flow %v: terminal transaction failed: %v",
			self.run_id, err)
		// The checkpoint survives; the flow will be resurrected.
	}
	self.terminal = terminal
}

// commitParked writes the checkpoint and releases this round's side
// effects in one host transaction. Returns false if the flow had to
// be discarded because the transaction aborted.
func (self *Executor) commitParked() bool {
	blob, err := EncodeCheckpoint(self.snapshot())
	if err != nil {
		self.discard(errors.Wrap(err, "capturing continuation"))
		return false
	}

	tx := datastore.NewTransaction(self.deps.DB)
	tx.SetCheckpoint(self.run_id, blob)
	self.addEffects(tx)

	checkpointsWritten.Inc()
	err = tx.Commit()
	if err != nil {
		// The checkpoint was never committed, so the in-memory flow
		// must not keep running.
		self.discard(err)
		return false
	}
	return true
}

// discard drops the in-memory flow after a failed host transaction.
// No wire traffic is produced - as far as the world is concerned the
// last committed checkpoint is the truth.
func (self *Executor) discard(err error) {
	self.logger.Error("Flow %v: host transaction aborted, discarding: %v",
		self.run_id, err)

	terminal := &TerminalResult{Err: errors.Wrap(err, "host transaction aborted")}
	self.terminal = terminal
	self.deps.OnTerminal(self.run_id, terminal)
}

// addEffects stages this round's outbound sends, transport acks and
// feed rows on the transaction.
func (self *Executor) addEffects(tx *datastore.Transaction) {
	staged := self.staged
	self.staged = nil
	self.pending = append(self.pending, staged...)

	for _, message := range staged {
		m := message
		tx.AddEffect(func() {
			self.deps.Send(m.To, m.MessageId, m.Data)
		})
	}

	acks := self.staged_acks
	self.staged_acks = nil
	for _, message_id := range acks {
		id := message_id
		tx.AddEffect(func() {
			self.deps.Ack(id)
		})
	}

	if self.progress_dirty {
		self.progress_dirty = false
		label := self.progress
		tx.AddEffect(func() {
			self.deps.EmitProgress(self.run_id, label)
		})
	}

	if self.mapping_tx != "" {
		tx_hash := self.mapping_tx
		self.mapping_tx = ""
		tx.AddEffect(func() {
			self.deps.EmitMapping(self.run_id, tx_hash)
		})
	}
}

func (self *Executor) releaseAcks() {
	acks := self.staged_acks
	self.staged_acks = nil
	for _, message_id := range acks {
		self.deps.Ack(message_id)
	}
}

// republishPending puts every outbound message the flow has sent back
// on the wire, acknowledged or not. Receivers deduplicate, so over
// delivery is harmless.
func (self *Executor) republishPending() {
	for _, message := range self.pending {
		self.deps.Send(message.To, message.MessageId, message.Data)
	}
}

func (self *Executor) snapshot() *CheckpointBody {
	body := &CheckpointBody{
		RunId:        self.run_id,
		ClassName:    self.class_name,
		Initiator:    self.initiator,
		Version:      self.version,
		Wait:         self.wait,
		Delivered:    self.delivered,
		DeliveredSet: self.delivered_set,
		Outbound:     append([]*PendingMessage{}, self.pending...),
		OutSeq:       self.out_seq,
		FrameSeq:     self.frame_seq,
		Progress:     self.progress,
	}
	body.Outbound = append(body.Outbound, self.staged...)

	for _, frame := range self.frames {
		state, err := wire.MarshalPayload(frame.flow)
		if err != nil {
			// Surfaced by EncodeCheckpoint consumers through the
			// commit failing later; keep the frame consistent.
			state = nil
		}
		body.Frames = append(body.Frames, &FrameRecord{
			FrameId:   frame.id,
			ClassName: frame.flow.Name(),
			StepIndex: frame.index,
			State:     state,
		})
	}

	ids := make([]wire.SessionID, 0, len(self.table.Records))
	for id := range self.table.Records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		body.Sessions = append(body.Sessions, self.table.Records[id])
	}

	return body
}

// sessionFor finds the current frame's session with party,
// initiating a new one if needed.
func (self *Executor) sessionFor(party wire.Party) (*sessions.Record, error) {
	frame_id := self.topFrame().id
	session, pres := self.table.GetByParty(frame_id, party)
	if pres {
		if !session.Live() {
			return nil, errors.Errorf("session with %v already ended", party)
		}
		return session, nil
	}

	endpoint := self.deps.ResolveEndpoint(party)
	session = sessions.NewInitiatingRecord(
		party, endpoint, self.version, frame_id)
	self.table.Put(session)
	self.deps.RegisterSession(session.OwnId, self.run_id)

	self.stageEnvelope(session.Endpoint, &wire.Envelope{
		Init: &wire.SessionInit{
			InitiatorSessionId: session.OwnId,
			FlowClassName:      self.topFrame().flow.Name(),
			FlowVersion:        self.version,
			ApplicationId:      self.deps.ConfigObj.ApplicationId,
		}})
	return session, nil
}

// stageSend implements the Send primitive.
func (self *Executor) stageSend(party wire.Party, value interface{}) error {
	payload, err := wire.MarshalPayload(value)
	if err != nil {
		return errors.Wrap(err, "serializing payload")
	}

	frame_id := self.topFrame().id
	session, pres := self.table.GetByParty(frame_id, party)
	if !pres {
		// First contact: the payload rides in the SessionInit.
		endpoint := self.deps.ResolveEndpoint(party)
		session = sessions.NewInitiatingRecord(
			party, endpoint, self.version, frame_id)
		self.table.Put(session)
		self.deps.RegisterSession(session.OwnId, self.run_id)

		session.NextSeq() // the first payload consumes sequence 1
		self.stageEnvelope(session.Endpoint, &wire.Envelope{
			Init: &wire.SessionInit{
				InitiatorSessionId: session.OwnId,
				FlowClassName:      self.topFrame().flow.Name(),
				FlowVersion:        self.version,
				ApplicationId:      self.deps.ConfigObj.ApplicationId,
				FirstPayload:       payload,
			}})
		return nil
	}

	if !session.Live() {
		return errors.Errorf("session with %v already ended", party)
	}

	seq := session.NextSeq()
	if session.State == sessions.INITIATING {
		// The peer's session id is unknown until the confirm;
		// hold the payload.
		session.PendingSend = append(session.PendingSend,
			&sessions.PendingPayload{SeqNo: seq, Payload: payload})
		return nil
	}

	self.stageEnvelope(session.Endpoint, &wire.Envelope{
		Data: &wire.SessionData{
			RecipientSessionId: session.PeerId,
			SeqNo:              seq,
			Payload:            payload,
		}})
	return nil
}

// stageEnvelope assigns the stable message id, serializes and queues
// the message for emission at the next commit.
func (self *Executor) stageEnvelope(to wire.Party, envelope *wire.Envelope) {
	self.out_seq++
	envelope.MessageId = fmt.Sprintf("%s/%d", self.run_id, self.out_seq)

	data, err := wire.MarshalEnvelope(envelope)
	if err != nil {
		// Only possible for an empty envelope, which we never build.
		self.logger.Error("Flow %v: dropping unserializable %v: %v",
			self.run_id, envelope.Kind(), err)
		return
	}

	self.staged = append(self.staged, &PendingMessage{
		To:        to,
		MessageId: envelope.MessageId,
		Data:      data,
	})
}

func (self *Executor) setProgress(label string) {
	self.progress = label
	self.progress_dirty = true
}

func durationUntil(now_nano, deadline_nano int64) time.Duration {
	if deadline_nano <= now_nano {
		return 0
	}
	return time.Duration(deadline_nano - now_nano)
}
