package flowmanager

// Inbound message routing. SessionInit spawns a responder through the
// factory registry; everything else is routed to the executor owning
// the destination session, or buffered until that session appears.

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/sessions"
	"github.com/varunkm/corda/wire"
)

type orphan struct {
	from       wire.Party
	message_id string
	envelope   *wire.Envelope
}

func (self *FlowManagerService) handleInbound(
	from wire.Party, message_id string, data []byte) {

	envelope, err := wire.UnmarshalEnvelope(data)
	if err != nil {
		// Malformed traffic is dropped; protocol errors are never
		// fatal to the node.
		self.logger.Warn("Dropping malformed message %v from %v: %v",
			message_id, from, err)
		self.transport.Ack(self.party, message_id)
		return
	}

	if message_id != "" {
		_, err := self.seen.Get(message_id)
		if err == nil {
			messagesSeenTwice.Inc()
			if envelope.Init != nil {
				// A replayed init must not spawn a second responder.
				self.transport.Ack(self.party, message_id)
				return
			}
			// Fall through: the session watermark is the durable
			// dedup layer for data traffic.
		}
		_ = self.seen.Set(message_id, true)
	}

	if envelope.Init != nil {
		self.handleInit(from, envelope, message_id)
		return
	}

	self.route(from, envelope, message_id)
}

func (self *FlowManagerService) route(
	from wire.Party, envelope *wire.Envelope, message_id string) {

	session_id := envelope.RecipientSessionId()

	self.mu.Lock()
	run_id, pres := self.session_index[session_id]
	executor, live := self.executors[run_id]
	if !pres || !live {
		// The receiving flow is not in memory yet - hold the
		// message under its session id. No ack: if we die first the
		// transport redelivers.
		self.orphans[session_id] = append(self.orphans[session_id],
			&orphan{from: from, message_id: message_id, envelope: envelope})
		self.mu.Unlock()
		return
	}
	self.mu.Unlock()

	executor.Deliver(from, envelope, message_id)
}

func (self *FlowManagerService) handleInit(
	from wire.Party, envelope *wire.Envelope, message_id string) {

	init := envelope.Init

	if !self.limiter.Allow() {
		// Dropped without an ack. The transport keeps it and hands it
		// over again only on redelivery after a restart; nothing
		// retries it sooner.
		self.logger.Warn("Init flood from %v, dropping %v", from, message_id)
		return
	}

	key := initKey(from, init.InitiatorSessionId)

	self.mu.Lock()
	_, dup := self.initiated[key]
	if dup {
		self.mu.Unlock()
		self.transport.Ack(self.party, message_id)
		return
	}

	registration, pres := self.responders[init.FlowClassName]
	if !pres {
		self.mu.Unlock()
		sessionRejects.Inc()
		self.sendReject(from, init, "Don't know "+init.FlowClassName)
		self.transport.Ack(self.party, message_id)
		return
	}

	// Both sides speak the lower version from here on.
	version := registration.Version
	if init.FlowVersion < version {
		version = init.FlowVersion
	}

	flow := registration.New(from)
	run_id := uuid.New().String()
	executor := flows.NewExecutor(
		self.deps(), run_id, version, flows.INITIATOR_PEER, flow)

	self.executors[run_id] = executor
	self.results[run_id] = make(chan *flows.TerminalResult, 1)
	self.initiated[key] = run_id
	self.mu.Unlock()

	record := sessions.NewConfirmedRecord(from, init, version)
	if init.FirstPayload != nil {
		// The init's piggybacked payload is the first SessionData.
		record.QueueInbound(&wire.Envelope{Data: &wire.SessionData{
			RecipientSessionId: record.OwnId,
			SeqNo:              1,
			Payload:            init.FirstPayload,
		}})
	}

	executor.SeedSession(record)
	executor.StageSystemMessage(from, &wire.Envelope{
		Confirm: &wire.SessionConfirm{
			InitiatorSessionId: init.InitiatorSessionId,
			ConfirmerSessionId: record.OwnId,
			// The version this node speaks; the initiator takes the
			// lower of it and its own.
			FlowVersion:        registration.Version,
			ApplicationId:      self.config_obj.ApplicationId,
		}})
	executor.StageAck(message_id)

	respondersStarted.Inc()
	self.emitAdded(executor.Describe())
	executor.Start(self.ctx, self.wg, flows.EVENT_START)
}

// sendReject answers an unserviceable SessionInit. The id is derived
// from the init so a retransmitted init produces the same reject.
func (self *FlowManagerService) sendReject(
	from wire.Party, init *wire.SessionInit, reason string) {

	envelope := &wire.Envelope{
		MessageId: fmt.Sprintf("%v/reject/%v",
			self.party, init.InitiatorSessionId),
		Reject: &wire.SessionReject{
			InitiatorSessionId: init.InitiatorSessionId,
			ErrorMessage:       reason,
		}}

	data, err := wire.MarshalEnvelope(envelope)
	if err != nil {
		return
	}

	err = self.transport.Send(self.party, from, envelope.MessageId, data)
	if err != nil {
		self.logger.Error("Sending reject to %v: %v", from, err)
	}
}

func (self *FlowManagerService) registerSession(
	id wire.SessionID, run_id string) {

	self.mu.Lock()
	self.session_index[id] = run_id
	executor, live := self.executors[run_id]
	buffered := self.orphans[id]
	delete(self.orphans, id)
	self.mu.Unlock()

	if !live {
		return
	}
	for _, item := range buffered {
		executor.Deliver(item.from, item.envelope, item.message_id)
	}
}

func (self *FlowManagerService) unregisterSession(id wire.SessionID) {
	self.mu.Lock()
	defer self.mu.Unlock()

	delete(self.session_index, id)
	delete(self.orphans, id)
}

// resurrect rebuilds every checkpointed flow. Runs before the node
// opens to inbound traffic.
func (self *FlowManagerService) resurrect() error {
	run_ids, err := self.db.ListCheckpoints()
	if err != nil {
		return err
	}

	for _, run_id := range run_ids {
		blob, err := self.db.GetCheckpoint(run_id)
		if err != nil {
			self.logger.Error("Reading checkpoint %v: %v", run_id, err)
			continue
		}

		body, err := flows.DecodeCheckpoint(blob)
		if err != nil {
			// A schema mismatch is fatal for this flow and is
			// reported out-of-band; the checkpoint is left in place
			// for inspection.
			self.logger.Error("Cannot resume flow %v: %v", run_id, err)
			continue
		}

		executor, err := flows.ResurrectExecutor(self.deps(), body)
		if err != nil {
			self.logger.Error("Cannot resume flow %v: %v", run_id, err)
			continue
		}

		self.mu.Lock()
		self.executors[run_id] = executor
		self.results[run_id] = make(chan *flows.TerminalResult, 1)
		for _, record := range body.Sessions {
			if !record.Initiator {
				self.initiated[initKey(record.Endpoint, record.PeerId)] = run_id
			}
		}
		self.mu.Unlock()

		self.emitAdded(executor.Describe())
		executor.Start(self.ctx, self.wg, flows.EVENT_RESURRECT)
	}
	return nil
}

func initKey(from wire.Party, id wire.SessionID) string {
	return fmt.Sprintf("%v/%v", from, id)
}
