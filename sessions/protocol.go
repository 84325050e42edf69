package sessions

// Session protocol transitions:
//
//   [start] --init--> INITIATING --confirm--> CONFIRMED --(end|error-end)--> {ENDED|ERRORED}
//   INITIATING --reject--> ERRORED
//
// The functions here mutate a single record; emitting the resulting
// wire traffic is the runtime's job.

import (
	"github.com/varunkm/corda/wire"
)

// NewInitiatingRecord is the initiator half of a fresh session.
func NewInitiatingRecord(
	peer, endpoint wire.Party, version int, frame_id uint64) *Record {
	return &Record{
		OwnId:     wire.NewSessionID(),
		Peer:      peer,
		Endpoint:  endpoint,
		Initiator: true,
		State:     INITIATING,
		Version:   version,
		FrameId:   frame_id,
	}
}

// NewConfirmedRecord is the responder half, built directly in
// CONFIRMED state when a SessionInit is accepted. version is the
// negotiated (lower) one; the init records what the peer speaks.
func NewConfirmedRecord(
	peer wire.Party, init *wire.SessionInit, version int) *Record {
	return &Record{
		OwnId:       wire.NewSessionID(),
		PeerId:      init.InitiatorSessionId,
		Peer:        peer,
		Endpoint:    peer,
		Initiator:   false,
		State:       CONFIRMED,
		Version:     version,
		PeerVersion: init.FlowVersion,
	}
}

// HandleConfirm moves an initiating session to CONFIRMED, pins the
// peer's session id and endpoint, settles the negotiated version and
// releases any payloads queued while the confirm was in flight.
func (self *Record) HandleConfirm(
	confirm *wire.SessionConfirm, endpoint wire.Party) []*PendingPayload {

	if self.State != INITIATING {
		return nil
	}

	self.State = CONFIRMED
	self.PeerId = confirm.ConfirmerSessionId
	self.Endpoint = endpoint
	self.PeerVersion = confirm.FlowVersion
	if confirm.FlowVersion < self.Version {
		self.Version = confirm.FlowVersion
	}

	pending := self.PendingSend
	self.PendingSend = nil
	return pending
}

func (self *Record) HandleReject(reject *wire.SessionReject) {
	if self.State != INITIATING {
		return
	}
	self.State = ERRORED
	self.Rejected = reject.ErrorMessage
}

func (self *Record) HandleEnd() {
	if self.Live() {
		self.State = ENDED
	}
}

func (self *Record) HandleErrorEnd(end *wire.ErrorSessionEnd) {
	if self.Live() {
		self.State = ERRORED
		self.PeerError = end.Exception
	}
}

// QueueInbound files a data or end message for later delivery,
// discarding redelivered messages. Returns false if the message was a
// duplicate.
func (self *Record) QueueInbound(envelope *wire.Envelope) bool {
	seq := inboundSeq(envelope)
	if seq > 0 {
		if seq <= self.DeliveredWatermark {
			return false
		}
		for _, queued := range self.Inbound {
			if inboundSeq(queued) == seq {
				return false
			}
		}
	}

	self.Inbound = append(self.Inbound, envelope)
	return true
}

// PopInbound removes and returns the next undelivered message,
// advancing the watermark.
func (self *Record) PopInbound() *wire.Envelope {
	if len(self.Inbound) == 0 {
		return nil
	}

	envelope := self.Inbound[0]
	self.Inbound = self.Inbound[1:]

	seq := inboundSeq(envelope)
	if seq > self.DeliveredWatermark {
		self.DeliveredWatermark = seq
	}
	return envelope
}

func inboundSeq(envelope *wire.Envelope) uint64 {
	switch {
	case envelope.Data != nil:
		return envelope.Data.SeqNo
	case envelope.End != nil:
		return envelope.End.SeqNo
	case envelope.Error != nil:
		return envelope.Error.SeqNo
	}
	return 0
}
