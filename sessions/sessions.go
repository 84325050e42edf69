package sessions

// The per flow session table. A session is a bidirectional, ordered,
// versioned conversation between exactly two flows. Records are plain
// serializable data - the whole table rides inside the owning flow's
// checkpoint, and is only ever touched by the goroutine servicing
// that flow.

import (
	"fmt"

	"github.com/varunkm/corda/wire"
)

type State int

const (
	INITIATING State = iota
	CONFIRMED
	ENDED
	ERRORED
)

func (self State) String() string {
	switch self {
	case INITIATING:
		return "Initiating"
	case CONFIRMED:
		return "Confirmed"
	case ENDED:
		return "Ended"
	case ERRORED:
		return "Errored"
	}
	return "Unknown"
}

type Record struct {
	// Our half of the session id pair. For the initiator this is
	// chosen at init time; for the responder at confirm time.
	OwnId wire.SessionID

	// The peer's half. Zero until confirmed (initiator side).
	PeerId wire.SessionID

	// The logical identity the flow addressed.
	Peer wire.Party

	// The concrete endpoint pinned for this session. Differs from
	// Peer when the identity is served by a replicated group.
	Endpoint wire.Party

	// True on the side that sent the SessionInit.
	Initiator bool

	State State

	// The version negotiated at confirm time - the lower of what
	// both sides speak.
	Version int

	// The version the peer itself speaks, which may be higher than
	// the negotiated one.
	PeerVersion int

	// The flow frame that owns this session. Sub-flows open their
	// own sessions even against a party the parent already talked
	// to.
	FrameId uint64

	// Sequence number of the next outbound SessionData / end
	// message. The SessionInit first payload consumes sequence 1.
	NextSendSeq uint64

	// Highest inbound sequence number already delivered to the
	// flow. Redelivered messages at or below this are discarded.
	DeliveredWatermark uint64

	// Inbound messages not yet consumed by a receive.
	Inbound []*wire.Envelope

	// Payloads sent while still Initiating. They cannot be put on
	// the wire before the confirm tells us the peer's session id.
	PendingSend []*PendingPayload

	// Type hint of the outstanding receive, echoed into
	// UnexpectedFlowEnd.
	ExpectedTypeHint string

	// Terminal detail when State is ERRORED.
	PeerError *wire.BusinessException
	Rejected  string
}

type PendingPayload struct {
	SeqNo   uint64
	Payload []byte
}

// NextSeq hands out the next outbound sequence number.
func (self *Record) NextSeq() uint64 {
	self.NextSendSeq++
	return self.NextSendSeq
}

// Live returns true while the session can still carry traffic.
func (self *Record) Live() bool {
	return self.State == INITIATING || self.State == CONFIRMED
}

type Table struct {
	// Keyed by our session id.
	Records map[wire.SessionID]*Record

	// Each frame's session per logical counterparty, keyed by
	// "<frame-id>/<party>". A frame holds at most one session per
	// peer; sub-flows open their own.
	ByParty map[string]wire.SessionID
}

func NewTable() *Table {
	return &Table{
		Records: make(map[wire.SessionID]*Record),
		ByParty: make(map[string]wire.SessionID),
	}
}

func partyKey(frame_id uint64, party wire.Party) string {
	return fmt.Sprintf("%d/%s", frame_id, party)
}

func (self *Table) Get(id wire.SessionID) (*Record, bool) {
	record, pres := self.Records[id]
	return record, pres
}

func (self *Table) GetByParty(
	frame_id uint64, party wire.Party) (*Record, bool) {
	id, pres := self.ByParty[partyKey(frame_id, party)]
	if !pres {
		return nil, false
	}
	return self.Get(id)
}

// FindByParty returns the most recent session with party from any
// frame.
func (self *Table) FindByParty(party wire.Party) (*Record, bool) {
	var result *Record
	for _, record := range self.Records {
		if record.Peer != party {
			continue
		}
		if result == nil || record.FrameId > result.FrameId {
			result = record
		}
	}
	return result, result != nil
}

func (self *Table) Put(record *Record) {
	self.Records[record.OwnId] = record
	self.ByParty[partyKey(record.FrameId, record.Peer)] = record.OwnId
}

// Open returns the sessions that still need an end message when the
// flow reaches a terminal state.
func (self *Table) Open() []*Record {
	result := []*Record{}
	for _, record := range self.Records {
		if record.Live() {
			result = append(result, record)
		}
	}
	return result
}
