package wire

// Session messages are the only things that cross the transport on
// behalf of the flow framework. The envelope is a tagged union in the
// same style the rest of the node uses for its protocol messages:
// exactly one of the body pointers is set.

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// An opaque identity handle. Resolution to a physical endpoint is the
// transport's problem.
type Party string

// A 63 bit random session id chosen by the initiating side.
type SessionID uint64

func NewSessionID() SessionID {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return SessionID(binary.BigEndian.Uint64(buf) >> 1)
}

func (self SessionID) String() string {
	return fmt.Sprintf("%d", uint64(self))
}

type Envelope struct {
	// Sender assigned dedup id, stable across restarts.
	MessageId string `cbor:"message_id"`

	Init    *SessionInit      `cbor:"init,omitempty"`
	Confirm *SessionConfirm   `cbor:"confirm,omitempty"`
	Data    *SessionData      `cbor:"data,omitempty"`
	End     *NormalSessionEnd `cbor:"end,omitempty"`
	Error   *ErrorSessionEnd  `cbor:"error,omitempty"`
	Reject  *SessionReject    `cbor:"reject,omitempty"`
}

type SessionInit struct {
	InitiatorSessionId SessionID `cbor:"initiator_session_id"`
	FlowClassName      string    `cbor:"flow_class_name"`
	FlowVersion        int       `cbor:"flow_version"`
	ApplicationId      string    `cbor:"application_id"`
	FirstPayload       []byte    `cbor:"first_payload,omitempty"`
}

type SessionConfirm struct {
	InitiatorSessionId SessionID `cbor:"initiator_session_id"`
	ConfirmerSessionId SessionID `cbor:"confirmer_session_id"`
	FlowVersion        int       `cbor:"flow_version"`
	ApplicationId      string    `cbor:"application_id"`
}

type SessionData struct {
	RecipientSessionId SessionID `cbor:"recipient_session_id"`

	// Monotonically increasing per session, used by the receiver
	// to discard redelivered messages.
	SeqNo   uint64 `cbor:"seq_no"`
	Payload []byte `cbor:"payload"`
}

type NormalSessionEnd struct {
	RecipientSessionId SessionID `cbor:"recipient_session_id"`
	SeqNo              uint64    `cbor:"seq_no"`
}

type ErrorSessionEnd struct {
	RecipientSessionId SessionID `cbor:"recipient_session_id"`
	SeqNo              uint64    `cbor:"seq_no"`

	// Only declared business exceptions travel. Nil for everything
	// else - the peer learns nothing about the failure.
	Exception *BusinessException `cbor:"exception,omitempty"`
}

type SessionReject struct {
	InitiatorSessionId SessionID `cbor:"initiator_session_id"`
	ErrorMessage       string    `cbor:"error_message"`
}

// The serialized form of a declared business exception. Stack traces
// never travel.
type BusinessException struct {
	Type    string `cbor:"type"`
	Message string `cbor:"message"`
}

// Kind returns the tag name of the set body, for logging and routing.
func (self *Envelope) Kind() string {
	switch {
	case self.Init != nil:
		return "SessionInit"
	case self.Confirm != nil:
		return "SessionConfirm"
	case self.Data != nil:
		return "SessionData"
	case self.End != nil:
		return "NormalSessionEnd"
	case self.Error != nil:
		return "ErrorSessionEnd"
	case self.Reject != nil:
		return "SessionReject"
	}
	return "Empty"
}

// RecipientSessionId returns the session the message is addressed
// to. For SessionInit and SessionReject this is the initiator's half.
func (self *Envelope) RecipientSessionId() SessionID {
	switch {
	case self.Init != nil:
		return self.Init.InitiatorSessionId
	case self.Confirm != nil:
		return self.Confirm.InitiatorSessionId
	case self.Data != nil:
		return self.Data.RecipientSessionId
	case self.End != nil:
		return self.End.RecipientSessionId
	case self.Error != nil:
		return self.Error.RecipientSessionId
	case self.Reject != nil:
		return self.Reject.InitiatorSessionId
	}
	return 0
}
