package flows

// The checkpoint blob is everything needed to resume a suspended flow
// byte for byte: the frame stack (flow structs plus program
// counters), the wait, the session table and every outbound message
// the flow has sent so far. The layout is private to this package - external
// consumers treat the blob as opaque.

import (
	"github.com/varunkm/corda/sessions"
	"github.com/varunkm/corda/wire"

	errors "github.com/pkg/errors"
)

// Bumped whenever the body layout changes. A mismatch fails the
// resume - there is no schema evolution in the core contract.
const CHECKPOINT_SCHEMA_VERSION = byte(1)

var (
	SchemaMismatchError = errors.New(
		"checkpoint schema version mismatch")
)

// One entry of the in-flight call stack. Frames above the root are
// sub-flows.
type FrameRecord struct {
	FrameId   uint64 `cbor:"frame_id"`
	ClassName string `cbor:"class_name"`
	StepIndex int    `cbor:"step_index"`

	// The flow struct's exported fields.
	State []byte `cbor:"state"`
}

// An outbound message of the flow. Kept until the flow terminates,
// acknowledged or not, and re-published verbatim on resurrection; the
// receiver deduplicates.
type PendingMessage struct {
	To        wire.Party `cbor:"to"`
	MessageId string     `cbor:"message_id"`
	Data      []byte     `cbor:"data"`
}

type CheckpointBody struct {
	RunId     string        `cbor:"run_id"`
	ClassName string        `cbor:"class_name"`
	Initiator InitiatorKind `cbor:"initiator"`

	// The version of the root flow registration, advertised in
	// SessionInit.
	Version int `cbor:"version"`

	Frames []*FrameRecord `cbor:"frames"`

	// Frame id allocator position, so frames pushed after a resume
	// never collide with popped ones.
	FrameSeq uint64 `cbor:"frame_seq"`

	Wait         *Wait  `cbor:"wait,omitempty"`
	Delivered    []byte `cbor:"delivered,omitempty"`
	DeliveredSet bool   `cbor:"delivered_set,omitempty"`

	Sessions []*sessions.Record `cbor:"sessions"`
	Outbound []*PendingMessage  `cbor:"outbound"`

	// Message id counter; ids must stay unique across restarts.
	OutSeq uint64 `cbor:"out_seq"`

	Progress string `cbor:"progress,omitempty"`
}

func EncodeCheckpoint(body *CheckpointBody) ([]byte, error) {
	serialized, err := wire.MarshalPayload(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding checkpoint")
	}

	blob := make([]byte, 0, len(serialized)+1)
	blob = append(blob, CHECKPOINT_SCHEMA_VERSION)
	return append(blob, serialized...), nil
}

func DecodeCheckpoint(blob []byte) (*CheckpointBody, error) {
	if len(blob) < 1 {
		return nil, errors.New("empty checkpoint blob")
	}

	if blob[0] != CHECKPOINT_SCHEMA_VERSION {
		return nil, SchemaMismatchError
	}

	body := &CheckpointBody{}
	err := wire.UnmarshalPayload(blob[1:], body)
	if err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}
	return body, nil
}
