package wire

import (
	"github.com/fxamacker/cbor/v2"
	errors "github.com/pkg/errors"
)

var (
	enc_mode cbor.EncMode
	dec_mode cbor.DecMode

	emptyEnvelopeError = errors.New("envelope carries no session message")
)

func init() {
	var err error

	// Deterministic encoding - the same message always produces the
	// same bytes.
	enc_mode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	dec_mode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func MarshalEnvelope(envelope *Envelope) ([]byte, error) {
	if envelope.Kind() == "Empty" {
		return nil, emptyEnvelopeError
	}
	return enc_mode.Marshal(envelope)
}

func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	envelope := &Envelope{}
	err := dec_mode.Unmarshal(data, envelope)
	if err != nil {
		return nil, errors.Wrap(err, "decoding session message")
	}

	if envelope.Kind() == "Empty" {
		return nil, emptyEnvelopeError
	}

	// A union holds exactly one body.
	count := 0
	for _, set := range []bool{
		envelope.Init != nil, envelope.Confirm != nil,
		envelope.Data != nil, envelope.End != nil,
		envelope.Error != nil, envelope.Reject != nil} {
		if set {
			count++
		}
	}
	if count != 1 {
		return nil, errors.Errorf(
			"malformed session message: %v bodies set", count)
	}

	return envelope, nil
}

// MarshalPayload converts a user value into the opaque payload bytes
// carried by SessionInit and SessionData.
func MarshalPayload(value interface{}) ([]byte, error) {
	return enc_mode.Marshal(value)
}

func UnmarshalPayload(data []byte, target interface{}) error {
	return dec_mode.Unmarshal(data, target)
}
