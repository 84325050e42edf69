package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := MarshalPayload("Hello")
	require.NoError(t, err)

	envelopes := []*Envelope{
		{MessageId: "run1/0", Init: &SessionInit{
			InitiatorSessionId: NewSessionID(),
			FlowClassName:      "com.example.PingFlow",
			FlowVersion:        2,
			ApplicationId:      "corda",
			FirstPayload:       payload,
		}},
		{MessageId: "run1/1", Confirm: &SessionConfirm{
			InitiatorSessionId: 12,
			ConfirmerSessionId: 13,
			FlowVersion:        1,
			ApplicationId:      "corda",
		}},
		{MessageId: "run1/2", Data: &SessionData{
			RecipientSessionId: 13,
			SeqNo:              4,
			Payload:            payload,
		}},
		{MessageId: "run1/3", End: &NormalSessionEnd{
			RecipientSessionId: 13,
			SeqNo:              5,
		}},
		{MessageId: "run1/4", Error: &ErrorSessionEnd{
			RecipientSessionId: 13,
			SeqNo:              5,
			Exception: &BusinessException{
				Type:    "com.example.MyFlowException",
				Message: "Nothing useful",
			},
		}},
		{MessageId: "run1/5", Reject: &SessionReject{
			InitiatorSessionId: 12,
			ErrorMessage:       "Don't know not.a.real.Class",
		}},
	}

	for _, envelope := range envelopes {
		serialized, err := MarshalEnvelope(envelope)
		require.NoError(t, err, envelope.Kind())

		decoded, err := UnmarshalEnvelope(serialized)
		require.NoError(t, err, envelope.Kind())
		assert.Equal(t, envelope, decoded)
	}
}

func TestEnvelopeDeterministic(t *testing.T) {
	envelope := &Envelope{MessageId: "run2/0", Data: &SessionData{
		RecipientSessionId: 42, SeqNo: 1, Payload: []byte("x"),
	}}

	first, err := MarshalEnvelope(envelope)
	require.NoError(t, err)

	second, err := MarshalEnvelope(envelope)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnvelopeRejectsEmptyAndMalformed(t *testing.T) {
	_, err := MarshalEnvelope(&Envelope{MessageId: "x"})
	assert.Error(t, err)

	serialized, err := MarshalPayload(map[string]interface{}{
		"message_id": "x",
	})
	require.NoError(t, err)

	_, err = UnmarshalEnvelope(serialized)
	assert.Error(t, err)

	_, err = UnmarshalEnvelope([]byte("garbage"))
	assert.Error(t, err)
}

func TestSessionIDIs63Bits(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.True(t, uint64(id) < 1<<63)
	}
}
