package flows

import (
	"errors"
	"fmt"

	"github.com/varunkm/corda/wire"
)

// A BusinessError is an error kind explicitly declared safe to
// transmit across a session. Anything else thrown inside a flow is
// masked on the wire - the peer only learns that the flow ended
// unexpectedly.
type BusinessError interface {
	error
	BusinessErrorType() string
}

// FlowException is the standard declared business exception. Embed or
// use it directly; the type name is what the peer sees.
type FlowException struct {
	Type    string
	Message string
}

func NewFlowException(error_type, message string) *FlowException {
	return &FlowException{Type: error_type, Message: message}
}

func (self *FlowException) Error() string {
	return self.Message
}

func (self *FlowException) BusinessErrorType() string {
	return self.Type
}

// PeerException is the re-raised copy of a business exception that a
// counterparty transmitted. It is deliberately a distinct type from
// FlowException - the local code did not throw it.
type PeerException struct {
	Type    string
	Message string
	Peer    wire.Party

	// Local backtrace of the receive that observed the failure.
	// Never transmitted.
	Trace string
}

func (self *PeerException) Error() string {
	return self.Message
}

func (self *PeerException) BusinessErrorType() string {
	return self.Type
}

// UnexpectedFlowEnd is raised at a pending receive when the
// counterparty ends the session, rejects the init, fails without a
// declared exception, or the receive times out. It never carries any
// detail of the peer's failure.
type UnexpectedFlowEnd struct {
	ExpectedType string
	Reason       string

	// Local backtrace of the receive that observed the failure.
	Trace string
}

func (self *UnexpectedFlowEnd) Error() string {
	if self.ExpectedType != "" {
		return fmt.Sprintf(
			"counterparty flow ended unexpectedly while waiting for %v: %v",
			self.ExpectedType, self.Reason)
	}
	return fmt.Sprintf("counterparty flow ended unexpectedly: %v", self.Reason)
}

// KilledError is the terminal result of an externally terminated
// flow.
type KilledError struct{}

func (self *KilledError) Error() string {
	return "flow killed"
}

// AsBusinessError unwraps err down to a declared business error, if
// there is one.
func AsBusinessError(err error) (BusinessError, bool) {
	var business BusinessError
	if errors.As(err, &business) {
		return business, true
	}
	return nil, false
}

// ToWireException converts a terminal error into what may travel in
// an ErrorSessionEnd. Undeclared errors produce nil - a bare error
// end.
func ToWireException(err error) *wire.BusinessException {
	business, ok := AsBusinessError(err)
	if !ok {
		return nil
	}
	return &wire.BusinessException{
		Type:    business.BusinessErrorType(),
		Message: business.Error(),
	}
}
