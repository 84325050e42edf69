package flows

// Flows are multi-step business protocols written against the
// suspending primitives on the Coroutine. A flow implementation is an
// ordinary struct whose exported fields are its durable state - the
// runtime serializes them at every suspension point and rebuilds the
// struct on resume, so a flow survives a node restart mid protocol.

import (
	"fmt"

	"github.com/varunkm/corda/wire"
)

// A Flow breaks its body into an ordered list of steps. Each step
// runs from one suspension point to the next. Steps are closures over
// the flow struct so state written in one step is visible to later
// ones (and checkpointed in between).
type Flow interface {
	// The fully qualified flow class name, e.g.
	// "com.example.PingFlow". This is what travels in SessionInit.
	Name() string

	Steps() []Step
}

type Step struct {
	Label string
	Fn    StepFn
}

type StepFn func(co *Coroutine) error

// Who asked for this flow to run.
type InitiatorKind int

const (
	INITIATOR_RPC InitiatorKind = iota
	INITIATOR_PEER
	INITIATOR_SCHEDULED
	INITIATOR_SHELL
)

func (self InitiatorKind) String() string {
	switch self {
	case INITIATOR_RPC:
		return "rpc-user"
	case INITIATOR_PEER:
		return "peer"
	case INITIATOR_SCHEDULED:
		return "scheduled"
	case INITIATOR_SHELL:
		return "shell"
	}
	return fmt.Sprintf("%d", self)
}

// Registration of a flow class that can be started locally.
type Registration struct {
	Name    string
	Version int

	// Required for starts over the RPC surface. Peer initiated and
	// shell starts ignore it.
	StartableByRPC bool

	// Marks the class as session initiating. Initiating classes can
	// not be attached as responder customizations of other
	// initiating classes.
	Initiating bool

	New func(args ...interface{}) (Flow, error)
}

// Registration of the responder spawned when a peer's SessionInit
// names the initiating class.
type ResponderRegistration struct {
	InitiatingClass string
	Version         int

	// Set when the responder flow class is itself marked
	// initiating. Rejected at registration time.
	Initiating bool

	New func(peer wire.Party) Flow
}

// A point in time description of a live flow, exposed through the
// state machine snapshot and the Added feed event.
type Descriptor struct {
	RunId        string
	ClassName    string
	Initiator    InitiatorKind
	ProgressStep string
}
