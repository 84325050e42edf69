package services

// The flow manager (state machine manager) owns the full lifecycle of
// flows on this node: starting, resurrecting, routing inbound session
// traffic, tracking live flows and reporting terminal results.

import (
	"context"
	"sync"

	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/flows"
)

var (
	manager_mu sync.Mutex
	g_manager  = make(map[string]FlowManager)
)

type FlowManager interface {
	// Register a startable flow class. Only allowed before the
	// manager starts serving, unless dynamic registration was
	// explicitly enabled for tests.
	RegisterFlow(registration *flows.Registration) error

	// Register the responder spawned for a peer's SessionInit
	// naming the initiating class.
	RegisterResponder(registration *flows.ResponderRegistration) error

	// Start a flow. The result channel receives the terminal
	// result exactly once.
	StartFlow(
		ctx context.Context,
		class_name string,
		args []interface{},
		initiator flows.InitiatorKind) (
		run_id string, result <-chan *flows.TerminalResult, err error)

	// Like StartFlow, but the flow's entry point does not run until
	// release is called. Lets a caller subscribe to the flow's
	// feeds before it can possibly emit anything.
	StartFlowHeld(
		ctx context.Context,
		class_name string,
		args []interface{},
		initiator flows.InitiatorKind) (
		run_id string, result <-chan *flows.TerminalResult,
		release func(), err error)

	// Request external termination, honored at the flow's next
	// suspension point.
	KillFlow(run_id string) error

	// Snapshot of the live flows.
	Snapshot() []*flows.Descriptor

	// Names of all registered startable flow classes.
	RegisteredFlows() []string

	// True when the class may be started over RPC.
	StartableByRPC(class_name string) bool
}

func GetFlowManager(config_obj *config.Config) (FlowManager, error) {
	manager_mu.Lock()
	defer manager_mu.Unlock()

	manager, pres := g_manager[config_obj.PartyName]
	if !pres {
		return nil, NotRegisteredError
	}
	return manager, nil
}

func RegisterFlowManager(config_obj *config.Config, manager FlowManager) {
	manager_mu.Lock()
	defer manager_mu.Unlock()

	g_manager[config_obj.PartyName] = manager
}
