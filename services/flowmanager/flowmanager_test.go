package flowmanager_test

// Multi-node harness: several nodes in one process, wired over the
// in-process bus behind a recording decorator so tests can assert the
// exact wire traffic.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/varunkm/corda/comms"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/datastore"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/services"
	"github.com/varunkm/corda/services/flowmanager"
	"github.com/varunkm/corda/startup"
	"github.com/varunkm/corda/wire"
)

type traceEntry struct {
	From wire.Party
	To   wire.Party
	Kind string

	// Decoded integer payload of SessionData, when it is one.
	Value int
}

type wireSpy struct {
	*comms.InProcessBus

	mu    sync.Mutex
	trace []*traceEntry
}

func newWireSpy() *wireSpy {
	return &wireSpy{InProcessBus: comms.NewInProcessBus()}
}

func (self *wireSpy) Send(
	from, to wire.Party, message_id string, data []byte) error {

	entry := &traceEntry{From: from, To: to, Kind: "?"}
	envelope, err := wire.UnmarshalEnvelope(data)
	if err == nil {
		entry.Kind = envelope.Kind()
		if envelope.Data != nil {
			_ = wire.UnmarshalPayload(envelope.Data.Payload, &entry.Value)
		}
	}

	self.mu.Lock()
	self.trace = append(self.trace, entry)
	self.mu.Unlock()

	return self.InProcessBus.Send(from, to, message_id, data)
}

// kinds returns the message kinds sent from one party to another, in
// order.
func (self *wireSpy) kinds(from, to wire.Party) []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []string{}
	for _, entry := range self.trace {
		if entry.From == from && entry.To == to {
			result = append(result, entry.Kind)
		}
	}
	return result
}

func (self *wireSpy) values(from, to wire.Party) []int {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := []int{}
	for _, entry := range self.trace {
		if entry.From == from && entry.To == to &&
			entry.Kind == "SessionData" {
			result = append(result, entry.Value)
		}
	}
	return result
}

func (self *wireSpy) total() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.trace)
}

type testNode struct {
	t   *testing.T
	env *testEnv

	config_obj *config.Config
	manager    *flowmanager.FlowManagerService
	db         datastore.DataStore

	ctx    context.Context
	cancel func()
	wg     *sync.WaitGroup

	register func(manager services.FlowManager)
}

type testEnv struct {
	t   *testing.T
	spy *wireSpy

	nodes map[string]*testNode
}

func newTestEnv(t *testing.T) *testEnv {
	return &testEnv{
		t:     t,
		spy:   newWireSpy(),
		nodes: make(map[string]*testNode),
	}
}

// party builds a test-unique party name so state in the process wide
// registries never leaks between tests.
func (self *testEnv) party(name string) wire.Party {
	clean := strings.NewReplacer("/", "_", " ", "_").Replace(self.t.Name())
	return wire.Party(fmt.Sprintf("%s-%s", name, clean))
}

// addNode starts a node. register is invoked to install the node's
// flow classes before it begins serving, and again on every restart.
func (self *testEnv) addNode(
	name string, register func(manager services.FlowManager)) *testNode {

	node := &testNode{
		t:        self.t,
		env:      self,
		register: register,
	}
	self.nodes[name] = node
	node.boot(string(self.party(name)))
	return node
}

func (self *testNode) boot(party_name string) {
	config_obj := &config.Config{
		PartyName: party_name,
		Datastore: &config.DatastoreConfig{Implementation: "Memory"},
	}
	require.NoError(self.t, config_obj.Validate())
	self.config_obj = config_obj

	self.ctx, self.cancel = context.WithCancel(context.Background())
	self.wg = &sync.WaitGroup{}

	services.RegisterTransport(config_obj, self.env.spy)

	node_services, err := startup.StartNodeServices(
		self.ctx, self.wg, config_obj)
	require.NoError(self.t, err)

	self.manager = node_services.Manager
	if self.register != nil {
		self.register(self.manager)
	}
	require.NoError(self.t, self.manager.Serve())

	db, err := datastore.GetDB(config_obj)
	require.NoError(self.t, err)
	self.db = db
}

func (self *testNode) party() wire.Party {
	return wire.Party(self.config_obj.PartyName)
}

// crash kills the node: executor goroutines stop, all in-memory state
// is dropped. The datastore survives.
func (self *testNode) crash() {
	self.manager.Stop()
	self.cancel()
	self.wg.Wait()
}

// restart boots a fresh node instance against the retained datastore,
// resurrecting whatever was checkpointed.
func (self *testNode) restart() {
	self.boot(self.config_obj.PartyName)
}

func (self *testNode) checkpointCount() int {
	run_ids, err := self.db.ListCheckpoints()
	require.NoError(self.t, err)
	return len(run_ids)
}

// startAndWait runs a flow to its terminal result.
func (self *testNode) startAndWait(
	class_name string, args ...interface{}) *flows.TerminalResult {

	_, result, err := self.manager.StartFlow(
		context.Background(), class_name, args, flows.INITIATOR_SHELL)
	require.NoError(self.t, err)
	return <-result
}
