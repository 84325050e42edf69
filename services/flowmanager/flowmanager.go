// The flow manager (state machine manager) tracks every flow on the
// node from start to terminal transition. It owns the class
// registries, allocates run ids, resurrects checkpointed flows at
// startup and routes inbound session traffic to the right executor.

package flowmanager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/Velocidex/ttlcache/v2"
	"github.com/google/uuid"
	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/datastore"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/services"
	"github.com/varunkm/corda/utils"
	"github.com/varunkm/corda/wire"
)

const (
	STATE_MACHINES_QUEUE = "StateMachines"
	TX_MAPPINGS_QUEUE    = "TxMappings"
)

type pendingStart struct {
	run_id   string
	executor *flows.Executor
}

type FlowManagerService struct {
	mu sync.Mutex

	config_obj *config.Config
	logger     *logging.LogContext

	db        datastore.DataStore
	transport services.Transport
	journal   services.JournalService
	notifier  services.Notifier
	ledger    services.Ledger
	clock     utils.Clock

	party wire.Party

	registrations map[string]*flows.Registration
	responders    map[string]*flows.ResponderRegistration

	// Blank constructors per flow class name, for rebuilding frames
	// from checkpoints.
	blanks map[string]func() flows.Flow

	frozen        bool
	allow_dynamic bool

	executors     map[string]*flows.Executor
	session_index map[wire.SessionID]string
	results       map[string]chan *flows.TerminalResult

	// Responder dedup: "<endpoint>/<initiator-session-id>" for every
	// live responder, rebuilt from checkpoints on restart.
	initiated map[string]string

	// Messages for sessions we have not seen yet, buffered under
	// the destination session id.
	orphans map[wire.SessionID][]*orphan

	// Recently processed message ids, first line of defense against
	// redelivery.
	seen *ttlcache.Cache

	limiter *flows.InitLimiter

	// Starts requested before the manager is serving are queued;
	// their entry points have not run and no checkpoint exists yet.
	queued_starts []*pendingStart
	serving       bool

	ctx context.Context
	wg  *sync.WaitGroup
}

func (self *FlowManagerService) RegisterFlow(
	registration *flows.Registration) error {

	self.mu.Lock()
	defer self.mu.Unlock()

	if self.frozen && !self.allow_dynamic {
		return errors.New("flow registry is frozen after startup")
	}

	_, pres := self.registrations[registration.Name]
	if pres {
		return services.AlreadyRegisteredError
	}

	probe, err := registration.New()
	if err != nil {
		return errors.Wrap(err, "flow constructors must support zero arguments")
	}

	self.registrations[registration.Name] = registration
	self.blanks[probe.Name()] = func() flows.Flow {
		flow, _ := registration.New()
		return flow
	}
	return nil
}

func (self *FlowManagerService) RegisterResponder(
	registration *flows.ResponderRegistration) error {

	self.mu.Lock()
	defer self.mu.Unlock()

	if self.frozen && !self.allow_dynamic {
		return errors.New("flow registry is frozen after startup")
	}

	if registration.Initiating {
		return errors.Errorf(
			"flow responding to %v is itself marked initiating and "+
				"cannot be attached as a customization",
			registration.InitiatingClass)
	}

	_, pres := self.responders[registration.InitiatingClass]
	if pres {
		return services.AlreadyRegisteredError
	}

	probe := registration.New("")
	self.responders[registration.InitiatingClass] = registration
	self.blanks[probe.Name()] = func() flows.Flow {
		return registration.New("")
	}
	return nil
}

// AllowDynamicRegistration opens the frozen registry. Test harnesses
// only.
func (self *FlowManagerService) AllowDynamicRegistration() {
	self.mu.Lock()
	defer self.mu.Unlock()

	self.allow_dynamic = true
}

func (self *FlowManagerService) StartFlow(
	ctx context.Context,
	class_name string,
	args []interface{},
	initiator flows.InitiatorKind) (
	string, <-chan *flows.TerminalResult, error) {

	run_id, result, release, err := self.StartFlowHeld(
		ctx, class_name, args, initiator)
	if err != nil {
		return "", nil, err
	}

	release()
	return run_id, result, nil
}

func (self *FlowManagerService) StartFlowHeld(
	ctx context.Context,
	class_name string,
	args []interface{},
	initiator flows.InitiatorKind) (
	string, <-chan *flows.TerminalResult, func(), error) {

	self.mu.Lock()
	defer self.mu.Unlock()

	registration, pres := self.registrations[class_name]
	if !pres {
		return "", nil, nil, errors.Errorf(
			"unknown flow class %v", class_name)
	}

	flow, err := registration.New(args...)
	if err != nil {
		return "", nil, nil, errors.Wrap(err, "constructing flow")
	}

	run_id := uuid.New().String()
	executor := flows.NewExecutor(
		self.deps(), run_id, registration.Version, initiator, flow)

	result := make(chan *flows.TerminalResult, 1)
	self.executors[run_id] = executor
	self.results[run_id] = result

	flowsStarted.Inc()

	// The Added event precedes every externally observable side
	// effect of the flow - its entry point has not run yet.
	self.emitAdded(executor.Describe())

	release := func() {
		self.mu.Lock()
		defer self.mu.Unlock()

		if !self.serving {
			// Not network ready yet: the entry point runs, and the
			// initial checkpoint is taken, once the manager starts
			// serving.
			self.queued_starts = append(self.queued_starts,
				&pendingStart{run_id: run_id, executor: executor})
			return
		}

		executor.Start(self.ctx, self.wg, flows.EVENT_START)
	}
	return run_id, result, release, nil
}

func (self *FlowManagerService) KillFlow(run_id string) error {
	self.mu.Lock()
	executor, pres := self.executors[run_id]
	self.mu.Unlock()

	if !pres {
		return errors.Errorf("no flow with run id %v", run_id)
	}

	executor.Kill()
	return nil
}

func (self *FlowManagerService) Snapshot() []*flows.Descriptor {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]*flows.Descriptor, 0, len(self.executors))
	for _, executor := range self.executors {
		result = append(result, executor.Describe())
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RunId < result[j].RunId
	})
	return result
}

func (self *FlowManagerService) RegisteredFlows() []string {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := make([]string, 0, len(self.registrations))
	for name := range self.registrations {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

func (self *FlowManagerService) StartableByRPC(class_name string) bool {
	self.mu.Lock()
	defer self.mu.Unlock()

	registration, pres := self.registrations[class_name]
	return pres && registration.StartableByRPC
}

func (self *FlowManagerService) emitAdded(descriptor *flows.Descriptor) {
	self.journal.PushRow(STATE_MACHINES_QUEUE, ordereddict.NewDict().
		Set("Event", "Added").
		Set("RunId", descriptor.RunId).
		Set("ClassName", descriptor.ClassName).
		Set("Initiator", descriptor.Initiator.String()))
}

func (self *FlowManagerService) onTerminal(
	run_id string, terminal *flows.TerminalResult) {

	self.mu.Lock()

	delete(self.executors, run_id)
	for key, owner := range self.initiated {
		if owner == run_id {
			delete(self.initiated, key)
		}
	}

	result, pres := self.results[run_id]
	delete(self.results, run_id)

	journal := self.journal
	notifier := self.notifier
	self.mu.Unlock()

	if terminal.Err != nil {
		flowsErrored.Inc()
	}

	row := ordereddict.NewDict().
		Set("Event", "Removed").
		Set("RunId", run_id)
	if terminal.Err != nil {
		row.Set("Error", terminal.Err.Error())
	}
	journal.PushRow(STATE_MACHINES_QUEUE, row)

	if pres {
		result <- terminal
	}

	// Low latency wakeup for anyone polling this flow.
	notifier.NotifyListener("Flow." + run_id)
}

// deps builds the executor dependency set. Must be called under the
// lock or before the service is shared.
func (self *FlowManagerService) deps() *flows.Deps {
	return &flows.Deps{
		ConfigObj: self.config_obj,
		DB:        self.db,
		Clock:     self.clock,

		Send: func(to wire.Party, message_id string, data []byte) {
			err := self.transport.Send(self.party, to, message_id, data)
			if err != nil {
				self.logger.Error("Sending %v to %v: %v",
					message_id, to, err)
			}
		},

		Ack: func(message_id string) {
			self.transport.Ack(self.party, message_id)
		},

		ResolveEndpoint: self.transport.ResolveEndpoint,

		NewFlow: func(class_name string) (flows.Flow, error) {
			self.mu.Lock()
			defer self.mu.Unlock()

			blank, pres := self.blanks[class_name]
			if !pres {
				return nil, errors.Errorf(
					"no registered flow class %v", class_name)
			}
			return blank(), nil
		},

		RegisterSession:   self.registerSession,
		UnregisterSession: self.unregisterSession,

		WaitLedger: func(tx_hash string) <-chan struct{} {
			return self.ledger.WaitForCommit(tx_hash)
		},

		EmitProgress: func(run_id, label string) {
			self.journal.PushRow("Progress."+run_id,
				ordereddict.NewDict().
					Set("RunId", run_id).
					Set("Step", label))
		},

		EmitMapping: func(run_id, tx_hash string) {
			self.journal.PushRow(TX_MAPPINGS_QUEUE,
				ordereddict.NewDict().
					Set("RunId", run_id).
					Set("TxHash", tx_hash))
		},

		OnTerminal: self.onTerminal,
	}
}

func StartFlowManagerService(
	ctx context.Context, wg *sync.WaitGroup,
	config_obj *config.Config) (*FlowManagerService, error) {

	db, err := datastore.GetDB(config_obj)
	if err != nil {
		return nil, err
	}

	transport, err := services.GetTransport(config_obj)
	if err != nil {
		return nil, err
	}

	journal, err := services.GetJournal(config_obj)
	if err != nil {
		return nil, err
	}

	notifier, err := services.GetNotifier(config_obj)
	if err != nil {
		return nil, err
	}

	ledger, err := services.GetLedger(config_obj)
	if err != nil {
		return nil, err
	}

	seen := ttlcache.NewCache()
	_ = seen.SetTTL(time.Hour)
	seen.SkipTTLExtensionOnHit(true)

	service := &FlowManagerService{
		config_obj:    config_obj,
		logger:        logging.GetLogger(config_obj, &logging.FlowComponent),
		db:            db,
		transport:     transport,
		journal:       journal,
		notifier:      notifier,
		ledger:        ledger,
		clock:         utils.RealClock{},
		party:         wire.Party(config_obj.PartyName),
		registrations: make(map[string]*flows.Registration),
		responders:    make(map[string]*flows.ResponderRegistration),
		blanks:        make(map[string]func() flows.Flow),
		executors:     make(map[string]*flows.Executor),
		session_index: make(map[wire.SessionID]string),
		results:       make(map[string]chan *flows.TerminalResult),
		initiated:     make(map[string]string),
		orphans:       make(map[wire.SessionID][]*orphan),
		seen:          seen,
		limiter:       flows.NewInitLimiter(config_obj),
		ctx:           ctx,
		wg:            wg,
	}

	services.RegisterFlowManager(config_obj, service)
	service.logger.Info("<green>Starting</> Flow Manager service for %v.",
		config_obj.PartyName)
	return service, nil
}

// Serve resurrects every checkpointed flow and then opens the node to
// inbound traffic and queued starts. Registrations freeze here.
func (self *FlowManagerService) Serve() error {
	self.mu.Lock()
	self.frozen = true
	self.mu.Unlock()

	err := self.resurrect()
	if err != nil {
		return err
	}

	// Only now is the node willing to accept user traffic.
	self.transport.Register(self.party, self.handleInbound)
	if bus, ok := self.transport.(interface {
		Redeliver(recipient wire.Party)
	}); ok {
		bus.Redeliver(self.party)
	}

	self.mu.Lock()
	self.serving = true
	queued := self.queued_starts
	self.queued_starts = nil
	self.mu.Unlock()

	for _, start := range queued {
		start.executor.Start(self.ctx, self.wg, flows.EVENT_START)
	}
	return nil
}

// Stop halts inbound traffic. Live flows reach their next suspension
// point, checkpoint and park; the executor goroutines then drain via
// the shared context and wait group.
func (self *FlowManagerService) Stop() {
	self.transport.Unregister(self.party)

	self.mu.Lock()
	self.serving = false
	self.mu.Unlock()

	self.logger.Info("Flow Manager for %v stopped.", self.config_obj.PartyName)
}
