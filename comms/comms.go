package comms

// An in-process message bus satisfying the transport contract: party
// addressed, FIFO per (sender, recipient) pair, at least once. Every
// message is retained until the recipient acknowledges it, so a node
// rebuilt from its checkpoints can ask for redelivery of whatever it
// had accepted but not durably processed.

// Real deployments put a broker behind the services.Transport
// interface instead; the flow framework never notices the
// difference.

import (
	"sync"

	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/services"
	"github.com/varunkm/corda/wire"
)

type delivery struct {
	from       wire.Party
	message_id string
	data       []byte
}

type mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue   []*delivery
	handler services.TransportHandler

	// Send-ordered messages not yet acknowledged.
	unacked []*delivery

	stopped bool
}

func newMailbox() *mailbox {
	self := &mailbox{}
	self.cond = sync.NewCond(&self.mu)

	go self.pump()
	return self
}

func (self *mailbox) pump() {
	for {
		self.mu.Lock()
		for !self.stopped && (self.handler == nil || len(self.queue) == 0) {
			self.cond.Wait()
		}
		if self.stopped {
			self.mu.Unlock()
			return
		}

		item := self.queue[0]
		self.queue = self.queue[1:]
		handler := self.handler
		self.mu.Unlock()

		handler(item.from, item.message_id, item.data)
	}
}

type group struct {
	endpoints []wire.Party
	next      int
}

type InProcessBus struct {
	mu sync.Mutex

	mailboxes map[wire.Party]*mailbox
	groups    map[wire.Party]*group
}

func NewInProcessBus() *InProcessBus {
	return &InProcessBus{
		mailboxes: make(map[wire.Party]*mailbox),
		groups:    make(map[wire.Party]*group),
	}
}

func (self *InProcessBus) mailbox(party wire.Party) *mailbox {
	self.mu.Lock()
	defer self.mu.Unlock()

	box, pres := self.mailboxes[party]
	if !pres {
		box = newMailbox()
		self.mailboxes[party] = box
	}
	return box
}

func (self *InProcessBus) Register(
	party wire.Party, handler services.TransportHandler) {

	box := self.mailbox(party)

	box.mu.Lock()
	box.handler = handler
	box.cond.Broadcast()
	box.mu.Unlock()
}

func (self *InProcessBus) Unregister(party wire.Party) {
	box := self.mailbox(party)

	box.mu.Lock()
	box.handler = nil
	box.mu.Unlock()
}

func (self *InProcessBus) Send(
	from, to wire.Party, message_id string, data []byte) error {

	if to == "" {
		return errors.New("message has no recipient")
	}

	box := self.mailbox(to)

	item := &delivery{from: from, message_id: message_id, data: data}

	box.mu.Lock()
	// Redelivery of a retained message must not retain it twice.
	known := false
	for _, retained := range box.unacked {
		if retained.message_id == message_id {
			known = true
			break
		}
	}
	if !known {
		box.unacked = append(box.unacked, item)
	}
	box.queue = append(box.queue, item)
	box.cond.Broadcast()
	box.mu.Unlock()

	return nil
}

func (self *InProcessBus) Ack(recipient wire.Party, message_id string) {
	box := self.mailbox(recipient)

	box.mu.Lock()
	defer box.mu.Unlock()

	result := make([]*delivery, 0, len(box.unacked))
	for _, item := range box.unacked {
		if item.message_id != message_id {
			result = append(result, item)
		}
	}
	box.unacked = result
}

// Redeliver queues every unacknowledged message again, in original
// send order. Called after a node is rebuilt from its checkpoints.
func (self *InProcessBus) Redeliver(recipient wire.Party) {
	box := self.mailbox(recipient)

	box.mu.Lock()
	box.queue = append(box.queue, box.unacked...)
	box.cond.Broadcast()
	box.mu.Unlock()
}

// Close stops all delivery pumps. Only for tests and process
// shutdown - a closed bus cannot be reopened.
func (self *InProcessBus) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()

	for _, box := range self.mailboxes {
		box.mu.Lock()
		box.stopped = true
		box.cond.Broadcast()
		box.mu.Unlock()
	}
}

func (self *InProcessBus) RegisterGroup(
	logical wire.Party, endpoints []wire.Party) {

	self.mu.Lock()
	defer self.mu.Unlock()

	self.groups[logical] = &group{endpoints: endpoints}
}

func (self *InProcessBus) ResolveEndpoint(logical wire.Party) wire.Party {
	self.mu.Lock()
	defer self.mu.Unlock()

	g, pres := self.groups[logical]
	if !pres || len(g.endpoints) == 0 {
		return logical
	}

	endpoint := g.endpoints[g.next%len(g.endpoints)]
	g.next++
	return endpoint
}
