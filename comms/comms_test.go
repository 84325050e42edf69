package comms

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varunkm/corda/wire"
)

type recorder struct {
	mu       sync.Mutex
	received []string
}

func (self *recorder) handler(from wire.Party, message_id string, data []byte) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.received = append(self.received, string(data))
}

func (self *recorder) snapshot() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]string{}, self.received...)
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestFIFOPerPair(t *testing.T) {
	bus := NewInProcessBus()
	defer bus.Close()
	bob := &recorder{}
	bus.Register("Bob", bob.handler)

	for i := byte('a'); i <= 'e'; i++ {
		require.NoError(t, bus.Send("Alice", "Bob",
			"m"+string(i), []byte{i}))
	}

	waitFor(t, func() bool { return len(bob.snapshot()) == 5 })
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, bob.snapshot())
}

func TestQueuesBeforeRegistration(t *testing.T) {
	bus := NewInProcessBus()
	defer bus.Close()
	require.NoError(t, bus.Send("Alice", "Bob", "m1", []byte("early")))

	bob := &recorder{}
	bus.Register("Bob", bob.handler)

	waitFor(t, func() bool { return len(bob.snapshot()) == 1 })
	assert.Equal(t, []string{"early"}, bob.snapshot())
}

func TestRedeliverUnacked(t *testing.T) {
	bus := NewInProcessBus()
	defer bus.Close()
	bob := &recorder{}
	bus.Register("Bob", bob.handler)

	require.NoError(t, bus.Send("Alice", "Bob", "m1", []byte("one")))
	require.NoError(t, bus.Send("Alice", "Bob", "m2", []byte("two")))
	waitFor(t, func() bool { return len(bob.snapshot()) == 2 })

	bus.Ack("Bob", "m1")
	bus.Redeliver("Bob")

	waitFor(t, func() bool { return len(bob.snapshot()) == 3 })
	assert.Equal(t, []string{"one", "two", "two"}, bob.snapshot())

	// Acked messages are gone for good.
	bus.Ack("Bob", "m2")
	bus.Redeliver("Bob")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, len(bob.snapshot()))
}

func TestResendDoesNotRetainTwice(t *testing.T) {
	bus := NewInProcessBus()
	defer bus.Close()
	bob := &recorder{}
	bus.Register("Bob", bob.handler)

	// The same message id sent twice (sender republish after its own
	// restart) is delivered twice but retained once.
	require.NoError(t, bus.Send("Alice", "Bob", "m1", []byte("x")))
	require.NoError(t, bus.Send("Alice", "Bob", "m1", []byte("x")))
	waitFor(t, func() bool { return len(bob.snapshot()) == 2 })

	bus.Ack("Bob", "m1")
	bus.Redeliver("Bob")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, len(bob.snapshot()))
}

func TestRoundRobinGroups(t *testing.T) {
	bus := NewInProcessBus()
	defer bus.Close()
	bus.RegisterGroup("Notary", []wire.Party{
		"Notary-1", "Notary-2", "Notary-3"})

	assert.Equal(t, wire.Party("Notary-1"), bus.ResolveEndpoint("Notary"))
	assert.Equal(t, wire.Party("Notary-2"), bus.ResolveEndpoint("Notary"))
	assert.Equal(t, wire.Party("Notary-3"), bus.ResolveEndpoint("Notary"))

	// The fourth pick reuses the first endpoint.
	assert.Equal(t, wire.Party("Notary-1"), bus.ResolveEndpoint("Notary"))

	// Plain parties resolve to themselves.
	assert.Equal(t, wire.Party("Bob"), bus.ResolveEndpoint("Bob"))
}
