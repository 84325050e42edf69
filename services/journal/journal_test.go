package journal_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/services"
	"github.com/varunkm/corda/services/journal"
)

func makeJournal(t *testing.T, buffer_size int) services.JournalService {
	config_obj := &config.Config{
		PartyName: "JournalTest-" + t.Name(),
		Flows:     &config.FlowsConfig{FeedBufferSize: buffer_size},
		Datastore: &config.DatastoreConfig{Implementation: "Memory"},
	}
	require.NoError(t, config_obj.Validate())

	wg := &sync.WaitGroup{}
	require.NoError(t, journal.StartJournalService(
		context.Background(), wg, config_obj))

	svc, err := services.GetJournal(config_obj)
	require.NoError(t, err)
	return svc
}

func TestJournalDeliversInOrder(t *testing.T) {
	svc := makeJournal(t, 100)

	output, cancel := svc.Watch("StateMachines")
	defer cancel()

	for i := 0; i < 5; i++ {
		svc.PushRow("StateMachines", ordereddict.NewDict().Set("i", i))
	}

	for i := 0; i < 5; i++ {
		select {
		case row := <-output:
			value, _ := row.Get("i")
			assert.Equal(t, i, value)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for row %v", i)
		}
	}
}

func TestJournalIsolatesQueues(t *testing.T) {
	svc := makeJournal(t, 100)

	output, cancel := svc.Watch("Progress.run1")
	defer cancel()

	svc.PushRow("Progress.run2", ordereddict.NewDict().Set("Step", "other"))
	svc.PushRow("Progress.run1", ordereddict.NewDict().Set("Step", "mine"))

	row := <-output
	step, _ := row.Get("Step")
	assert.Equal(t, "mine", step)
}

func TestJournalSlowWatcherDropsOldest(t *testing.T) {
	svc := makeJournal(t, 2)

	output, cancel := svc.Watch("StateMachines")
	defer cancel()

	// Flood without reading. The watcher goroutine may race one or
	// two rows out of the buffer, so only the tail is exact.
	for i := 0; i < 10; i++ {
		svc.PushRow("StateMachines", ordereddict.NewDict().Set("i", i))
	}

	seen_marker := false
	values := []interface{}{}
	for len(values) < 2 || values[len(values)-1] != 9 {
		select {
		case row := <-output:
			_, lost := row.Get("_Lost")
			if lost {
				seen_marker = true
				continue
			}
			value, _ := row.Get("i")
			values = append(values, value)

		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, saw %v", values)
		}
	}

	// Rows were dropped and the watcher was told.
	assert.True(t, seen_marker)
	assert.True(t, len(values) < 10)
	assert.Equal(t, 9, values[len(values)-1])
	assert.Equal(t, 8, values[len(values)-2])
}

func TestJournalCancelClosesOutput(t *testing.T) {
	svc := makeJournal(t, 10)

	output, cancel := svc.Watch("StateMachines")
	cancel()

	select {
	case _, ok := <-output:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("output not closed after cancel")
	}
}
