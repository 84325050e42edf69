// The journal service fans feed rows out to watchers. It backs every
// external stream the node offers (state machine updates, progress
// trackers, transaction mappings).

// Watchers must never be able to stall a flow: each listener has a
// bounded buffer, and when it overflows the oldest row is dropped and
// replaced with a loss marker so the consumer knows its view has a
// gap.

package journal

import (
	"context"
	"sync"

	"github.com/Velocidex/ordereddict"
	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/logging"
	"github.com/varunkm/corda/services"
)

type Listener struct {
	id     int64
	buffer []*ordereddict.Dict
	lost   bool
	limit  int
	notify chan bool
	closed bool
}

type JournalService struct {
	mu sync.Mutex

	config_obj *config.Config
	logger     *logging.LogContext

	next_id       int64
	registrations map[string][]*Listener
	buffer_size   int
}

func (self *JournalService) Watch(queue_name string) (
	output <-chan *ordereddict.Dict, cancel func()) {

	self.mu.Lock()
	self.next_id++
	listener := &Listener{
		id:     self.next_id,
		limit:  self.buffer_size,
		notify: make(chan bool, 1),
	}
	self.registrations[queue_name] = append(
		self.registrations[queue_name], listener)
	self.mu.Unlock()

	output_chan := make(chan *ordereddict.Dict)
	done := make(chan bool)

	go func() {
		defer close(output_chan)

		for {
			row := self.take(listener)
			if row == nil {
				select {
				case <-done:
					return
				case _, ok := <-listener.notify:
					if !ok {
						return
					}
					continue
				}
			}

			select {
			case <-done:
				return
			case output_chan <- row:
			}
		}
	}()

	return output_chan, func() {
		self.unregister(queue_name, listener.id)
		close(done)
	}
}

// take pops the next buffered row for the listener, injecting a loss
// marker first if rows were dropped.
func (self *JournalService) take(listener *Listener) *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	if listener.lost {
		listener.lost = false
		return ordereddict.NewDict().Set("_Lost", true)
	}

	if len(listener.buffer) == 0 {
		return nil
	}

	row := listener.buffer[0]
	listener.buffer = listener.buffer[1:]
	return row
}

func (self *JournalService) PushRow(
	queue_name string, row *ordereddict.Dict) {

	self.mu.Lock()
	defer self.mu.Unlock()

	for _, listener := range self.registrations[queue_name] {
		if len(listener.buffer) >= listener.limit {
			// Slow watcher - drop the oldest row.
			listener.buffer = listener.buffer[1:]
			listener.lost = true
		}
		listener.buffer = append(listener.buffer, row)

		select {
		case listener.notify <- true:
		default:
		}
	}
}

func (self *JournalService) unregister(queue_name string, id int64) {
	self.mu.Lock()
	defer self.mu.Unlock()

	registrations := self.registrations[queue_name]
	result := make([]*Listener, 0, len(registrations))
	for _, listener := range registrations {
		if listener.id == id {
			if !listener.closed {
				listener.closed = true
				close(listener.notify)
			}
		} else {
			result = append(result, listener)
		}
	}
	self.registrations[queue_name] = result
}

func StartJournalService(
	ctx context.Context, wg *sync.WaitGroup,
	config_obj *config.Config) error {

	service := &JournalService{
		config_obj:    config_obj,
		logger:        logging.GetLogger(config_obj, &logging.NodeComponent),
		registrations: make(map[string][]*Listener),
		buffer_size:   config_obj.Flows.FeedBufferSize,
	}

	services.RegisterJournal(config_obj, service)
	service.logger.Info("<green>Starting</> Journal service.")
	return nil
}
