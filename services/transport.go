package services

// The transport contract the flow framework requires: a reliable,
// party addressed message bus with FIFO delivery per (sender,
// recipient) pair and at least once semantics. Several nodes in one
// process typically register against the same bus instance.

import (
	"sync"

	"github.com/varunkm/corda/config"
	"github.com/varunkm/corda/wire"
)

var (
	transport_mu sync.Mutex
	g_transport  = make(map[string]Transport)
)

// A delivery handler. Returning is the signal that the message was
// accepted into the node; acknowledgment happens separately once the
// message's effects are durable.
type TransportHandler func(from wire.Party, message_id string, data []byte)

type Transport interface {
	// Register the handler receiving traffic addressed to party.
	Register(party wire.Party, handler TransportHandler)

	// Stop delivering to party. In flight handlers complete.
	Unregister(party wire.Party)

	Send(from, to wire.Party, message_id string, data []byte) error

	// Acknowledge a fully processed message so it is not
	// redelivered.
	Ack(recipient wire.Party, message_id string)

	// Declare that the logical identity is served by several
	// concrete endpoints.
	RegisterGroup(logical wire.Party, endpoints []wire.Party)

	// Pick the endpoint for the next SessionInit to a logical
	// identity. Round-robin for groups; identity for plain parties.
	ResolveEndpoint(logical wire.Party) wire.Party
}

func GetTransport(config_obj *config.Config) (Transport, error) {
	transport_mu.Lock()
	defer transport_mu.Unlock()

	transport, pres := g_transport[config_obj.PartyName]
	if !pres {
		return nil, NotRegisteredError
	}
	return transport, nil
}

func RegisterTransport(config_obj *config.Config, transport Transport) {
	transport_mu.Lock()
	defer transport_mu.Unlock()

	g_transport[config_obj.PartyName] = transport
}
