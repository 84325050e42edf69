package flowmanager_test

// The flow classes used by the scenario tests.

import (
	"sync/atomic"
	"time"

	errors "github.com/pkg/errors"
	"github.com/varunkm/corda/flows"
	"github.com/varunkm/corda/wire"
)

type PingPongResult struct {
	First  int
	Second int
}

// PingFlow sends 10 and expects two return values.
type PingFlow struct {
	Peer   wire.Party
	First  int
	Second int
}

func (self *PingFlow) Name() string { return "com.example.PingFlow" }

func (self *PingFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "ping", Fn: func(co *flows.Coroutine) error {
			co.Progress("Pinging")
			err := co.Send(self.Peer, 10)
			if err != nil {
				return err
			}
			return co.Receive(self.Peer, "int")
		}},
		{Label: "first-reply", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.First)
			if err != nil {
				return err
			}
			return co.SendAndReceive(self.Peer, 11, "int")
		}},
		{Label: "second-reply", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.Second)
			if err != nil {
				return err
			}
			co.Progress("Done")
			return co.Return(&PingPongResult{
				First:  self.First,
				Second: self.Second,
			})
		}},
	}
}

func pingRegistration(version int) *flows.Registration {
	return &flows.Registration{
		Name:           "com.example.PingFlow",
		Version:        version,
		StartableByRPC: true,
		Initiating:     true,
		New: func(args ...interface{}) (flows.Flow, error) {
			flow := &PingFlow{}
			if len(args) > 0 {
				flow.Peer = args[0].(wire.Party)
			}
			return flow, nil
		},
	}
}

// PongFlow is the responder: reads the init payload, sends 20,
// receives 11, sends 21.
type PongFlow struct {
	Peer wire.Party
	N    int
	M    int
}

func (self *PongFlow) Name() string { return "com.example.PongFlow" }

func (self *PongFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait-ping", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "int")
		}},
		{Label: "pong", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.N)
			if err != nil {
				return err
			}
			return co.SendAndReceive(self.Peer, self.N+10, "int")
		}},
		{Label: "second-pong", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.M)
			if err != nil {
				return err
			}
			err = co.Send(self.Peer, self.M+10)
			if err != nil {
				return err
			}
			return co.Return(nil)
		}},
	}
}

func pongResponder(version int) *flows.ResponderRegistration {
	return &flows.ResponderRegistration{
		InitiatingClass: "com.example.PingFlow",
		Version:         version,
		New: func(peer wire.Party) flows.Flow {
			return &PongFlow{Peer: peer}
		},
	}
}

// HelloFlow sends a string and waits for the echo.
type HelloFlow struct {
	Peer  wire.Party
	Reply string
}

func (self *HelloFlow) Name() string { return "com.example.HelloFlow" }

func (self *HelloFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "hello", Fn: func(co *flows.Coroutine) error {
			err := co.Send(self.Peer, "Hello")
			if err != nil {
				return err
			}
			return co.Receive(self.Peer, "string")
		}},
		{Label: "reply", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.Reply)
			if err != nil {
				return err
			}
			return co.Return(self.Reply)
		}},
	}
}

func helloRegistration() *flows.Registration {
	return &flows.Registration{
		Name:           "com.example.HelloFlow",
		Version:        1,
		StartableByRPC: true,
		Initiating:     true,
		New: func(args ...interface{}) (flows.Flow, error) {
			flow := &HelloFlow{}
			if len(args) > 0 {
				flow.Peer = args[0].(wire.Party)
			}
			return flow, nil
		},
	}
}

// Counts deliveries observed by responder flows across the test
// process - flow instances themselves do not survive restarts, a
// package level counter does.
var echoDeliveries int64

// SleepyEchoFlow receives a string, parks on a sleep, then echoes.
// The sleep gives tests a stable window in which the node can be
// crashed while the received value only lives in the checkpoint.
type SleepyEchoFlow struct {
	Peer wire.Party
	Msg  string
}

func (self *SleepyEchoFlow) Name() string { return "com.example.SleepyEchoFlow" }

func (self *SleepyEchoFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait-hello", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
		{Label: "ingest", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.Msg)
			if err != nil {
				return err
			}
			atomic.AddInt64(&echoDeliveries, 1)
			return co.Sleep(150 * time.Millisecond)
		}},
		{Label: "echo", Fn: func(co *flows.Coroutine) error {
			err := co.Send(self.Peer, self.Msg)
			if err != nil {
				return err
			}
			return co.Return(nil)
		}},
	}
}

func sleepyEchoResponder() *flows.ResponderRegistration {
	return &flows.ResponderRegistration{
		InitiatingClass: "com.example.HelloFlow",
		Version:         1,
		New: func(peer wire.Party) flows.Flow {
			return &SleepyEchoFlow{Peer: peer}
		},
	}
}

// ThrowingFlow fails with a declared business exception.
type ThrowingFlow struct {
	Peer wire.Party
}

func (self *ThrowingFlow) Name() string { return "com.example.ThrowingFlow" }

func (self *ThrowingFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
		{Label: "throw", Fn: func(co *flows.Coroutine) error {
			return flows.NewFlowException(
				"com.example.MyFlowException", "Nothing useful")
		}},
	}
}

// BuggyFlow fails with an undeclared error that must never reach the
// wire.
type BuggyFlow struct {
	Peer wire.Party
}

func (self *BuggyFlow) Name() string { return "com.example.BuggyFlow" }

func (self *BuggyFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
		{Label: "bug", Fn: func(co *flows.Coroutine) error {
			return errors.New("evil bug!")
		}},
	}
}

// UnknownClassFlow initiates under a class name nobody registers a
// responder for.
type UnknownClassFlow struct {
	Peer wire.Party
}

func (self *UnknownClassFlow) Name() string { return "not.a.real.Class" }

func (self *UnknownClassFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "probe", Fn: func(co *flows.Coroutine) error {
			err := co.Send(self.Peer, "hi")
			if err != nil {
				return err
			}
			return co.Receive(self.Peer, "string")
		}},
		{Label: "unreachable", Fn: func(co *flows.Coroutine) error {
			return co.Return("should never get here")
		}},
	}
}

// VersionProbeFlow asks the peer which version it sees us as, and
// reports both directions.
type VersionProbeFlow struct {
	Peer         wire.Party
	PeerReported int
}

type VersionProbeResult struct {
	// The version the responder speaks, as seen locally.
	PeerSpeaks int
	// The version we speak, as reported back by the responder.
	ReportedByPeer int
}

func (self *VersionProbeFlow) Name() string { return "com.example.VersionProbeFlow" }

func (self *VersionProbeFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "probe", Fn: func(co *flows.Coroutine) error {
			return co.SendAndReceive(self.Peer, 0, "int")
		}},
		{Label: "report", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.PeerReported)
			if err != nil {
				return err
			}
			peer_speaks, err := co.PeerVersion(self.Peer)
			if err != nil {
				return err
			}
			return co.Return(&VersionProbeResult{
				PeerSpeaks:     peer_speaks,
				ReportedByPeer: self.PeerReported,
			})
		}},
	}
}

type VersionEchoFlow struct {
	Peer wire.Party
}

func (self *VersionEchoFlow) Name() string { return "com.example.VersionEchoFlow" }

func (self *VersionEchoFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "int")
		}},
		{Label: "answer", Fn: func(co *flows.Coroutine) error {
			peer_version, err := co.PeerVersion(self.Peer)
			if err != nil {
				return err
			}
			err = co.Send(self.Peer, peer_version)
			if err != nil {
				return err
			}
			return co.Return(nil)
		}},
	}
}

// NotarizeFlow is a sub-flow talking to a replicated service
// identity; the responder answers with its concrete party name.
type NotarizeFlow struct {
	Service wire.Party
	Backend string
}

func (self *NotarizeFlow) Name() string { return "com.example.NotarizeFlow" }

func (self *NotarizeFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "request", Fn: func(co *flows.Coroutine) error {
			return co.SendAndReceive(self.Service, "notarize", "string")
		}},
		{Label: "ack", Fn: func(co *flows.Coroutine) error {
			err := co.Payload(&self.Backend)
			if err != nil {
				return err
			}
			return co.Return(self.Backend)
		}},
	}
}

// NotaryClientFlow runs four successive notarization sub-flows and
// reports which backend served each.
type NotaryClientFlow struct {
	Service  wire.Party
	Backends []string
}

func (self *NotaryClientFlow) Name() string { return "com.example.NotaryClientFlow" }

func (self *NotaryClientFlow) collect(co *flows.Coroutine) error {
	var backend string
	err := co.Payload(&backend)
	if err != nil {
		return err
	}
	self.Backends = append(self.Backends, backend)

	if len(self.Backends) == 4 {
		return co.Return(self.Backends)
	}
	return co.SubFlow(&NotarizeFlow{Service: self.Service})
}

func (self *NotaryClientFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "first", Fn: func(co *flows.Coroutine) error {
			return co.SubFlow(&NotarizeFlow{Service: self.Service})
		}},
		{Label: "next-1", Fn: self.collect},
		{Label: "next-2", Fn: self.collect},
		{Label: "next-3", Fn: self.collect},
		{Label: "done", Fn: self.collect},
	}
}

type NotaryServiceFlow struct {
	Peer wire.Party
	Us   string
}

func (self *NotaryServiceFlow) Name() string { return "com.example.NotaryServiceFlow" }

func (self *NotaryServiceFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "wait", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
		{Label: "sign", Fn: func(co *flows.Coroutine) error {
			err := co.Send(self.Peer, string(co.Us()))
			if err != nil {
				return err
			}
			return co.Return(nil)
		}},
	}
}

// SnoozeFlow parks on an hour long sleep (for kill tests).
type SnoozeFlow struct{}

func (self *SnoozeFlow) Name() string { return "com.example.SnoozeFlow" }

func (self *SnoozeFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "snooze", Fn: func(co *flows.Coroutine) error {
			return co.Sleep(time.Hour)
		}},
		{Label: "wake", Fn: func(co *flows.Coroutine) error {
			return co.Return("overslept")
		}},
	}
}

// LedgerWaitFlow records a transaction mapping and waits for the
// ledger commit.
type LedgerWaitFlow struct {
	TxHash string
}

func (self *LedgerWaitFlow) Name() string { return "com.example.LedgerWaitFlow" }

func (self *LedgerWaitFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "record", Fn: func(co *flows.Coroutine) error {
			return co.WaitForLedgerCommit(self.TxHash)
		}},
		{Label: "committed", Fn: func(co *flows.Coroutine) error {
			return co.Return("committed")
		}},
	}
}

// ImpatientFlow gives the counterparty a short deadline to answer.
type ImpatientFlow struct {
	Peer wire.Party
}

func (self *ImpatientFlow) Name() string { return "com.example.ImpatientFlow" }

func (self *ImpatientFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "ask", Fn: func(co *flows.Coroutine) error {
			err := co.Send(self.Peer, "anyone there?")
			if err != nil {
				return err
			}
			return co.ReceiveWithTimeout(self.Peer, "string",
				100*time.Millisecond)
		}},
		{Label: "answered", Fn: func(co *flows.Coroutine) error {
			return co.Return("answered")
		}},
	}
}

// SilentFlow parks on a receive that never completes.
type SilentFlow struct {
	Peer wire.Party
}

func (self *SilentFlow) Name() string { return "com.example.SilentFlow" }

func (self *SilentFlow) Steps() []flows.Step {
	return []flows.Step{
		{Label: "lurk", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
		{Label: "lurk-more", Fn: func(co *flows.Coroutine) error {
			return co.Receive(self.Peer, "string")
		}},
	}
}

func simpleRegistration(
	name string, version int,
	blank func() flows.Flow) *flows.Registration {

	return &flows.Registration{
		Name:           name,
		Version:        version,
		StartableByRPC: true,
		Initiating:     true,
		New: func(args ...interface{}) (flows.Flow, error) {
			flow := blank()
			if len(args) > 0 {
				setPeer(flow, args[0])
			}
			return flow, nil
		},
	}
}

// setPeer pokes the conventional Peer/Service/TxHash first argument
// into the test flows.
func setPeer(flow flows.Flow, arg interface{}) {
	switch t := flow.(type) {
	case *UnknownClassFlow:
		t.Peer = arg.(wire.Party)
	case *VersionProbeFlow:
		t.Peer = arg.(wire.Party)
	case *NotaryClientFlow:
		t.Service = arg.(wire.Party)
	case *LedgerWaitFlow:
		t.TxHash = arg.(string)
	}
}
