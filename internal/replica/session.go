package replica

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"plot-go/internal/plot"
)

// Message kinds exchanged by sessions. A joining replica announces its
// state vector (step1); peers answer with whatever it is missing (step2)
// and announce their own state vector in return. After that, every local
// update is broadcast as it happens.
const (
	MsgStep1  = "step1"
	MsgStep2  = "step2"
	MsgUpdate = "update"
)

type envelope struct {
	Kind    string `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
	// Reply marks a step1 sent in answer to another replica's step1. It is
	// answered with a step2 only, which keeps the handshake finite.
	Reply   bool   `cbor:"3,keyasint,omitempty"`
}

// Session connects a replica to a transport.
type Session struct {
	doc       plot.ReplicatedDoc
	transport plot.Transport
	logger    plot.Logger

	mu       sync.Mutex
	cancel   func()
	received int
	rejected int
}

func NewSession(doc plot.ReplicatedDoc, transport plot.Transport, logger plot.Logger) *Session {
	if logger == nil {
		logger = plot.NewNopLogger()
	}
	return &Session{doc: doc, transport: transport, logger: logger}
}

// Start subscribes to the transport and the document and announces this
// replica's state. Deltas that arrived before Start are delivered by the
// transport once the handler is registered.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.cancel = s.doc.OnUpdate(func(update []byte, local bool) {
		if local {
			s.send(envelope{Kind: MsgUpdate, Payload: update})
		}
	})
	s.mu.Unlock()

	s.transport.OnReceive(s.handle)
	return s.Resync()
}

// Resync announces the local state vector again, prompting peers to send
// anything this replica is missing.
func (s *Session) Resync() error {
	sv, err := s.doc.StateVector()
	if err != nil {
		return fmt.Errorf("encoding state vector: %w", err)
	}
	return s.send(envelope{Kind: MsgStep1, Payload: sv})
}

// Close stops forwarding local updates and closes the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.transport.Close()
}

// Stats returns how many deltas were received and how many were rejected
// as malformed.
func (s *Session) Stats() (received, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.rejected
}

func (s *Session) send(env envelope) error {
	data, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", env.Kind, err)
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Warn("sending delta failed", "kind", env.Kind, "error", err)
		return fmt.Errorf("sending %s message: %w", env.Kind, err)
	}
	return nil
}

func (s *Session) reject(reason string, err error) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
	s.logger.Warn("remote delta rejected", "reason", reason, "error", err)
}

func (s *Session) handle(delta []byte) {
	s.mu.Lock()
	s.received++
	s.mu.Unlock()

	var env envelope
	if err := cbor.Unmarshal(delta, &env); err != nil {
		s.reject("undecodable envelope", err)
		return
	}

	switch env.Kind {
	case MsgStep1:
		diff, err := s.doc.EncodeStateAsUpdate(env.Payload)
		if err != nil {
			s.reject("bad state vector", err)
			return
		}
		s.send(envelope{Kind: MsgStep2, Payload: diff})
		if !env.Reply {
			sv, err := s.doc.StateVector()
			if err != nil {
				s.logger.Error("encoding state vector", "error", err)
				return
			}
			s.send(envelope{Kind: MsgStep1, Payload: sv, Reply: true})
		}
	case MsgStep2, MsgUpdate:
		if err := s.doc.ApplyUpdate(env.Payload); err != nil {
			s.reject("bad update", err)
			return
		}
		s.logger.Debug("remote delta applied", "kind", env.Kind, "bytes", len(env.Payload))
	default:
		s.reject("unknown message kind", fmt.Errorf("kind %q", env.Kind))
	}
}
