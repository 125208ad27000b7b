package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mapleleafu/typerace/protocol"
)

// ErrJoinRejected carries the reason of a USER_JOIN_ERR reply.
type ErrJoinRejected struct {
	Reason string
}

func (e ErrJoinRejected) Error() string {
	return "join rejected: " + e.Reason
}

// ServerError carries the reason of an ERROR reply.
type ServerError struct {
	Reason string
}

func (e ServerError) Error() string {
	return "server error: " + e.Reason
}

var ErrNotJoined = errors.New("client: not joined")

// Requester is the unicast side of transport.Client.
type Requester interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
	Send(payload []byte) error
}

// Listener is the multicast side of transport.MulticastListener.
type Listener interface {
	Listen(ctx context.Context, handle func([]byte)) error
}

// Session drives the protocol for one user and keeps its State up to date.
type Session struct {
	conn     Requester
	observer Observer
	state    *State
}

func NewSession(conn Requester, observer Observer) *Session {
	return &Session{conn: conn, observer: observer}
}

// State is nil until Join succeeds.
func (s *Session) State() *State {
	return s.state
}

// Join registers username. A rejected name returns ErrJoinRejected and the
// session stays unjoined, so Join may be retried with another name.
func (s *Session) Join(ctx context.Context, username string) (*State, error) {
	rec, err := s.request(ctx, protocol.UserJoin, username)
	if err != nil {
		return nil, err
	}
	switch rec.Verb {
	case protocol.OK:
		st := NewState(username, s.observer)
		st.ApplyJoinReply(rec.Args)
		s.state = st
		return st, nil
	case protocol.UserJoinErr:
		return nil, ErrJoinRejected{Reason: rec.Tail(0)}
	}
	return nil, unexpectedReply(rec)
}

func (s *Session) Ready(ctx context.Context) error {
	if s.state == nil {
		return ErrNotJoined
	}
	rec, err := s.request(ctx, protocol.UserReady, s.state.Self())
	if err != nil {
		return err
	}
	if rec.Verb != protocol.OK {
		return unexpectedReply(rec)
	}
	s.state.ApplyReadyReply(rec.Args)
	return nil
}

// SendProgress reports pct without waiting; errors come back as replies the
// session does not read.
func (s *Session) SendProgress(pct int) error {
	if s.state == nil {
		return ErrNotJoined
	}
	return s.send(protocol.UserProgress, s.state.Self(), strconv.Itoa(pct))
}

func (s *Session) Quit() error {
	if s.state == nil {
		return ErrNotJoined
	}
	return s.send(protocol.UserQuit, s.state.Self())
}

// Listen feeds multicast events into the State until ctx is cancelled or the
// listener is closed.
func (s *Session) Listen(ctx context.Context, l Listener) error {
	if s.state == nil {
		return ErrNotJoined
	}
	return l.Listen(ctx, s.state.Apply)
}

func (s *Session) request(ctx context.Context, verb protocol.Verb, args ...string) (protocol.Recognized, error) {
	payload, err := protocol.Encode(verb, args...)
	if err != nil {
		return protocol.Recognized{}, err
	}
	res, err := s.conn.Request(ctx, payload)
	if err != nil {
		return protocol.Recognized{}, err
	}
	rec, ok := protocol.Decode(res).(protocol.Recognized)
	if !ok {
		return protocol.Recognized{}, fmt.Errorf("client: unrecognized reply %q", res)
	}
	return rec, nil
}

func (s *Session) send(verb protocol.Verb, args ...string) error {
	payload, err := protocol.Encode(verb, args...)
	if err != nil {
		return err
	}
	return s.conn.Send(payload)
}

func unexpectedReply(rec protocol.Recognized) error {
	if rec.Verb == protocol.Error {
		return ServerError{Reason: rec.Tail(0)}
	}
	return fmt.Errorf("client: unexpected reply %q", rec)
}
