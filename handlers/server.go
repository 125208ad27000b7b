package handlers

import (
	"context"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/mapleleafu/typerace/content"
	"github.com/mapleleafu/typerace/game"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
	"github.com/mapleleafu/typerace/utils"
)

// Broadcaster pushes one datagram to every listening client.
type Broadcaster interface {
	Broadcast(payload []byte) error
}

// RaceRecorder stores the summary of a finished race.
type RaceRecorder interface {
	SaveRace(ctx context.Context, race models.Race) error
}

// JournalRecorder stores the event journal of a finished race.
type JournalRecorder interface {
	SaveSession(ctx context.Context, session models.RaceSession) error
}

type Options struct {
	StartDelay   time.Duration
	ProgressTick time.Duration
	// ContentTimeout bounds the wait for a race paragraph.
	ContentTimeout time.Duration
	Content        content.Provider
	Races          RaceRecorder
	Journal        JournalRecorder
	Hub            *Hub
}

// Server runs the command handler: it owns the game state and turns each
// incoming datagram into replies, multicast events and background race tasks.
type Server struct {
	state       *game.State
	replier     utils.Replier
	broadcaster Broadcaster
	hub         *Hub

	content        content.Provider
	fallback       content.Provider
	startDelay     time.Duration
	progressTick   time.Duration
	contentTimeout time.Duration

	races   RaceRecorder
	journal JournalRecorder
	session *sessionLog

	commands map[protocol.Verb]commandSpec

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	raceMu sync.Mutex
	runner *raceRunner
}

type commandSpec struct {
	arity  int
	handle func(addr *net.UDPAddr, args []string)
}

func NewServer(state *game.State, replier utils.Replier, broadcaster Broadcaster, opts Options) *Server {
	if opts.StartDelay <= 0 {
		opts.StartDelay = protocol.GameStartDelay
	}
	if opts.ProgressTick <= 0 {
		opts.ProgressTick = protocol.ProgressTick
	}
	if opts.ContentTimeout <= 0 {
		opts.ContentTimeout = protocol.ResponseTimeout
	}
	fallback := content.Builtin(rand.New(rand.NewSource(time.Now().UnixNano())))
	if opts.Content == nil {
		opts.Content = fallback
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		state:          state,
		replier:        replier,
		broadcaster:    broadcaster,
		hub:            opts.Hub,
		content:        opts.Content,
		fallback:       fallback,
		startDelay:     opts.StartDelay,
		progressTick:   opts.ProgressTick,
		contentTimeout: opts.ContentTimeout,
		races:          opts.Races,
		journal:        opts.Journal,
		session:        &sessionLog{},
		ctx:            ctx,
		cancel:         cancel,
	}
	s.commands = map[protocol.Verb]commandSpec{
		protocol.UserJoin:     {arity: protocol.CommandArity[protocol.UserJoin], handle: s.handleUserJoin},
		protocol.UserReady:    {arity: protocol.CommandArity[protocol.UserReady], handle: s.handleUserReady},
		protocol.UserProgress: {arity: protocol.CommandArity[protocol.UserProgress], handle: s.handleUserProgress},
		protocol.UserQuit:     {arity: protocol.CommandArity[protocol.UserQuit], handle: s.handleUserQuit},
	}
	return s
}

func (s *Server) State() *game.State {
	return s.state
}

// Close cancels any pending countdown and progress broadcaster, then waits
// for background work, including race persistence, to finish.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) reply(addr *net.UDPAddr, verb protocol.Verb, args ...string) {
	payload, err := protocol.Encode(verb, args...)
	if err != nil {
		log.Printf("Error encoding %s reply: %v", verb, err)
		return
	}
	if err := s.replier.Reply(addr, payload); err != nil {
		log.Printf("Error sending reply to %s: %v", addr, err)
		return
	}
	log.Printf("Sent to %s: %s", addr, payload)
}

func (s *Server) broadcast(verb protocol.Verb, args ...string) {
	payload, err := protocol.Encode(verb, args...)
	if err != nil {
		log.Printf("Error encoding %s multicast: %v", verb, err)
		return
	}
	if err := s.broadcaster.Broadcast(payload); err != nil {
		log.Printf("Error multicasting message to clients: %v", err)
	} else if verb != protocol.AllUsersProgress {
		log.Printf("Sent multicast to clients: %s", payload)
	}
	if s.hub != nil {
		s.hub.Broadcast(payload)
	}
}
