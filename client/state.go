package client

import (
	"log"
	"sync"

	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
)

// State mirrors the server's lobby as seen by one client. It is fed by the
// replies to the client's own commands and by multicast events.
type State struct {
	mu       sync.Mutex
	self     string
	players  map[string]*models.Player
	phase    models.Phase
	raceText string
	winner   string
	observer Observer
}

func NewState(self string, observer Observer) *State {
	if observer == nil {
		observer = ObserverFunc(func(Event) {})
	}
	return &State{
		self:     self,
		players:  map[string]*models.Player{self: {}},
		phase:    models.Waiting,
		observer: observer,
	}
}

// ApplyJoinReply loads the <user> <status> pairs of a successful USER_JOIN reply.
// A reply listing IN_GAME players means a race is running; the mirror then
// follows it as a spectator until it ends.
func (s *State) ApplyJoinReply(args []string) {
	s.mu.Lock()
	s.applyStatusesLocked(args)
	if s.anyInRaceLocked() {
		s.phase = models.Running
	}
	phase := s.phase
	s.mu.Unlock()
	s.emit([]Event{{Kind: PhaseChanged, Phase: phase}, {Kind: PlayersChanged}})
}

// ApplyReadyReply marks self ready and reconciles the other players against
// the statuses the server returned.
func (s *State) ApplyReadyReply(args []string) {
	s.mu.Lock()
	var events []Event
	if s.phase == models.Finished {
		events = append(events, s.restartLocked())
	}
	s.playerLocked(s.self).Ready = true
	s.applyStatusesLocked(args)
	s.mu.Unlock()
	s.emit(append(events, Event{Kind: PlayersChanged}))
}

func (s *State) applyStatusesLocked(args []string) {
	for i := 0; i+1 < len(args); i += 2 {
		name, status := args[i], protocol.PlayerStatus(args[i+1])
		if name == s.self {
			continue
		}
		p := s.playerLocked(name)
		switch status {
		case protocol.Ready:
			p.Ready, p.InRace = true, false
		case protocol.InGame:
			p.InRace = true
		case protocol.NotReady:
			p.Ready, p.InRace = false, false
		default:
			log.Printf("Unknown status %q for %s", status, name)
		}
	}
}

// Apply handles one multicast datagram. Malformed or unexpected events are
// logged and ignored.
func (s *State) Apply(payload []byte) {
	rec, ok := protocol.Decode(payload).(protocol.Recognized)
	if !ok {
		log.Printf("Received unknown command: %q", payload)
		return
	}

	s.mu.Lock()
	events := s.applyLocked(rec)
	s.mu.Unlock()
	s.emit(events)
}

func (s *State) applyLocked(rec protocol.Recognized) []Event {
	switch rec.Verb {
	case protocol.NewUser:
		if len(rec.Args) != 1 {
			break
		}
		s.playerLocked(rec.Args[0])
		return []Event{{Kind: PlayersChanged}}

	case protocol.UserReady:
		if len(rec.Args) != 1 {
			break
		}
		var events []Event
		if s.phase == models.Finished {
			events = append(events, s.restartLocked())
		}
		s.playerLocked(rec.Args[0]).Ready = true
		return append(events, Event{Kind: PlayersChanged})

	case protocol.StartGame:
		if len(rec.Args) == 0 {
			break
		}
		s.raceText = rec.Tail(0)
		s.winner = ""
		s.phase = models.Running
		for _, p := range s.players {
			p.InRace, p.Progress = true, 0
		}
		return []Event{
			{Kind: PhaseChanged, Phase: models.Running},
			{Kind: RaceTextReceived, Text: s.raceText},
			{Kind: PlayersChanged},
		}

	case protocol.AllUsersProgress:
		if len(rec.Args)%2 != 0 {
			break
		}
		for i := 0; i < len(rec.Args); i += 2 {
			pct, err := protocol.ParsePercent(rec.Args[i+1])
			if err != nil || pct < 0 || pct > 100 {
				log.Printf("Ignoring progress %q for %s", rec.Args[i+1], rec.Args[i])
				continue
			}
			p := s.playerLocked(rec.Args[i])
			p.InRace, p.Progress = true, pct
		}
		return []Event{{Kind: PlayersChanged}}

	case protocol.EndGame:
		if len(rec.Args) != 1 {
			break
		}
		s.winner = rec.Args[0]
		var events []Event
		if s.playerLocked(s.self).InRace || s.phase == models.Running {
			s.phase = models.Finished
			events = append(events, Event{Kind: PhaseChanged, Phase: models.Finished})
		}
		s.resetLocked()
		return append(events, Event{Kind: RaceEnded, Winner: s.winner}, Event{Kind: PlayersChanged})

	case protocol.DelUser:
		if len(rec.Args) != 1 || rec.Args[0] == s.self {
			break
		}
		delete(s.players, rec.Args[0])
		events := []Event{{Kind: PlayersChanged}}
		if s.phase == models.Running && !s.anyInRaceLocked() {
			// the last racer left; the server ends the race without END_GAME
			s.phase = models.Finished
			events = append(events, Event{Kind: PhaseChanged, Phase: models.Finished})
		}
		return events
	}

	log.Printf("Unhandled multicast message: %s", rec)
	return nil
}

// playerLocked returns the named player, inserting it on first reference.
func (s *State) playerLocked(name string) *models.Player {
	p, ok := s.players[name]
	if !ok {
		p = &models.Player{}
		s.players[name] = p
	}
	return p
}

// restartLocked opens a new lobby cycle after a finished race. Ready flags
// survive: END_GAME already cleared them, and a race ended by quits keeps them
// on the server too.
func (s *State) restartLocked() Event {
	for _, p := range s.players {
		p.InRace, p.Progress = false, 0
	}
	s.phase = models.Waiting
	return Event{Kind: PhaseChanged, Phase: models.Waiting}
}

func (s *State) anyInRaceLocked() bool {
	for _, p := range s.players {
		if p.InRace {
			return true
		}
	}
	return false
}

func (s *State) resetLocked() {
	for _, p := range s.players {
		p.Reset()
	}
}

func (s *State) emit(events []Event) {
	for _, e := range events {
		s.observer.OnEvent(e)
	}
}

func (s *State) Self() string {
	return s.self
}

func (s *State) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) RaceText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raceText
}

// Winner is the winner of the last race that ended, if any.
func (s *State) Winner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// Players returns a copy of every known player, self included.
func (s *State) Players() map[string]models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.Player, len(s.players))
	for name, p := range s.players {
		out[name] = *p
	}
	return out
}

func (s *State) Player(name string) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[name]
	if !ok {
		return models.Player{}, false
	}
	return *p, true
}

// ProgressFor is the percentage of text typed correctly, compared position by
// position. It stays below 100 until typed matches text exactly.
func ProgressFor(typed, text string) int {
	want := []rune(text)
	if len(want) == 0 {
		return 0
	}
	got := []rune(typed)
	correct := 0
	for i := 0; i < len(got) && i < len(want); i++ {
		if got[i] == want[i] {
			correct++
		}
	}
	if correct == len(want) && len(got) == len(want) {
		return 100
	}
	pct := int(float64(correct)*100/float64(len(want)) + 0.5)
	return min(pct, 99)
}
