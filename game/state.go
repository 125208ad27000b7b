package game

import (
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
)

var (
	ErrInvalidUsername   = errors.New("game: invalid username")
	ErrUsernameTooLong   = errors.New("game: username too long")
	ErrDuplicateUsername = errors.New("game: username already taken")
	ErrUnknownUser       = errors.New("game: unknown user")
	ErrNotInRace         = errors.New("game: user not in race")
	ErrOutOfRange        = errors.New("game: progress out of range")
	ErrNotWaiting        = errors.New("game: lobby is not waiting")
	ErrQuorumLost        = errors.New("game: not enough players to start")
	ErrLobbyFull         = errors.New("game: lobby is full")
)

// ClientInfo is the registry entry for one username.
type ClientInfo struct {
	Addr   *net.UDPAddr
	Player models.Player
}

// State is the authoritative server state. Every method takes the same lock,
// so quorum checks never observe a half-applied ready.
type State struct {
	mu         sync.Mutex
	clients    map[string]*ClientInfo
	phase      models.Phase
	minPlayers int

	// starting is set by the SetReady call that first observes quorum and
	// cleared by StartRace or AbortStart.
	starting bool

	epoch        uint64
	raceID       string
	raceText     string
	raceStarted  time.Time
	participants []string
}

func NewState(minPlayers int) *State {
	if minPlayers < protocol.MinPlayersForGame {
		minPlayers = protocol.MinPlayersForGame
	}
	return &State{
		clients:    make(map[string]*ClientInfo),
		phase:      models.Waiting,
		minPlayers: minPlayers,
	}
}

type ReadyResult struct {
	// Restarted is true when this ready opened a new lobby cycle after a finished race.
	Restarted bool
	// StartPending is true for exactly one caller per quorum event.
	StartPending bool
}

type RaceInfo struct {
	Epoch        uint64
	ID           string
	Text         string
	Participants []string
	StartedAt    time.Time
}

type ProgressResult struct {
	Finished bool
	Winner   string
	Race     models.Race
}

type RemoveResult struct {
	Finished bool
	Epoch    uint64
	Race     models.Race
}

type PlayerProgress struct {
	Username string
	Progress int
}

func (s *State) RegisterClient(username string, addr *net.UDPAddr) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[username]; exists {
		return ErrDuplicateUsername
	}
	if len(s.clients) >= protocol.MaxPlayers {
		return ErrLobbyFull
	}
	s.clients[username] = &ClientInfo{Addr: addr}
	return nil
}

func (s *State) SetReady(username string) (ReadyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ReadyResult
	c, ok := s.clients[username]
	if !ok {
		return res, ErrUnknownUser
	}
	if s.phase == models.Finished {
		s.clearRaceLocked()
		s.phase = models.Waiting
		res.Restarted = true
	}
	c.Player.Ready = true

	if !s.starting && s.canStartRaceLocked() {
		s.starting = true
		res.StartPending = true
	}
	return res, nil
}

func (s *State) CanStartRace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canStartRaceLocked()
}

func (s *State) canStartRaceLocked() bool {
	if s.phase != models.Waiting || len(s.clients) < s.minPlayers {
		return false
	}
	for _, c := range s.clients {
		if !c.Player.Ready {
			return false
		}
	}
	return true
}

// StartRace moves every connected player into the race. Players that joined
// during the countdown are pulled in as well.
func (s *State) StartRace(text string) (RaceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false

	if s.phase != models.Waiting {
		return RaceInfo{}, ErrNotWaiting
	}
	if len(s.clients) < s.minPlayers {
		return RaceInfo{}, ErrQuorumLost
	}

	s.epoch++
	s.raceID = uuid.NewString()
	s.raceText = text
	s.raceStarted = time.Now()
	s.participants = s.usernamesLocked()
	for _, c := range s.clients {
		c.Player.InRace = true
		c.Player.Progress = 0
	}
	s.phase = models.Running

	return RaceInfo{
		Epoch:        s.epoch,
		ID:           s.raceID,
		Text:         text,
		Participants: append([]string(nil), s.participants...),
		StartedAt:    s.raceStarted,
	}, nil
}

// AbortStart releases the single-flight guard when a pending start is abandoned.
func (s *State) AbortStart() {
	s.mu.Lock()
	s.starting = false
	s.mu.Unlock()
}

func (s *State) SetProgress(username string, value int) (ProgressResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ProgressResult
	c, ok := s.clients[username]
	if !ok {
		return res, ErrUnknownUser
	}
	if !c.Player.InRace {
		return res, ErrNotInRace
	}
	if value < 0 || value > 100 {
		return res, ErrOutOfRange
	}
	c.Player.Progress = value

	if value == 100 {
		// the winner is captured before the reset wipes every player
		res.Finished = true
		res.Winner = username
		res.Race = s.raceSummaryLocked(username)
		s.phase = models.Finished
		s.resetPlayersLocked()
	}
	return res, nil
}

func (s *State) RemoveClient(username string) (RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res RemoveResult
	c, ok := s.clients[username]
	if !ok {
		return res, ErrUnknownUser
	}
	wasInRace := c.Player.InRace
	delete(s.clients, username)

	if s.phase == models.Running && wasInRace && !s.anyInRaceLocked() {
		// no END_GAME goes out, so clients keep their ready flags and so does the server
		s.clearRaceLocked()
		s.phase = models.Finished
		res.Finished = true
		res.Epoch = s.epoch
		res.Race = s.raceSummaryLocked("")
	}
	return res, nil
}

// ProgressSnapshot returns the in-race players of race epoch. ok is false once
// that race is over, which is how a stale broadcaster learns to stop.
func (s *State) ProgressSnapshot(epoch uint64) (players []PlayerProgress, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.Running || s.epoch != epoch {
		return nil, false
	}
	for _, name := range s.usernamesLocked() {
		c := s.clients[name]
		if c.Player.InRace {
			players = append(players, PlayerProgress{Username: name, Progress: c.Player.Progress})
		}
	}
	return players, true
}

// Statuses returns alternating username/status tokens for every player but except,
// ordered by username.
func (s *State) Statuses(except string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, 2*len(s.clients))
	for _, name := range s.usernamesLocked() {
		if name == except {
			continue
		}
		out = append(out, name, string(statusOf(s.clients[name].Player)))
	}
	return out
}

func (s *State) Snapshot() models.LobbyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := models.LobbyInfo{
		Phase:   s.phase.String(),
		Epoch:   s.epoch,
		Players: make([]models.LobbyPlayer, 0, len(s.clients)),
	}
	if s.phase == models.Running {
		info.RaceID = s.raceID
	}
	for _, name := range s.usernamesLocked() {
		c := s.clients[name]
		lp := models.LobbyPlayer{
			Username: name,
			Status:   string(statusOf(c.Player)),
			Progress: c.Player.Progress,
		}
		if c.Addr != nil {
			lp.Endpoint = c.Addr.String()
		}
		info.Players = append(info.Players, lp)
	}
	return info
}

func (s *State) Player(username string) (models.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[username]
	if !ok {
		return models.Player{}, false
	}
	return c.Player, true
}

func (s *State) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *State) resetPlayersLocked() {
	for _, c := range s.clients {
		c.Player.Reset()
	}
}

// clearRaceLocked takes everyone out of the race but keeps ready flags.
func (s *State) clearRaceLocked() {
	for _, c := range s.clients {
		c.Player.InRace = false
		c.Player.Progress = 0
	}
}

func (s *State) anyInRaceLocked() bool {
	for _, c := range s.clients {
		if c.Player.InRace {
			return true
		}
	}
	return false
}

func (s *State) usernamesLocked() []string {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *State) raceSummaryLocked(winner string) models.Race {
	return models.Race{
		ID:         s.raceID,
		Epoch:      s.epoch,
		Text:       s.raceText,
		Winner:     winner,
		UserNames:  append([]string(nil), s.participants...),
		CreatedAt:  s.raceStarted,
		FinishedAt: time.Now(),
	}
}

func statusOf(p models.Player) protocol.PlayerStatus {
	switch {
	case p.InRace:
		return protocol.InGame
	case p.Ready:
		return protocol.Ready
	}
	return protocol.NotReady
}
