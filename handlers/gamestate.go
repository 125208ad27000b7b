package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/mapleleafu/typerace/content"
	"github.com/mapleleafu/typerace/models"
	"github.com/mapleleafu/typerace/protocol"
)

// raceRunner is the progress broadcaster of one race.
type raceRunner struct {
	epoch  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// startGame runs the countdown of a quorum event. Only one countdown exists at
// a time; game.State hands StartPending to a single caller.
func (s *Server) startGame() {
	defer s.wg.Done()

	log.Printf("Starting game in %s...", s.startDelay)
	timer := time.NewTimer(s.startDelay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		s.state.AbortStart()
		log.Println("Game start cancelled")
		return
	case <-timer.C:
	}

	text := s.raceText()
	info, err := s.state.StartRace(text)
	if err != nil {
		log.Printf("Game start aborted: %v", err)
		return
	}
	log.Printf("Race %s started with %d players", info.ID, len(info.Participants))

	s.session.begin(info.ID)
	s.session.record("server", "start", 0)
	s.broadcast(protocol.StartGame, info.Text)
	s.startRunner(info.Epoch)
}

func (s *Server) raceText() string {
	ctx, cancel := context.WithTimeout(s.ctx, s.contentTimeout)
	defer cancel()

	text, err := s.content.Paragraph(ctx)
	if err == nil {
		if text = content.Normalize(text); content.Valid(text) {
			return text
		}
		err = content.ErrNoParagraph
	}
	log.Printf("Error fetching race paragraph, using builtin text: %v", err)
	text, _ = s.fallback.Paragraph(context.Background())
	return text
}

// startRunner launches the broadcaster for race epoch. A runner left over
// from an earlier race is stopped and waited for first.
func (s *Server) startRunner(epoch uint64) {
	s.raceMu.Lock()
	defer s.raceMu.Unlock()

	if prev := s.runner; prev != nil {
		prev.cancel()
		<-prev.done
	}
	ctx, cancel := context.WithCancel(s.ctx)
	r := &raceRunner{epoch: epoch, cancel: cancel, done: make(chan struct{})}
	s.runner = r

	s.wg.Add(1)
	go s.broadcastProgress(ctx, r)
}

func (s *Server) stopRunner(epoch uint64) {
	s.raceMu.Lock()
	defer s.raceMu.Unlock()

	if s.runner != nil && s.runner.epoch == epoch {
		s.runner.cancel()
		s.runner = nil
	}
}

// broadcastProgress multicasts ALL_USERS_PROGRESS every tick until the race
// it belongs to is no longer the running one.
func (s *Server) broadcastProgress(ctx context.Context, r *raceRunner) {
	defer s.wg.Done()
	defer close(r.done)

	ticker := time.NewTicker(s.progressTick)
	defer ticker.Stop()
	for {
		players, ok := s.state.ProgressSnapshot(r.epoch)
		if !ok {
			return
		}
		args := make([]string, 0, 2*len(players))
		for _, p := range players {
			args = append(args, p.Username, strconv.Itoa(p.Progress))
		}
		s.broadcast(protocol.AllUsersProgress, args...)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// endRace stops the broadcaster and hands the race to the stores.
func (s *Server) endRace(race models.Race) {
	s.stopRunner(race.Epoch)
	s.session.record("server", "end", 0)
	journal := s.session.finish(race.ID)

	s.wg.Add(1)
	go s.persistRace(race, journal)
}
