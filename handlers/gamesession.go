package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mapleleafu/typerace/models"
)

const persistTimeout = 10 * time.Second

// sessionLog collects the events of the running race.
type sessionLog struct {
	mu     sync.Mutex
	raceID string
	events []models.RaceEvent
	// ended is the last finished race; a race won before begin ran stays closed
	ended string
}

func (l *sessionLog) begin(raceID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
	if raceID == l.ended {
		l.raceID = ""
		return
	}
	l.raceID = raceID
}

// record is a no-op outside a race.
func (l *sessionLog) record(username, action string, value int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.raceID == "" {
		return
	}
	l.events = append(l.events, models.RaceEvent{
		RaceID:    l.raceID,
		Username:  username,
		Action:    action,
		Value:     value,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (l *sessionLog) finish(raceID string) models.RaceSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	session := models.RaceSession{RaceID: raceID}
	if l.raceID == raceID {
		session.Events = l.events
	}
	l.raceID = ""
	l.events = nil
	l.ended = raceID
	return session
}

func (s *Server) persistRace(race models.Race, session models.RaceSession) {
	defer s.wg.Done()

	// shutdown must not drop a finished race, so this is not tied to s.ctx
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.races != nil {
		if err := s.races.SaveRace(ctx, race); err != nil {
			log.Printf("Failed to save race %s to PostgreSQL: %v", race.ID, err)
		} else {
			log.Printf("Race %s saved to PostgreSQL", race.ID)
		}
	}
	if s.journal != nil {
		if err := s.journal.SaveSession(ctx, session); err != nil {
			log.Printf("Failed to save race session %s to MongoDB: %v", race.ID, err)
		} else {
			log.Printf("Race session %s saved to MongoDB with %d events", race.ID, len(session.Events))
		}
	}
}
