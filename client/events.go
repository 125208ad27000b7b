package client

import (
	"log"

	"github.com/mapleleafu/typerace/models"
)

type EventKind int

const (
	PhaseChanged EventKind = iota
	RaceTextReceived
	RaceEnded
	PlayersChanged
)

func (k EventKind) String() string {
	switch k {
	case PhaseChanged:
		return "PHASE_CHANGED"
	case RaceTextReceived:
		return "RACE_TEXT_RECEIVED"
	case RaceEnded:
		return "RACE_ENDED"
	case PlayersChanged:
		return "PLAYERS_CHANGED"
	}
	return "UNKNOWN"
}

// Event is a state change of the mirror. Only the field matching Kind is set:
// Phase for PhaseChanged, Text for RaceTextReceived, Winner for RaceEnded.
type Event struct {
	Kind   EventKind
	Phase  models.Phase
	Text   string
	Winner string
}

// Observer receives every Event synchronously, after the mirror has released
// its lock, so OnEvent may read the State back.
type Observer interface {
	OnEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

// ChanObserver queues events for a render loop. When the loop falls behind
// the newest events are dropped; the loop re-reads State anyway.
type ChanObserver struct {
	C chan Event
}

func NewChanObserver(size int) *ChanObserver {
	return &ChanObserver{C: make(chan Event, size)}
}

func (o *ChanObserver) OnEvent(e Event) {
	select {
	case o.C <- e:
	default:
		log.Printf("Render loop behind, dropping %s event", e.Kind)
	}
}
