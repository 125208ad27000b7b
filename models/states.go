package models

// Phase is the lobby/race state machine shared by the server and every client mirror.
type Phase int

const (
	Waiting Phase = iota
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "WAITING"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

// Player is one connected username. Progress only means something while InRace.
type Player struct {
	Ready    bool
	InRace   bool
	Progress int
}

// Reset puts the player back to the start of a lobby cycle.
func (p *Player) Reset() {
	p.Ready = false
	p.InRace = false
	p.Progress = 0
}
