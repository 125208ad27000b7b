package models

type RaceEvent struct {
	RaceID    string `bson:"raceId" json:"race_id"`
	Username  string `bson:"username" json:"username"`
	Action    string `bson:"action" json:"action"`
	Value     int    `bson:"value,omitempty" json:"value,omitempty"`
	Timestamp int64  `bson:"timestamp" json:"timestamp"`
}

// RaceSession represents all events recorded during a single race.
type RaceSession struct {
	RaceID string      `bson:"raceId" json:"race_id"`
	Events []RaceEvent `bson:"events" json:"events"`
}
