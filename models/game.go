package models

import "time"

// Race is the persisted summary of a finished race.
type Race struct {
	ID         string    `json:"id"`
	Epoch      uint64    `json:"epoch"`
	Text       string    `json:"text"`
	Winner     string    `json:"winner"`
	UserNames  []string  `json:"user_names"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
