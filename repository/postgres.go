package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/mapleleafu/typerace/config"
	"github.com/mapleleafu/typerace/models"
)

var ErrNotFound = errors.New("repository: not found")

func ConnectToPostgreSQL(cfg *config.Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("Successfully connected to PostgreSQL")
	return db, nil
}

// RaceStore keeps the summary of every finished race.
type RaceStore struct {
	db *sql.DB
}

func NewRaceStore(db *sql.DB) *RaceStore {
	return &RaceStore{db: db}
}

const racesSchema = `CREATE TABLE IF NOT EXISTS races (
	id          TEXT PRIMARY KEY,
	epoch       BIGINT NOT NULL,
	text        TEXT NOT NULL,
	winner      TEXT NOT NULL DEFAULT '',
	user_names  TEXT[] NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
)`

func (s *RaceStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, racesSchema)
	return err
}

func (s *RaceStore) SaveRace(ctx context.Context, race models.Race) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO races (id, epoch, text, winner, user_names, created_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		race.ID, int64(race.Epoch), race.Text, race.Winner, pq.Array(race.UserNames), race.CreatedAt.UTC(), race.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert race %s: %w", race.ID, err)
	}
	return nil
}

func (s *RaceStore) ListRaces(ctx context.Context, limit int) ([]models.Race, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, epoch, text, winner, user_names, created_at, finished_at FROM races ORDER BY finished_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	races := []models.Race{}
	for rows.Next() {
		var race models.Race
		var epoch int64
		if err := rows.Scan(&race.ID, &epoch, &race.Text, &race.Winner, pq.Array(&race.UserNames), &race.CreatedAt, &race.FinishedAt); err != nil {
			return nil, err
		}
		race.Epoch = uint64(epoch)
		races = append(races, race)
	}
	return races, rows.Err()
}
