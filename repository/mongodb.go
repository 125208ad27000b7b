package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mapleleafu/typerace/models"
)

func ConnectMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	log.Println("Successfully connected to MongoDB")
	return client, nil
}

// JournalStore keeps the event journal of every finished race.
type JournalStore struct {
	coll *mongo.Collection
}

func NewJournalStore(client *mongo.Client, database string) *JournalStore {
	return &JournalStore{coll: client.Database(database).Collection("race_sessions")}
}

func (s *JournalStore) SaveSession(ctx context.Context, session models.RaceSession) error {
	if _, err := s.coll.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("insert session %s: %w", session.RaceID, err)
	}
	return nil
}

func (s *JournalStore) FindSession(ctx context.Context, raceID string) (models.RaceSession, error) {
	var session models.RaceSession
	err := s.coll.FindOne(ctx, bson.M{"raceId": raceID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return session, ErrNotFound
	}
	return session, err
}
