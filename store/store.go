// Package store persists users and chat transcripts in MongoDB.
package store

import (
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ttpunch/AgentProject/connectors/mongodb"
)

const (
	usersCollection   = "users"
	historyCollection = "chat_history"
)

// Store provides access to the persistent collections.
type Store struct {
	db *mongo.Database
}

// New creates a Store over the shared document store connection.
func New(conn *mongodb.Connector) *Store {
	return &Store{db: conn.Database()}
}

func (s *Store) users() *mongo.Collection {
	return s.db.Collection(usersCollection)
}

func (s *Store) history() *mongo.Collection {
	return s.db.Collection(historyCollection)
}
