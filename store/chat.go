package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatMessage is one turn of a persisted conversation.
type ChatMessage struct {
	MessageID string         `bson:"message_id" json:"message_id"`
	UserID    string         `bson:"user_id" json:"user_id"`
	Role      string         `bson:"role" json:"role"`
	Content   string         `bson:"content" json:"content"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
	Metadata  map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// SaveMessage appends one turn to a user's transcript.
func (s *Store) SaveMessage(ctx context.Context, userID, role, content string, metadata map[string]any) error {
	msg := ChatMessage{
		MessageID: uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if _, err := s.history().InsertOne(ctx, msg); err != nil {
		return errors.Wrap(err, "failed to save chat message")
	}
	return nil
}

// GetHistory returns a user's transcript oldest first. A limit of 0 means
// unbounded.
func (s *Store) GetHistory(ctx context.Context, userID string, limit int64) ([]ChatMessage, error) {
	opts := options.Find().SetSort(bson.M{"timestamp": 1})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.history().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load chat history")
	}
	defer cursor.Close(ctx)

	messages := []ChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, errors.Wrap(err, "failed to decode chat history")
	}
	return messages, nil
}

// ClearHistory deletes a user's transcript.
func (s *Store) ClearHistory(ctx context.Context, userID string) (int64, error) {
	result, err := s.history().DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear chat history")
	}
	return result.DeletedCount, nil
}
