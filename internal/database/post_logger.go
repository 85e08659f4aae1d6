package database

import (
	"context"
	"fmt"
	"time"

	"chanqueue-bot/internal/database/models"
	"chanqueue-bot/internal/queue"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
)

const postLogsCollection = "post_logs"

// MongoPostLogger appends publish attempts to the post_logs collection.
type MongoPostLogger struct {
	coll *mongo.Collection
}

// NewMongoPostLogger creates a logger writing into db.
func NewMongoPostLogger(db *mongo.Database) *MongoPostLogger {
	return &MongoPostLogger{coll: db.Collection(postLogsCollection)}
}

func (m *MongoPostLogger) LogPublication(ctx context.Context, entry models.PostLog) error {
	if _, err := m.coll.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("insert post log: %w", err)
	}
	return nil
}

// LogOnlyPostLogger writes publish attempts to the application log only.
// It is used when the storage backend has nowhere to keep a history.
type LogOnlyPostLogger struct{}

func (LogOnlyPostLogger) LogPublication(_ context.Context, entry models.PostLog) error {
	ev := log.Info()
	if !entry.Success {
		ev = log.Warn().Str("error", entry.Error)
	}
	ev.Str("item", entry.ItemID).
		Str("type", entry.MessageType).
		Str("channel", entry.Channel).
		Int("attempt", entry.Attempt).
		Bool("forced", entry.Forced).
		Msg("publication")
	return nil
}

// PostLogEntry describes one publish attempt of item.
func PostLogEntry(item queue.Item, channel string, at time.Time, attempt int, forced bool, cause error) models.PostLog {
	entry := models.PostLog{
		ItemID:      item.ID,
		MessageType: item.TypeName(),
		Media:       len(item.Attachments()),
		Caption:     item.Caption(),
		Submitters:  item.Submitters,
		Channel:     channel,
		EnqueuedAt:  item.EnqueuedAt,
		AttemptedAt: at,
		Attempt:     attempt,
		Forced:      forced,
		Success:     cause == nil,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return entry
}
