package models

import "time"

// PostLog stores the outcome of one attempt to publish a queue item to the channel.
type PostLog struct {
	ItemID      string    `bson:"item_id"`
	MessageType string    `bson:"message_type"` // "media_group", "photo", "video", "gif", "document"
	Media       int       `bson:"media"`
	Caption     string    `bson:"caption,omitempty"`
	Submitters  []int64   `bson:"submitters,omitempty"`
	Channel     string    `bson:"channel"`
	EnqueuedAt  time.Time `bson:"enqueued_at"`
	AttemptedAt time.Time `bson:"attempted_at"`
	Attempt     int       `bson:"attempt"`
	Forced      bool      `bson:"forced"`
	Success     bool      `bson:"success"`
	Error       string    `bson:"error,omitempty"`
}
