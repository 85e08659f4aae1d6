package handlers

import (
	"context"
	"time"

	"chanqueue-bot/internal/mediagroups"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/scheduler"
)

// Scheduler is the part of the publication scheduler used by the handlers.
type Scheduler interface {
	Submit(ctx context.Context, items ...queue.Item) (scheduler.SubmitResult, error)
	PublishNow(ctx context.Context) (queue.Item, error)
	PublishAt(ctx context.Context, index int) (queue.Item, error)
	PublishAll(ctx context.Context) (int, error)
	PublishDirect(ctx context.Context, item queue.Item) error
	Forecast(pos, count int) (first, last time.Time, ok bool)
	NextPublish() (time.Time, bool)
	State() scheduler.State
	Wake()
}

// MediaGroupCollector buffers album parts until the album is complete.
type MediaGroupCollector interface {
	Add(groupID string, part mediagroups.Part)
	Shutdown(ctx context.Context) int
}

var _ Scheduler = (*scheduler.Service)(nil)
var _ MediaGroupCollector = (*mediagroups.Manager)(nil)
