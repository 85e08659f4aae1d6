package database

import (
	"context"

	"chanqueue-bot/internal/database/models"
)

// PostLogger records the outcome of every publish attempt.
type PostLogger interface {
	LogPublication(ctx context.Context, entry models.PostLog) error
}
