// Package publisher delivers queued posts to the target channel and direct messages to submitters.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chanqueue-bot/internal/queue"
)

// ChannelInfo describes the target channel.
type ChannelInfo struct {
	ID       int64
	Title    string
	Username string
	Type     string
	Members  int
}

// ChannelPublisher posts media to a channel.
type ChannelPublisher interface {
	SendPhoto(ctx context.Context, target, fileID, caption string) error
	SendVideo(ctx context.Context, target, fileID, caption string) error
	SendAnimation(ctx context.Context, target, fileID, caption string) error
	SendDocument(ctx context.Context, target, fileID, caption string) error
	SendMediaGroup(ctx context.Context, target string, items []queue.Attachment, caption string) error
	ChannelInfo(ctx context.Context, target string) (ChannelInfo, error)
}

// UserNotifier sends direct messages to users.
type UserNotifier interface {
	SendDirectMessage(ctx context.Context, userID int64, text string) error
}

var (
	ErrNoTarget     = errors.New("channel target is not set")
	ErrInvalidMedia = errors.New("queue item has no publishable media")
)

// Dispatch sends item to target. A single post without its own caption is signed with signature;
// a media group is sent with its stored caption.
func Dispatch(ctx context.Context, p ChannelPublisher, target string, item queue.Item, signature string) error {
	if strings.TrimSpace(target) == "" {
		return ErrNoTarget
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMedia, err)
	}

	if item.Group != nil {
		return p.SendMediaGroup(ctx, target, item.Group.Items, item.Group.Caption)
	}

	caption := item.Single.Caption
	if caption == "" {
		caption = signature
	}
	switch item.Single.Kind {
	case queue.KindPhoto:
		return p.SendPhoto(ctx, target, item.Single.FileID, caption)
	case queue.KindVideo:
		return p.SendVideo(ctx, target, item.Single.FileID, caption)
	case queue.KindGIF:
		return p.SendAnimation(ctx, target, item.Single.FileID, caption)
	case queue.KindDocument:
		return p.SendDocument(ctx, target, item.Single.FileID, caption)
	}
	return fmt.Errorf("%w: kind %q", ErrInvalidMedia, item.Single.Kind)
}

// Target is a parsed channel reference: either a numeric chat id or a public username.
type Target struct {
	ID       int64
	Username string
}

// ParseTarget accepts "-1001234567890", "@name" or "name".
func ParseTarget(text string) (Target, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Target{}, ErrNoTarget
	}
	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		if id == 0 {
			return Target{}, fmt.Errorf("invalid chat id %q", text)
		}
		return Target{ID: id}, nil
	}
	name := strings.TrimPrefix(text, "@")
	if name == "" || strings.ContainsAny(name, " /@") {
		return Target{}, fmt.Errorf("invalid channel username %q", text)
	}
	return Target{Username: "@" + name}, nil
}

// String renders the target the way it is persisted.
func (t Target) String() string {
	if t.Username != "" {
		return t.Username
	}
	return strconv.FormatInt(t.ID, 10)
}
