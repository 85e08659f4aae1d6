package queue

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MediaKind is the kind of a single attachment.
type MediaKind string

const (
	KindPhoto    MediaKind = "photo"
	KindVideo    MediaKind = "video"
	KindGIF      MediaKind = "gif"
	KindDocument MediaKind = "document"
)

// Valid reports whether k is a known kind.
func (k MediaKind) Valid() bool {
	switch k {
	case KindPhoto, KindVideo, KindGIF, KindDocument:
		return true
	}
	return false
}

// Attachment references one piece of media already uploaded to the transport.
type Attachment struct {
	FileID string    `json:"file_id"`
	Kind   MediaKind `json:"kind"`
}

// SingleMedia is a post with exactly one attachment. An empty caption falls back to the
// default signature when the post is sent.
type SingleMedia struct {
	Attachment
	Caption string `json:"caption,omitempty"`
}

// MediaGroup is a multi-attachment post. The caption is rendered on the first attachment only.
type MediaGroup struct {
	Items   []Attachment `json:"items"`
	Caption string       `json:"caption,omitempty"`
}

// Item is a queued post. Exactly one of Single and Group is set.
type Item struct {
	ID     string       `json:"id"`
	Single *SingleMedia `json:"single,omitempty"`
	Group  *MediaGroup  `json:"group,omitempty"`

	// Submitters are the users to notify once this item is published or fails.
	Submitters []int64 `json:"submitters,omitempty"`

	Attempts   int       `json:"attempts,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

var (
	ErrEmptyItem      = errors.New("queue item has no media")
	ErrAmbiguousItem  = errors.New("queue item is both a single post and a group")
	ErrGroupTooSmall  = errors.New("media group needs at least two attachments")
	ErrUnknownKind    = errors.New("unknown media kind")
	ErrMissingFileRef = errors.New("attachment has no file id")
)

// NewSingle builds a single-attachment item.
func NewSingle(a Attachment, caption string, submitters ...int64) Item {
	return Item{
		ID:         uuid.NewString(),
		Single:     &SingleMedia{Attachment: a, Caption: caption},
		Submitters: dedupeUsers(submitters),
		EnqueuedAt: time.Now(),
	}
}

// NewGroup builds a media-group item. Groups must hold at least two attachments.
func NewGroup(items []Attachment, caption string, submitters ...int64) (Item, error) {
	if len(items) < 2 {
		return Item{}, ErrGroupTooSmall
	}
	it := Item{
		ID:         uuid.NewString(),
		Group:      &MediaGroup{Items: append([]Attachment(nil), items...), Caption: caption},
		Submitters: dedupeUsers(submitters),
		EnqueuedAt: time.Now(),
	}
	return it, it.Validate()
}

// IsGroup reports whether the item is a media group.
func (it Item) IsGroup() bool { return it.Group != nil }

// Attachments returns every attachment of the item in send order.
func (it Item) Attachments() []Attachment {
	switch {
	case it.Group != nil:
		return it.Group.Items
	case it.Single != nil:
		return []Attachment{it.Single.Attachment}
	}
	return nil
}

// Caption returns the caption stored on the item.
func (it Item) Caption() string {
	switch {
	case it.Group != nil:
		return it.Group.Caption
	case it.Single != nil:
		return it.Single.Caption
	}
	return ""
}

// TypeName names the item for logs: "media_group" or the kind of its single attachment.
func (it Item) TypeName() string {
	if it.Group != nil {
		return "media_group"
	}
	if it.Single != nil {
		return string(it.Single.Kind)
	}
	return "empty"
}

// Validate checks the tagged-variant invariants.
func (it Item) Validate() error {
	switch {
	case it.Single == nil && it.Group == nil:
		return ErrEmptyItem
	case it.Single != nil && it.Group != nil:
		return ErrAmbiguousItem
	case it.Group != nil && len(it.Group.Items) < 2:
		return ErrGroupTooSmall
	}
	for _, a := range it.Attachments() {
		if a.FileID == "" {
			return ErrMissingFileRef
		}
		if !a.Kind.Valid() {
			return ErrUnknownKind
		}
	}
	return nil
}

func (it Item) clone() Item {
	c := it
	if it.Single != nil {
		s := *it.Single
		c.Single = &s
	}
	if it.Group != nil {
		g := *it.Group
		g.Items = append([]Attachment(nil), it.Group.Items...)
		c.Group = &g
	}
	c.Submitters = append([]int64(nil), it.Submitters...)
	return c
}

func dedupeUsers(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
