// Package queue holds the ordered list of posts waiting to be published.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"chanqueue-bot/internal/storage"

	"github.com/rs/zerolog/log"
)

const (
	// DocumentKey is the persistence key of the queue document.
	DocumentKey = "queue"
	// QuarantineKey is the persistence key of items that exhausted their publish attempts.
	QuarantineKey = "quarantine"
)

// ErrIndexOutOfRange is returned by RemoveAt for a position outside the queue.
var ErrIndexOutOfRange = errors.New("queue index out of range")

// Stats aggregates queue contents for operator displays.
type Stats struct {
	Posts     int // queue entries
	Groups    int
	Media     int // attachments across all entries
	Photos    int
	Videos    int
	GIFs      int
	Documents int
}

// Store is the persistent FIFO of posts. Every mutation is written through to the backend
// while the store lock is held, so publishers and command handlers never observe half-applied changes.
type Store struct {
	mu          sync.Mutex
	backend     storage.Store
	items       []Item
	quarantined []Item
}

// NewStore creates an empty store backed by backend. Call Load to restore persisted state.
func NewStore(backend storage.Store) *Store {
	return &Store{backend: backend}
}

// Load restores the queue and the quarantine list. Absent or malformed documents start empty;
// only backend I/O failures are returned.
func (s *Store) Load(ctx context.Context) error {
	items, err := s.loadList(ctx, DocumentKey)
	if err != nil {
		return err
	}
	quarantined, err := s.loadList(ctx, QuarantineKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = items
	s.quarantined = quarantined
	s.mu.Unlock()

	log.Info().Int("items", len(items)).Int("quarantined", len(quarantined)).Msg("queue loaded")
	return nil
}

func (s *Store) loadList(ctx context.Context, key string) ([]Item, error) {
	data, err := s.backend.Load(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	var raw []Item
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("malformed queue document, starting empty")
		return nil, nil
	}
	items := make([]Item, 0, len(raw))
	for i, it := range raw {
		if err := it.Validate(); err != nil {
			log.Warn().Err(err).Str("key", key).Int("position", i).Msg("dropping invalid queue item")
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	return s.saveList(ctx, DocumentKey, s.items)
}

func (s *Store) persistQuarantineLocked(ctx context.Context) error {
	return s.saveList(ctx, QuarantineKey, s.quarantined)
}

func (s *Store) saveList(ctx context.Context, key string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// Save writes the current queue and quarantine list to the backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	return s.persistQuarantineLocked(ctx)
}

// Append adds items to the tail. It returns the queue length before the append, which is
// the 0-based position of the first new item. When the queue cannot be persisted the items are
// not kept.
func (s *Store) Append(ctx context.Context, items ...Item) (int, error) {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.items)
	for _, it := range items {
		s.items = append(s.items, it.clone())
	}
	if err := s.persistLocked(ctx); err != nil {
		s.items = s.items[:before:before]
		return before, err
	}
	return before, nil
}

// Head returns a copy of the first item.
func (s *Store) Head() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return Item{}, false
	}
	return s.items[0].clone(), true
}

// PopFront removes the head item if its ID is id. It reports false when the head has changed
// (for example an operator removed or shuffled it meanwhile), leaving the queue untouched.
func (s *Store) PopFront(ctx context.Context, id string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 || s.items[0].ID != id {
		return Item{}, false, nil
	}
	head := s.items[0]
	s.items = append([]Item(nil), s.items[1:]...)
	return head, true, s.persistLocked(ctx)
}

// RemoveAt deletes the item at the 0-based index.
func (s *Store) RemoveAt(ctx context.Context, index int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return Item{}, ErrIndexOutOfRange
	}
	removed := s.items[index]
	s.items = append(s.items[:index:index], s.items[index+1:]...)
	return removed, s.persistLocked(ctx)
}

// At returns a copy of the item at the 0-based index.
func (s *Store) At(index int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return Item{}, false
	}
	return s.items[index].clone(), true
}

// Remove deletes the item with the given ID wherever it sits. It reports false when the item
// is no longer queued.
func (s *Store) Remove(ctx context.Context, id string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		removed := s.items[i]
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		return removed, true, s.persistLocked(ctx)
	}
	return Item{}, false, nil
}

// Shuffle randomly permutes the queue. It reports false without touching anything when the
// queue holds one item or none.
func (s *Store) Shuffle(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) <= 1 {
		return false, nil
	}
	rand.Shuffle(len(s.items), func(i, j int) {
		s.items[i], s.items[j] = s.items[j], s.items[i]
	})
	return true, s.persistLocked(ctx)
}

// Clear empties the queue and returns how many items were dropped.
func (s *Store) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	s.items = nil
	return n, s.persistLocked(ctx)
}

// SetCaption replaces the caption of every queued item and returns how many were updated.
func (s *Store) SetCaption(ctx context.Context, caption string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		switch {
		case s.items[i].Group != nil:
			s.items[i].Group.Caption = caption
		case s.items[i].Single != nil:
			s.items[i].Single.Caption = caption
		}
	}
	return len(s.items), s.persistLocked(ctx)
}

// SetCaptionAt replaces the caption of the item at the 0-based index.
func (s *Store) SetCaptionAt(ctx context.Context, index int, caption string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return ErrIndexOutOfRange
	}
	switch it := &s.items[index]; {
	case it.Group != nil:
		it.Group.Caption = caption
	case it.Single != nil:
		it.Single.Caption = caption
	}
	return s.persistLocked(ctx)
}

// RecordFailure bumps the attempt counter of the item with the given ID. Once the counter reaches
// maxAttempts (when positive) the item is moved to the quarantine list.
func (s *Store) RecordFailure(ctx context.Context, id string, cause error, maxAttempts int) (attempts int, quarantined bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false, nil
	}

	s.items[idx].Attempts++
	if cause != nil {
		s.items[idx].LastError = cause.Error()
	}
	attempts = s.items[idx].Attempts

	if maxAttempts > 0 && attempts >= maxAttempts {
		s.quarantined = append(s.quarantined, s.items[idx])
		s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
		if err := s.persistQuarantineLocked(ctx); err != nil {
			return attempts, true, err
		}
		return attempts, true, s.persistLocked(ctx)
	}
	return attempts, false, s.persistLocked(ctx)
}

// Quarantined returns a copy of the quarantine list.
func (s *Store) Quarantined() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.quarantined)
}

// RequeueQuarantined moves every quarantined item back to the tail with a fresh attempt counter.
func (s *Store) RequeueQuarantined(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.quarantined)
	if n == 0 {
		return 0, nil
	}
	for _, it := range s.quarantined {
		it.Attempts = 0
		it.LastError = ""
		s.items = append(s.items, it)
	}
	s.quarantined = nil
	if err := s.persistLocked(ctx); err != nil {
		return n, err
	}
	return n, s.persistQuarantineLocked(ctx)
}

// Len returns the number of queued items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy of the queue in order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.items)
}

// Submitters returns the users awaiting the outcome of the item at position pos.
// Position 0 names the users to notify for the next publish.
func (s *Store) Submitters(pos int) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 || pos >= len(s.items) {
		return nil
	}
	return append([]int64(nil), s.items[pos].Submitters...)
}

// Stats aggregates the queue by media kind.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	st.Posts = len(s.items)
	for _, it := range s.items {
		if it.IsGroup() {
			st.Groups++
		}
		for _, a := range it.Attachments() {
			st.Media++
			switch a.Kind {
			case KindPhoto:
				st.Photos++
			case KindVideo:
				st.Videos++
			case KindGIF:
				st.GIFs++
			case KindDocument:
				st.Documents++
			}
		}
	}
	return st
}

func cloneAll(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}
