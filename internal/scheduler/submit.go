package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chanqueue-bot/internal/queue"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// drainPause separates consecutive posts of PublishAll.
const drainPause = 500 * time.Millisecond

// SubmitResult describes where submitted items landed.
type SubmitResult struct {
	Position   int  // 0-based queue position of the first item
	Count      int  // items appended
	InFlight   bool // a publish was running when the items arrived
	Published  bool // the first item went out immediately
	PublishErr error
}

// Submit appends items to the queue. When they land in an empty queue as its only entry and the
// schedule allows publishing right now, the entry is published straight away.
func (s *Service) Submit(ctx context.Context, items ...queue.Item) (SubmitResult, error) {
	res := SubmitResult{Count: len(items), InFlight: s.inFlight.Load()}
	before, err := s.queue.Append(ctx, items...)
	if err != nil {
		return res, err
	}
	res.Position = before
	defer s.Wake()

	if before != 0 || s.queue.Len() != 1 {
		return res, nil
	}
	now := s.now()
	d := s.decide(now, s.settings.Snapshot())
	if !d.ready || d.slot.After(now) {
		return res, nil
	}

	_, err = s.runCycle(ctx, false)
	switch {
	case err == nil:
		res.Published = true
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNotReady), errors.Is(err, ErrQueueEmpty):
		log.Debug().Err(err).Msg("instant publish skipped")
	default:
		res.PublishErr = err
	}
	return res, nil
}

// PublishNow publishes the head of the queue immediately, ignoring the interval, slots, window,
// weekday and pause gates. A channel must still be configured.
func (s *Service) PublishNow(ctx context.Context) (queue.Item, error) {
	defer s.Wake()
	return s.runCycle(ctx, true)
}

// PublishAt publishes the item at the 0-based index immediately, bypassing the same gates as
// PublishNow. On failure the item keeps its position.
func (s *Service) PublishAt(ctx context.Context, index int) (queue.Item, error) {
	defer s.Wake()
	release, ok := s.acquire()
	if !ok {
		return queue.Item{}, ErrBusy
	}
	defer release()

	snap := s.settings.Snapshot()
	if snap.ChannelTarget == "" {
		return queue.Item{}, ErrNoChannel
	}
	item, ok := s.queue.At(index)
	if !ok {
		return queue.Item{}, queue.ErrIndexOutOfRange
	}
	return item, s.publishLocked(ctx, snap, item, true)
}

// PublishAll publishes the whole queue in order, pausing briefly between posts. It stops at the
// first failure, leaving that item and everything behind it queued, and returns how many posts
// went out.
func (s *Service) PublishAll(ctx context.Context) (int, error) {
	defer s.Wake()
	n := s.queue.Len()
	if n == 0 {
		return 0, ErrQueueEmpty
	}
	published := 0
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := s.sleep(ctx, drainPause); err != nil {
				return published, err
			}
		}
		if _, err := s.runCycle(ctx, true); err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				break
			}
			return published, err
		}
		published++
	}
	log.Info().Int("published", published).Msg("queue drained")
	return published, nil
}

// PublishDirect sends item straight to the channel without queueing it. The cadence is not
// affected and nobody is notified; the caller reports the outcome.
func (s *Service) PublishDirect(ctx context.Context, item queue.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	release, ok := s.acquire()
	if !ok {
		return ErrBusy
	}
	defer release()

	snap := s.settings.Snapshot()
	if snap.ChannelTarget == "" {
		return ErrNoChannel
	}
	attemptAt := s.now()
	err := s.send(ctx, snap, item)
	s.logPost(ctx, snap, item, attemptAt, 1, true, err)
	if err != nil {
		log.Error().Err(err).Str("type", item.TypeName()).Msg("direct publish failed")
		sentry.CaptureException(fmt.Errorf("direct publish: %w", err))
		return err
	}
	log.Info().Str("type", item.TypeName()).Msg("published directly")
	return nil
}

// NextPublish estimates when the next automatic publish will happen.
func (s *Service) NextPublish() (time.Time, bool) {
	snap := s.settings.Snapshot()
	if !snap.PostingEnabled || snap.ChannelTarget == "" {
		return time.Time{}, false
	}
	now := s.now()
	wait, ok := s.settings.PolicyFor(snap).Next(now, snap.LastPublishAt)
	if !ok {
		return time.Time{}, false
	}
	return now.Add(wait), true
}

// Forecast estimates when the items at 0-based positions pos..pos+count-1 will be published.
func (s *Service) Forecast(pos, count int) (first, last time.Time, ok bool) {
	if pos < 0 || count <= 0 {
		return time.Time{}, time.Time{}, false
	}
	snap := s.settings.Snapshot()
	if !snap.PostingEnabled {
		return time.Time{}, time.Time{}, false
	}
	p := s.settings.PolicyFor(snap)
	now := s.now()
	if _, first, ok = p.ScheduleForQueue(now, snap.LastPublishAt, pos+1); !ok {
		return time.Time{}, time.Time{}, false
	}
	if count == 1 {
		return first, first, true
	}
	_, last, ok = p.ScheduleForQueue(now, snap.LastPublishAt, pos+count)
	return first, last, ok
}
