// Package digest sends operators a periodic summary of the queue.
package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/settings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const timestampLayout = "02.01.2006 15:04"

// Forecaster estimates the next automatic publish.
type Forecaster interface {
	NextPublish() (time.Time, bool)
}

// Deps holds the dependencies of a Digest.
type Deps struct {
	Schedule  string // standard five-field cron expression or a descriptor such as "@daily"
	Queue     *queue.Store
	Settings  *settings.Manager
	Forecast  Forecaster
	Notifier  publisher.UserNotifier
	Operators []int64
	Localizer *i18n.Localizer
}

// Digest is a cron job that messages every operator with queue statistics.
type Digest struct {
	cron      *cron.Cron
	queue     *queue.Store
	settings  *settings.Manager
	forecast  Forecaster
	notifier  publisher.UserNotifier
	operators []int64
	localizer *i18n.Localizer
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the schedule and registers the job. Call Start to run it.
func New(deps Deps) (*Digest, error) {
	if deps.Queue == nil || deps.Settings == nil || deps.Forecast == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("digest: missing dependency")
	}
	if deps.Localizer == nil {
		deps.Localizer = locales.Default()
	}
	d := &Digest{
		queue:     deps.Queue,
		settings:  deps.Settings,
		forecast:  deps.Forecast,
		notifier:  deps.Notifier,
		operators: append([]int64(nil), deps.Operators...),
		localizer: deps.Localizer,
	}
	d.cron = cron.New(cron.WithParser(parser), cron.WithLocation(deps.Settings.Location()))
	if _, err := d.cron.AddFunc(deps.Schedule, d.run); err != nil {
		return nil, fmt.Errorf("digest schedule %q: %w", deps.Schedule, err)
	}
	return d, nil
}

// Start runs the job in the background.
func (d *Digest) Start() { d.cron.Start() }

// Stop halts the scheduler and waits for a running job to finish or ctx to expire.
func (d *Digest) Stop(ctx context.Context) {
	select {
	case <-d.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (d *Digest) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := d.Send(ctx); err != nil {
		log.Warn().Err(err).Msg("digest delivery failed")
	}
}

// Send delivers the digest to every operator and joins the delivery errors.
func (d *Digest) Send(ctx context.Context) error {
	text := d.Text()
	var errs []error
	for _, id := range d.operators {
		if err := d.notifier.SendDirectMessage(ctx, id, text); err != nil {
			errs = append(errs, fmt.Errorf("operator %d: %w", id, err))
		}
	}
	log.Info().Int("operators", len(d.operators)).Int("failed", len(errs)).Msg("digest sent")
	return errors.Join(errs...)
}

// Text renders the digest.
func (d *Digest) Text() string {
	snap := d.settings.Snapshot()
	loc := d.settings.Location()

	lastPost := locales.Msg(d.localizer, "ValueNever", nil)
	if !snap.LastPublishAt.IsZero() {
		lastPost = snap.LastPublishAt.In(loc).Format(timestampLayout)
	}
	nextPost := locales.Msg(d.localizer, "ValueNotSet", nil)
	if at, ok := d.forecast.NextPublish(); ok {
		nextPost = at.In(loc).Format(timestampLayout)
	}
	return locales.Msg(d.localizer, "MsgDigest", map[string]interface{}{
		"Posts":    d.queue.Len(),
		"Failed":   len(d.queue.Quarantined()),
		"LastPost": lastPost,
		"NextPost": nextPost,
	})
}
