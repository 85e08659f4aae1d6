package schedule

import (
	"time"
)

// maxSlotScanDays bounds how far ahead the next exact-mode slot is searched for.
const maxSlotScanDays = 7

// DailySlots returns the clock times at which exact-mode publishing is permitted, in window order.
//
// Without a window, slots run every Interval from 00:00. With a window, the window holds
// max(1, duration/Interval) slots starting at its start; slots that would land outside the window
// are dropped.
func (p Policy) DailySlots() []ClockTime {
	step := int(p.Interval / time.Second)
	if step <= 0 {
		return nil
	}

	w, ok := p.window()
	if !ok {
		slots := make([]ClockTime, 0, secondsPerDay/step+1)
		for s := 0; s < secondsPerDay; s += step {
			slots = append(slots, ClockTime(s))
		}
		return slots
	}

	count := int(w.Duration()/time.Second) / step
	if count <= 1 {
		return []ClockTime{w.Start}
	}
	slots := make([]ClockTime, 0, count)
	for i := 0; i < count; i++ {
		s := ClockTime((int(w.Start) + i*step) % secondsPerDay)
		if w.Contains(s) {
			slots = append(slots, s)
		}
	}
	return slots
}

// NextSlot returns the earliest slot instant strictly after now that falls on an allowed weekday.
func (p Policy) NextSlot(now time.Time) (time.Time, bool) {
	return p.slotAfter(p.DailySlots(), p.local(now))
}

func (p Policy) slotAfter(slots []ClockTime, after time.Time) (time.Time, bool) {
	if len(slots) == 0 {
		return time.Time{}, false
	}
	for d := 0; d <= maxSlotScanDays; d++ {
		day := dayStart(after, d)
		if !p.weekdayAllowed(day.Weekday()) {
			continue
		}
		var best time.Time
		for _, s := range slots {
			at := s.On(day)
			if at.After(after) && (best.IsZero() || at.Before(best)) {
				best = at
			}
		}
		if !best.IsZero() {
			return best, true
		}
	}
	return time.Time{}, false
}

func (p Policy) slotAtOrBefore(slots []ClockTime, at time.Time) (time.Time, bool) {
	if len(slots) == 0 {
		return time.Time{}, false
	}
	for d := 0; d >= -maxSlotScanDays; d-- {
		day := dayStart(at, d)
		if !p.weekdayAllowed(day.Weekday()) {
			continue
		}
		var best time.Time
		for _, s := range slots {
			inst := s.On(day)
			if !inst.After(at) && inst.After(best) {
				best = inst
			}
		}
		if !best.IsZero() {
			return best, true
		}
	}
	return time.Time{}, false
}

// SlotTolerance returns the effective exact-mode tolerance. It never exceeds half the interval,
// so two neighbouring slots can not both be due at once.
func (p Policy) SlotTolerance() time.Duration {
	tol := p.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if p.Interval > 0 && tol > p.Interval/2 {
		tol = p.Interval / 2
	}
	return tol
}

// DueSlot returns the exact-mode slot that may be served at now: one that lies within the tolerance
// on either side of now and has not been served by a publish at lastPublish.
// A slot still ahead of now means the caller should wait until it before sending.
func (p Policy) DueSlot(now, lastPublish time.Time) (time.Time, bool) {
	slots := p.DailySlots()
	if len(slots) == 0 {
		return time.Time{}, false
	}
	now = p.local(now)
	tol := p.SlotTolerance()

	served := func(slot time.Time) bool {
		return !lastPublish.IsZero() && !lastPublish.Before(slot.Add(-tol))
	}
	if next, ok := p.slotAfter(slots, now); ok && next.Sub(now) <= tol && !served(next) {
		return next, true
	}
	if prev, ok := p.slotAtOrBefore(slots, now); ok && now.Sub(prev) <= tol && !served(prev) {
		return prev, true
	}
	return time.Time{}, false
}

// Next returns how long to wait before the next publish may happen. It reports false when no cadence
// is configured, in which case automatic publishing stays dormant.
//
// In interval mode the wait is the remaining interval, pushed further out until the weekday and window
// gates open. In exact mode it is the distance to the next slot, or zero if a slot is due now.
// A pending delayed start pushes both out.
func (p Policy) Next(now, lastPublish time.Time) (time.Duration, bool) {
	if p.Interval <= 0 {
		return 0, false
	}
	now = p.local(now)
	from := now
	if p.DelayedStartPending(now) {
		from = p.local(p.DelayedStart)
	}

	var at time.Time
	if p.ExactTiming {
		if from.Equal(now) {
			if _, due := p.DueSlot(now, lastPublish); due {
				return 0, true
			}
		}
		next, ok := p.slotAfter(p.DailySlots(), from)
		if !ok {
			next = p.NextAllowed(from)
		}
		at = next
	} else {
		at = from
		if !lastPublish.IsZero() {
			if due := lastPublish.Add(p.Interval); due.After(at) {
				at = due
			}
		}
		at = p.NextAllowed(at)
	}

	wait := at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// ScheduleForQueue projects when the first and the n-th queued item would go out.
// It is an estimate for display; the scheduler's own checks decide actual publishes.
func (p Policy) ScheduleForQueue(now, lastPublish time.Time, n int) (first, last time.Time, ok bool) {
	if n <= 0 {
		return time.Time{}, time.Time{}, false
	}
	wait, ok := p.Next(now, lastPublish)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	now = p.local(now)
	first = now.Add(wait)

	if !p.ExactTiming {
		return first, first.Add(time.Duration(n-1) * p.Interval), true
	}

	slots := p.DailySlots()
	if wait == 0 {
		if slot, due := p.DueSlot(now, lastPublish); due {
			first = slot
		}
	}
	last = first
	for i := 1; i < n; i++ {
		next, found := p.slotAfter(slots, last)
		if !found {
			break
		}
		last = next
	}
	return first, last, true
}
