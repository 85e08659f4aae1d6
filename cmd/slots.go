package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/internal/settings"

	"github.com/spf13/cobra"
)

var slotsFlags struct {
	interval string
	window   string
	days     string
	exact    bool
	queue    int
	timezone string
	last     string
}

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Print the daily slots and a publish forecast for a schedule",
	Example: `  chanqueue-bot slots --interval 3h --window 09:00-21:00
  chanqueue-bot slots --interval 90m --days 1,2,3,4,5 --queue 10`,
	RunE: printSlots,
}

func init() {
	f := slotsCmd.Flags()
	f.StringVar(&slotsFlags.interval, "interval", "", "posting interval, e.g. 2h 30m")
	f.StringVar(&slotsFlags.window, "window", "", "posting window, e.g. 09:00-21:00")
	f.StringVar(&slotsFlags.days, "days", "", "allowed weekdays, 1 = Monday, e.g. 1,2,3,4,5")
	f.BoolVar(&slotsFlags.exact, "exact", true, "publish on exact slots instead of a plain interval")
	f.IntVar(&slotsFlags.queue, "queue", 5, "number of queued posts to forecast")
	f.StringVar(&slotsFlags.timezone, "tz", "Europe/Prague", "IANA time zone")
	f.StringVar(&slotsFlags.last, "last", "", "time of the last publish, e.g. 2025-06-01 09:00")
	_ = slotsCmd.MarkFlagRequired("interval")
	rootCmd.AddCommand(slotsCmd)
}

func buildPolicy() (schedule.Policy, *time.Location, error) {
	loc, err := time.LoadLocation(slotsFlags.timezone)
	if err != nil {
		return schedule.Policy{}, nil, fmt.Errorf("time zone: %w", err)
	}
	interval, ok := schedule.ParseDuration(slotsFlags.interval)
	if !ok {
		return schedule.Policy{}, nil, fmt.Errorf("invalid interval %q", slotsFlags.interval)
	}
	p := schedule.Policy{Location: loc, Interval: interval, ExactTiming: slotsFlags.exact}

	if slotsFlags.window != "" {
		start, end, found := strings.Cut(slotsFlags.window, "-")
		if !found {
			return schedule.Policy{}, nil, fmt.Errorf("invalid window %q", slotsFlags.window)
		}
		s, err := schedule.ParseClock(start)
		if err != nil {
			return schedule.Policy{}, nil, err
		}
		e, err := schedule.ParseClock(end)
		if err != nil {
			return schedule.Policy{}, nil, err
		}
		p.WindowEnabled = true
		p.Window = &schedule.Window{Start: s, End: e}
	}

	if slotsFlags.days != "" {
		var days []int
		for _, f := range strings.Split(slotsFlags.days, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return schedule.Policy{}, nil, fmt.Errorf("invalid weekday %q", f)
			}
			days = append(days, n)
		}
		set, err := settings.ParseWeekdayNumbers(days)
		if err != nil {
			return schedule.Policy{}, nil, err
		}
		p.WeekdaysEnabled = true
		p.Weekdays = &set
	}
	return p, loc, nil
}

func printSlots(cmd *cobra.Command, _ []string) error {
	p, loc, err := buildPolicy()
	if err != nil {
		return err
	}
	var last time.Time
	if slotsFlags.last != "" {
		if last, err = settings.ParseDelayedStart(slotsFlags.last, loc); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if p.ExactTiming {
		slots := p.DailySlots()
		names := make([]string, len(slots))
		for i, s := range slots {
			names[i] = s.String()
		}
		fmt.Fprintf(out, "%d slot(s) per day: %s\n", len(slots), strings.Join(names, ", "))
	} else {
		fmt.Fprintf(out, "posting every %s\n", schedule.FormatDuration(p.Interval, schedule.EnglishUnits))
	}

	now := time.Now()
	for n := 1; n <= slotsFlags.queue; n++ {
		_, at, ok := p.ScheduleForQueue(now, last, n)
		if !ok {
			fmt.Fprintln(out, "no publish time within the search horizon")
			return nil
		}
		fmt.Fprintf(out, "#%d  %s\n", n, at.In(loc).Format("Mon 02.01.2006 15:04"))
	}
	return nil
}
