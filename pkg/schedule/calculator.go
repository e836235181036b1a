// Package schedule computes the next trigger instant for a workflow
// schedule. The calculator is a pure function of the schedule spec and an
// injected clock value; it performs no I/O.
package schedule

import (
	"fmt"
	"time"

	"github.com/mealflow/mealflow/pkg/model"
)

// NextRun maps a schedule spec and "now" to the next trigger instant.
//
// daily takes a wall-clock "time" ("HH:MM") from the config: today at that
// time if still in the future, otherwise tomorrow. weekly and monthly are
// flat now+7d / now+30d offsets, not calendar-aware recurrence. cron is not
// implemented and returns (nil, nil): callers must treat that as "never
// due", not as an error.
func NextRun(scheduleType model.ScheduleType, config model.JSONB, now time.Time) (*time.Time, error) {
	switch scheduleType {
	case model.ScheduleDaily:
		return nextDaily(config, now)
	case model.ScheduleWeekly:
		next := now.Add(7 * 24 * time.Hour)
		return &next, nil
	case model.ScheduleMonthly:
		next := now.Add(30 * 24 * time.Hour)
		return &next, nil
	case model.ScheduleCron:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown schedule type %q", scheduleType)
	}
}

func nextDaily(config model.JSONB, now time.Time) (*time.Time, error) {
	raw, ok := config.String("time")
	if !ok {
		return nil, fmt.Errorf("daily schedule requires a time field")
	}

	at, err := time.Parse("15:04", raw)
	if err != nil {
		return nil, fmt.Errorf("daily schedule time %q: %w", raw, err)
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return &next, nil
}
