package engine

import (
	"context"
	"errors"
	"time"

	"github.com/jghoshh/cadence/lib/utils"
	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
)

// ErrNoScheduleDecision is returned by IsDue for the X_TIMES_WEEK and
// X_TIMES_MONTH rules when no daily status row exists for the date. Those two
// rules cannot be derived from the habit alone: which days count toward the
// weekly or monthly quota is decided and persisted by a collaborator outside
// this engine. Callers treat the date as not due but can tell "rule said no"
// apart from "no decision was ever recorded".
var ErrNoScheduleDecision = errors.New("no schedule decision recorded for date")

// FrequencyEvaluator decides whether a habit is due on a given calendar date.
// The five static rules are pure; the two quota rules consult the day's
// HabitDailyStatus row through the injected storage.
type FrequencyEvaluator struct {
	store storage.StorageInterface
}

// NewFrequencyEvaluator creates a FrequencyEvaluator on the given storage.
func NewFrequencyEvaluator(store storage.StorageInterface) *FrequencyEvaluator {
	return &FrequencyEvaluator{store: store}
}

// IsDue reports whether the habit is due on date's calendar day. date carries
// the user's location; weekday and day arithmetic follow it. Dates before the
// habit's start or after its end are never due, regardless of rule.
func (f *FrequencyEvaluator) IsDue(ctx context.Context, habit *models.Habit, date time.Time) (bool, error) {
	loc := date.Location()

	if utils.DaysBetween(habit.StartDate, date, loc) < 0 {
		return false, nil
	}
	if habit.EndDate != nil && utils.DaysBetween(date, *habit.EndDate, loc) < 0 {
		return false, nil
	}

	switch habit.FrequencyType {
	case models.FrequencyDaily:
		return true, nil

	case models.FrequencyWeekdays:
		wd := date.Weekday()
		return wd >= time.Monday && wd <= time.Friday, nil

	case models.FrequencyWeekends:
		wd := date.Weekday()
		return wd == time.Saturday || wd == time.Sunday, nil

	case models.FrequencySpecificDays:
		wd := int(date.Weekday())
		for _, d := range habit.SpecificDays {
			if d == wd {
				return true, nil
			}
		}
		return false, nil

	case models.FrequencyInterval:
		if habit.FrequencyInterval <= 0 {
			return false, nil
		}
		return utils.DaysBetween(habit.StartDate, date, loc)%habit.FrequencyInterval == 0, nil

	case models.FrequencyXTimesWeek, models.FrequencyXTimesMonth:
		status, err := f.store.FindDailyStatus(ctx, habit.ID, habit.UserID, utils.DayKey(date, loc))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return false, ErrNoScheduleDecision
			}
			return false, err
		}
		return status.IsScheduled, nil
	}

	return false, nil
}
