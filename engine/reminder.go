package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coder/quartz"
	"github.com/jghoshh/cadence/lib/utils"
	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReminderGenerator materializes concrete ScheduledReminder instances from a
// habit's reminder configurations for a target date. Generation is idempotent:
// the storage insert-if-absent is atomic on the dedup tuple, so concurrent or
// repeated invocations for the same date create at most one instance per
// (config, time, type).
type ReminderGenerator struct {
	store storage.StorageInterface
	freq  *FrequencyEvaluator
	clock quartz.Clock
}

// NewReminderGenerator creates a ReminderGenerator with its injected collaborators.
func NewReminderGenerator(store storage.StorageInterface, freq *FrequencyEvaluator, clock quartz.Clock) *ReminderGenerator {
	return &ReminderGenerator{store: store, freq: freq, clock: clock}
}

// GenerateResult aggregates the outcome of one generation batch.
type GenerateResult struct {
	HabitsProcessed int
	Created         int
	Errored         int
}

// Generate materializes reminder instances for one habit and target date in
// the user's timezone and returns the count of instances created. It skips
// entirely when the habit is not due or already completed for the date, and
// never creates instances in the past.
func (g *ReminderGenerator) Generate(ctx context.Context, habit *models.Habit, user *models.User, targetDate time.Time) (int, error) {
	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return 0, err
	}
	localDate := targetDate.In(loc)
	now := g.clock.Now()

	due, err := g.freq.IsDue(ctx, habit, localDate)
	if err != nil {
		if errors.Is(err, ErrNoScheduleDecision) {
			// A quota habit whose schedule for the day was never decided is
			// worth noticing in the logs: it may be silently under-scheduled.
			log.Printf("reminders: habit %s has no schedule decision for %s, skipping",
				habit.ID.Hex(), localDate.Format("2006-01-02"))
			return 0, nil
		}
		return 0, err
	}
	if !due {
		return 0, nil
	}

	completed, err := habitCompletedOn(ctx, g.store, habit.ID, user.ID, localDate)
	if err != nil {
		return 0, err
	}
	if completed {
		return 0, nil
	}

	configs, err := g.store.FindEnabledReminders(ctx, habit.ID)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range configs {
		cfg := &configs[i]
		n, err := g.generateFromConfig(ctx, habit, cfg, localDate, now)
		if err != nil {
			log.Printf("reminders: habit %s config %s: %v", habit.ID.Hex(), cfg.ID.Hex(), err)
			continue
		}
		created += n
	}
	return created, nil
}

// generateFromConfig materializes the PRIMARY instance (and PRE_NOTIFICATION
// when configured) for one reminder configuration.
func (g *ReminderGenerator) generateFromConfig(ctx context.Context, habit *models.Habit, cfg *models.HabitReminder, localDate, now time.Time) (int, error) {
	minutes, err := utils.ParseClock(cfg.TimeOfDay)
	if err != nil {
		return 0, err
	}

	scheduledTime := utils.AtClock(localDate, minutes, localDate.Location())
	if !scheduledTime.After(now) {
		// No retroactive reminders.
		return 0, nil
	}

	created := 0
	primary := &models.ScheduledReminder{
		HabitID:          &habit.ID,
		UserID:           cfg.UserID,
		ReminderConfigID: &cfg.ID,
		ScheduledTime:    scheduledTime.UTC(),
		Type:             models.ReminderPrimary,
		Message:          fmt.Sprintf("Time for %q", habit.Name),
	}
	inserted, err := g.store.AddScheduledReminderIfAbsent(ctx, primary)
	if err != nil {
		return created, err
	}
	if inserted {
		created++
	}

	if cfg.PreNotificationMinutes > 0 {
		preTime := scheduledTime.Add(-time.Duration(cfg.PreNotificationMinutes) * time.Minute)
		if preTime.After(now) {
			pre := &models.ScheduledReminder{
				HabitID:          &habit.ID,
				UserID:           cfg.UserID,
				ReminderConfigID: &cfg.ID,
				ScheduledTime:    preTime.UTC(),
				Type:             models.ReminderPreNotification,
				Message:          fmt.Sprintf("%q is coming up in %d minutes", habit.Name, cfg.PreNotificationMinutes),
			}
			inserted, err := g.store.AddScheduledReminderIfAbsent(ctx, pre)
			if err != nil {
				return created, err
			}
			if inserted {
				created++
			}
		}
	}

	return created, nil
}

// GenerateNextDay is the daily lookahead batch: it materializes tomorrow's
// reminders for every active habit, tomorrow being relative to each owner's
// timezone. Per-habit failures are logged and counted.
func (g *ReminderGenerator) GenerateNextDay(ctx context.Context) (*GenerateResult, error) {
	habits, err := g.store.FindActiveHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("reminders: loading active habits: %w", err)
	}

	result := &GenerateResult{}
	users := map[primitive.ObjectID]*models.User{}

	for i := range habits {
		habit := &habits[i]
		result.HabitsProcessed++

		user, ok := users[habit.UserID]
		if !ok {
			user, err = g.store.FindUser(ctx, habit.UserID)
			if err != nil {
				log.Printf("reminders: habit %s: loading user %s: %v", habit.ID.Hex(), habit.UserID.Hex(), err)
				result.Errored++
				continue
			}
			users[habit.UserID] = user
		}

		loc, err := utils.LoadLocation(user.Timezone)
		if err != nil {
			log.Printf("reminders: habit %s: %v", habit.ID.Hex(), err)
			result.Errored++
			continue
		}
		tomorrow := g.clock.Now().In(loc).AddDate(0, 0, 1)

		created, err := g.Generate(ctx, habit, user, tomorrow)
		if err != nil {
			log.Printf("reminders: habit %s: %v", habit.ID.Hex(), err)
			result.Errored++
			continue
		}
		result.Created += created
	}

	log.Printf("reminders: generated %d instances across %d habits (%d errored)",
		result.Created, result.HabitsProcessed, result.Errored)
	return result, nil
}

// RegenerateForConfig reacts to a reminder-configuration change: unsent
// instances materialized from the old configuration are discarded and today
// plus tomorrow are regenerated. Sent instances are history and untouched.
func (g *ReminderGenerator) RegenerateForConfig(ctx context.Context, cfg *models.HabitReminder) (int, error) {
	if _, err := g.store.DeleteUnsentReminders(ctx, cfg.ID); err != nil {
		return 0, fmt.Errorf("discarding stale instances: %w", err)
	}

	habit, err := g.store.FindHabit(ctx, cfg.HabitID)
	if err != nil {
		return 0, err
	}
	user, err := g.store.FindUser(ctx, cfg.UserID)
	if err != nil {
		return 0, err
	}
	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return 0, err
	}

	created := 0
	today := g.clock.Now().In(loc)
	for _, date := range []time.Time{today, today.AddDate(0, 0, 1)} {
		n, err := g.Generate(ctx, habit, user, date)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}
