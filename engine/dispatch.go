package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/coder/quartz"
	"github.com/jghoshh/cadence/lib/utils"
	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
)

// Points awarded for receiving a (non-test) reminder.
const reminderReceivedPoints = 2

// ReminderDispatcher drains due scheduled reminders and closes each with a
// terminal status: sent, skipped because the habit is already done, skipped
// for quiet hours, or failed. A row's status flips before the batch moves on,
// so a rerun sees it as sent and each instance is processed at most once.
type ReminderDispatcher struct {
	store  storage.StorageInterface
	sender Sender
	clock  quartz.Clock
}

// NewReminderDispatcher creates a ReminderDispatcher with its injected collaborators.
func NewReminderDispatcher(store storage.StorageInterface, sender Sender, clock quartz.Clock) *ReminderDispatcher {
	return &ReminderDispatcher{store: store, sender: sender, clock: clock}
}

// DispatchResult aggregates the outcome of one dispatch batch.
type DispatchResult struct {
	Processed int
	Sent      int
	Skipped   int
	Failed    int
}

// ProcessDue pulls every unsent reminder whose time has come and decides its
// fate. Errors on a single instance close it as FAILED with the error text
// and never stop the batch.
func (d *ReminderDispatcher) ProcessDue(ctx context.Context) (*DispatchResult, error) {
	now := d.clock.Now()
	due, err := d.store.FindDueScheduledReminders(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("dispatch: loading due reminders: %w", err)
	}

	result := &DispatchResult{}
	for i := range due {
		reminder := &due[i]
		result.Processed++

		status, err := d.processOne(ctx, reminder)
		if err != nil {
			log.Printf("dispatch: reminder %s: %v", reminder.ID.Hex(), err)
			if _, closeErr := d.store.CloseScheduledReminder(ctx, reminder.ID, models.SendStatusFailed, err.Error()); closeErr != nil {
				log.Printf("dispatch: reminder %s: recording failure: %v", reminder.ID.Hex(), closeErr)
			}
			result.Failed++
			continue
		}

		switch status {
		case models.SendStatusSent:
			result.Sent++
		case models.SendStatusSkippedCompleted, models.SendStatusSkippedQuiet:
			result.Skipped++
		default:
			// Closed by a concurrent run; nothing to count.
		}
	}

	if result.Processed > 0 {
		log.Printf("dispatch: processed=%d sent=%d skipped=%d failed=%d",
			result.Processed, result.Sent, result.Skipped, result.Failed)
	}
	return result, nil
}

// processOne decides and records the terminal status of a single reminder.
// An empty return status means another run closed the row first.
func (d *ReminderDispatcher) processOne(ctx context.Context, reminder *models.ScheduledReminder) (models.SendStatus, error) {
	user, err := d.store.FindUser(ctx, reminder.UserID)
	if err != nil {
		return "", fmt.Errorf("loading user: %w", err)
	}
	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return "", err
	}

	// Completed since it was scheduled? Then there is no point reminding.
	if reminder.HabitID != nil {
		completed, err := habitCompletedOn(ctx, d.store, *reminder.HabitID, reminder.UserID, reminder.ScheduledTime.In(loc))
		if err != nil {
			return "", fmt.Errorf("resolving completion: %w", err)
		}
		if completed {
			if _, err := d.store.CloseScheduledReminder(ctx, reminder.ID, models.SendStatusSkippedCompleted, ""); err != nil {
				return "", err
			}
			return models.SendStatusSkippedCompleted, nil
		}
	}

	// Forced test reminders go through quiet hours.
	if !reminder.IsTest() && IsQuiet(user, d.clock.Now()) {
		if _, err := d.store.CloseScheduledReminder(ctx, reminder.ID, models.SendStatusSkippedQuiet, ""); err != nil {
			return "", err
		}
		return models.SendStatusSkippedQuiet, nil
	}

	if err := d.sender.Send(ctx, reminder.UserID, reminderTitle(reminder), reminder.Message); err != nil {
		return "", fmt.Errorf("sending: %w", err)
	}

	closed, err := d.store.CloseScheduledReminder(ctx, reminder.ID, models.SendStatusSent, "")
	if err != nil {
		return "", err
	}
	if !closed {
		return "", nil
	}

	if !reminder.IsTest() {
		if _, err := d.store.AddPointsLog(ctx, &models.PointsLog{
			UserID:    reminder.UserID,
			HabitID:   reminder.HabitID,
			Points:    reminderReceivedPoints,
			Reason:    "reminder received",
			CreatedAt: d.clock.Now(),
		}); err != nil {
			log.Printf("dispatch: reminder %s: recording points: %v", reminder.ID.Hex(), err)
		} else if err := d.store.AddUserPoints(ctx, reminder.UserID, reminderReceivedPoints); err != nil {
			log.Printf("dispatch: reminder %s: incrementing points: %v", reminder.ID.Hex(), err)
		}
	}

	return models.SendStatusSent, nil
}

func reminderTitle(reminder *models.ScheduledReminder) string {
	switch reminder.Type {
	case models.ReminderPreNotification:
		return "Coming up"
	case models.ReminderStreakWarning:
		return "Streak at risk"
	case models.ReminderStreakPreservation:
		return "Keep your streak alive"
	default:
		return "Habit reminder"
	}
}
