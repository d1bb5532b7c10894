package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jghoshh/cadence/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by Find methods when no document matches.
// Callers that lazily create rows branch on this with errors.Is.
var ErrNotFound = errors.New("not found")

// DeleteResult represents the result of a deletion operation,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement. The scheduling engines receive it by injection
// so tests can run against the in-memory implementation.
type StorageInterface interface {
	// Disconnects from the storage backend.
	Disconnect() error

	// Finds a user by id.
	FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// Finds all users; the daily-goal pass iterates these.
	FindUsers(ctx context.Context) ([]models.User, error)
	// Updates a user's daily-goal streak counters.
	UpdateUserStreak(ctx context.Context, id primitive.ObjectID, current, longest int) error
	// Increments a user's points total.
	AddUserPoints(ctx context.Context, id primitive.ObjectID, points int) error

	// Finds a habit by id.
	FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error)
	// Finds all active habits.
	FindActiveHabits(ctx context.Context) ([]models.Habit, error)

	// Reports whether a completed habit log exists for the habit in [start, end).
	HasCompletedLog(ctx context.Context, habitID primitive.ObjectID, start, end time.Time) (bool, error)
	// Finds a user's completed habit logs in [start, end).
	FindCompletedLogs(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.HabitLog, error)

	// Finds the daily status row for (habit, user, day). Returns ErrNotFound when absent.
	FindDailyStatus(ctx context.Context, habitID, userID primitive.ObjectID, day time.Time) (*models.HabitDailyStatus, error)
	// Adds a daily status row.
	AddDailyStatus(ctx context.Context, status *models.HabitDailyStatus) (*models.HabitDailyStatus, error)
	// Finds a user's completed daily status rows for one day.
	FindCompletedStatuses(ctx context.Context, userID primitive.ObjectID, day time.Time) ([]models.HabitDailyStatus, error)

	// Finds the streak row for (habit, user). Returns ErrNotFound when absent.
	FindStreak(ctx context.Context, habitID, userID primitive.ObjectID) (*models.HabitStreak, error)
	// Adds a streak row.
	AddStreak(ctx context.Context, streak *models.HabitStreak) (*models.HabitStreak, error)
	// Replaces a streak row; the streak engine is its only writer.
	UpdateStreak(ctx context.Context, streak *models.HabitStreak) error

	// Adds an immutable streak reset audit row.
	AddReset(ctx context.Context, reset *models.HabitReset) (*models.HabitReset, error)

	// Finds the enabled reminder configurations of a habit.
	FindEnabledReminders(ctx context.Context, habitID primitive.ObjectID) ([]models.HabitReminder, error)

	// Inserts a scheduled reminder unless one already exists for the same
	// (habit, user, scheduled_time, config, type) tuple. Reports whether the
	// insert happened. The check is atomic: a unique index backs it.
	AddScheduledReminderIfAbsent(ctx context.Context, reminder *models.ScheduledReminder) (bool, error)
	// Finds unsent scheduled reminders with scheduled_time <= now.
	FindDueScheduledReminders(ctx context.Context, now time.Time) ([]models.ScheduledReminder, error)
	// Flips a scheduled reminder to a terminal status. Reports whether this
	// call performed the flip; false means another run already closed it.
	CloseScheduledReminder(ctx context.Context, id primitive.ObjectID, status models.SendStatus, errText string) (bool, error)
	// Deletes unsent instances materialized from one reminder configuration,
	// used when the configuration changes.
	DeleteUnsentReminders(ctx context.Context, configID primitive.ObjectID) (*DeleteResult, error)

	// Adds an in-app notification row.
	AddNotification(ctx context.Context, n *models.Notification) (*models.Notification, error)
	// Adds a points award row.
	AddPointsLog(ctx context.Context, p *models.PointsLog) (*models.PointsLog, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
