package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/jghoshh/cadence/lib/utils"
	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sentPush struct {
	userID primitive.ObjectID
	title  string
	body   string
}

// recordingSender captures sent pushes and can be told to fail.
type recordingSender struct {
	sent []sentPush
	err  error
}

func (s *recordingSender) Send(_ context.Context, userID primitive.ObjectID, title, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentPush{userID: userID, title: title, body: body})
	return nil
}

type dispatchFixture struct {
	store      *storage.MemoryStorage
	sender     *recordingSender
	clock      *quartz.Mock
	dispatcher *ReminderDispatcher
	user       *models.User
	habit      *models.Habit
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	store := storage.NewMemoryStorage()
	sender := &recordingSender{}
	clock := quartz.NewMock(t)
	clock.Set(monday.Add(14 * time.Hour)) // Monday 14:00 UTC

	user := store.PutUser(&models.User{
		Username: "testuser",
		Email:    "testuser@example.com",
		Timezone: "UTC",
	})
	habit := store.PutHabit(&models.Habit{
		UserID:        user.ID,
		Name:          "Stretch",
		FrequencyType: models.FrequencyDaily,
		StartDate:     monday.AddDate(0, 0, -30),
		IsActive:      true,
	})

	return &dispatchFixture{
		store:      store,
		sender:     sender,
		clock:      clock,
		dispatcher: NewReminderDispatcher(store, sender, clock),
		user:       user,
		habit:      habit,
	}
}

// seedDue inserts an unsent reminder that became due before the fixture clock.
func (f *dispatchFixture) seedDue(t *testing.T, metadata map[string]string) *models.ScheduledReminder {
	reminder := &models.ScheduledReminder{
		HabitID:       &f.habit.ID,
		UserID:        f.user.ID,
		ScheduledTime: f.clock.Now().Add(-10 * time.Minute),
		Type:          models.ReminderPrimary,
		Message:       `Time for "Stretch"`,
		Metadata:      metadata,
	}
	inserted, err := f.store.AddScheduledReminderIfAbsent(context.Background(), reminder)
	require.NoError(t, err)
	require.True(t, inserted)
	return reminder
}

func (f *dispatchFixture) findRow(t *testing.T, id primitive.ObjectID) *models.ScheduledReminder {
	for _, r := range f.store.ScheduledReminders() {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("scheduled reminder %s not found", id.Hex())
	return nil
}

func TestDispatchSendsAndAwardsPoints(t *testing.T) {
	f := newDispatchFixture(t)
	reminder := f.seedDue(t, nil)

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)

	row := f.findRow(t, reminder.ID)
	assert.True(t, row.IsSent)
	assert.Equal(t, models.SendStatusSent, row.SendStatus)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Habit reminder", f.sender.sent[0].title)
	assert.Equal(t, `Time for "Stretch"`, f.sender.sent[0].body)

	logs := f.store.PointsLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].Points)

	user, err := f.store.FindUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, user.Points)
}

func TestDispatchSkipsCompletedHabit(t *testing.T) {
	f := newDispatchFixture(t)
	reminder := f.seedDue(t, nil)

	// The habit was completed after the reminder was scheduled.
	f.store.PutLog(&models.HabitLog{
		HabitID:   f.habit.ID,
		UserID:    f.user.ID,
		Completed: true,
		LoggedAt:  monday.Add(13 * time.Hour),
	})

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Sent)

	row := f.findRow(t, reminder.ID)
	assert.Equal(t, models.SendStatusSkippedCompleted, row.SendStatus)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.store.PointsLogs())
}

func TestDispatchSkipsQuietHours(t *testing.T) {
	f := newDispatchFixture(t)
	f.user.QuietHoursEnabled = true
	f.user.QuietHoursStart = "13:00"
	f.user.QuietHoursEnd = "15:00"
	reminder := f.seedDue(t, nil)

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	row := f.findRow(t, reminder.ID)
	assert.Equal(t, models.SendStatusSkippedQuiet, row.SendStatus)
	assert.Empty(t, f.sender.sent)
}

func TestDispatchTestReminderBypassesQuietHours(t *testing.T) {
	f := newDispatchFixture(t)
	f.user.QuietHoursEnabled = true
	f.user.QuietHoursStart = "13:00"
	f.user.QuietHoursEnd = "15:00"
	reminder := f.seedDue(t, map[string]string{"test": "true"})

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	row := f.findRow(t, reminder.ID)
	assert.Equal(t, models.SendStatusSent, row.SendStatus)
	require.Len(t, f.sender.sent, 1)

	// Forced test reminders earn no points.
	assert.Empty(t, f.store.PointsLogs())
	user, err := f.store.FindUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Points)
}

func TestDispatchRecordsFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.sender.err = errors.New("broker unavailable")
	reminder := f.seedDue(t, nil)

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	row := f.findRow(t, reminder.ID)
	assert.True(t, row.IsSent)
	assert.Equal(t, models.SendStatusFailed, row.SendStatus)
	assert.Contains(t, row.Error, "broker unavailable")
	assert.Empty(t, f.store.PointsLogs())
}

func TestDispatchIgnoresFutureReminders(t *testing.T) {
	f := newDispatchFixture(t)
	reminder := &models.ScheduledReminder{
		HabitID:       &f.habit.ID,
		UserID:        f.user.ID,
		ScheduledTime: f.clock.Now().Add(30 * time.Minute),
		Type:          models.ReminderPrimary,
		Message:       "later",
	}
	_, err := f.store.AddScheduledReminderIfAbsent(context.Background(), reminder)
	require.NoError(t, err)

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, f.sender.sent)
}

func TestDispatchIsAtMostOnce(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedDue(t, nil)

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	result, err = f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, f.sender.sent, 1)
	assert.Len(t, f.store.PointsLogs(), 1)
}

func TestDispatchCompletionUsesScheduledDay(t *testing.T) {
	f := newDispatchFixture(t)
	f.seedDue(t, nil)

	// A completion on a different day does not suppress the reminder, but the
	// day's status row marked completed does.
	f.store.PutLog(&models.HabitLog{
		HabitID:   f.habit.ID,
		UserID:    f.user.ID,
		Completed: true,
		LoggedAt:  monday.AddDate(0, 0, -1).Add(13 * time.Hour),
	})

	result, err := f.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	// Second fixture: status-row completion on the scheduled day.
	f2 := newDispatchFixture(t)
	r2 := f2.seedDue(t, nil)
	f2.store.SetStatusCompleted(f2.habit.ID, f2.user.ID, utils.DayKey(monday, time.UTC))

	result, err = f2.dispatcher.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, models.SendStatusSkippedCompleted, f2.findRow(t, r2.ID).SendStatus)
}
