package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// A Monday, chosen so weekday math in the tests is easy to follow.
var monday = time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)

func newTestHabit(freq models.FrequencyType) *models.Habit {
	return &models.Habit{
		ID:            primitive.NewObjectID(),
		UserID:        primitive.NewObjectID(),
		Name:          "Morning run",
		FrequencyType: freq,
		StartDate:     monday,
		IsActive:      true,
	}
}

func TestIsDueDaily(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyDaily)

	for i := 0; i < 7; i++ {
		due, err := f.IsDue(context.Background(), habit, monday.AddDate(0, 0, i))
		require.NoError(t, err)
		assert.True(t, due)
	}
}

func TestIsDueWeekdays(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyWeekdays)

	// Monday through Friday are due.
	for i := 0; i < 5; i++ {
		due, err := f.IsDue(context.Background(), habit, monday.AddDate(0, 0, i))
		require.NoError(t, err)
		assert.True(t, due, "weekday %d should be due", i)
	}

	// The following Saturday and Sunday are not.
	saturday := monday.AddDate(0, 0, 5)
	due, err := f.IsDue(context.Background(), habit, saturday)
	require.NoError(t, err)
	assert.False(t, due)

	due, err = f.IsDue(context.Background(), habit, saturday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestIsDueWeekends(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyWeekends)

	due, err := f.IsDue(context.Background(), habit, monday)
	require.NoError(t, err)
	assert.False(t, due)

	due, err = f.IsDue(context.Background(), habit, monday.AddDate(0, 0, 5)) // Saturday
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueSpecificDays(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencySpecificDays)
	habit.SpecificDays = []int{1, 3} // Monday, Wednesday

	due, err := f.IsDue(context.Background(), habit, monday)
	require.NoError(t, err)
	assert.True(t, due)

	due, err = f.IsDue(context.Background(), habit, monday.AddDate(0, 0, 1)) // Tuesday
	require.NoError(t, err)
	assert.False(t, due)

	due, err = f.IsDue(context.Background(), habit, monday.AddDate(0, 0, 2)) // Wednesday
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueInterval(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyInterval)
	habit.FrequencyInterval = 3

	expected := map[int]bool{0: true, 1: false, 2: false, 3: true, 4: false, 6: true}
	for offset, want := range expected {
		due, err := f.IsDue(context.Background(), habit, monday.AddDate(0, 0, offset))
		require.NoError(t, err)
		assert.Equal(t, want, due, "offset %d", offset)
	}
}

func TestIsDueOutsideHabitWindow(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyDaily)
	end := monday.AddDate(0, 0, 10)
	habit.EndDate = &end

	// Before the start date.
	due, err := f.IsDue(context.Background(), habit, monday.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.False(t, due)

	// After the end date.
	due, err = f.IsDue(context.Background(), habit, monday.AddDate(0, 0, 11))
	require.NoError(t, err)
	assert.False(t, due)

	// On the boundaries.
	due, err = f.IsDue(context.Background(), habit, monday)
	require.NoError(t, err)
	assert.True(t, due)
	due, err = f.IsDue(context.Background(), habit, end)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDueXTimesWeekReadsStatus(t *testing.T) {
	store := storage.NewMemoryStorage()
	f := NewFrequencyEvaluator(store)
	habit := newTestHabit(models.FrequencyXTimesWeek)
	habit.FrequencyValue = 3

	// No decision recorded yet: not due, with the sentinel.
	due, err := f.IsDue(context.Background(), habit, monday)
	assert.ErrorIs(t, err, ErrNoScheduleDecision)
	assert.False(t, due)

	// A recorded decision wins.
	store.SetStatusScheduled(habit.ID, habit.UserID, monday, true)
	due, err = f.IsDue(context.Background(), habit, monday)
	require.NoError(t, err)
	assert.True(t, due)

	store.SetStatusScheduled(habit.ID, habit.UserID, monday.AddDate(0, 0, 1), false)
	due, err = f.IsDue(context.Background(), habit, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestIsDueDeterministic(t *testing.T) {
	f := NewFrequencyEvaluator(storage.NewMemoryStorage())
	habit := newTestHabit(models.FrequencyWeekdays)

	for i := 0; i < 14; i++ {
		date := monday.AddDate(0, 0, i)
		first, err1 := f.IsDue(context.Background(), habit, date)
		second, err2 := f.IsDue(context.Background(), habit, date)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, first, second)
	}
}
