package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnceExecutesRegisteredJob(t *testing.T) {
	s := New()
	ran := 0
	err := s.Register("streaks.daily", "30 0 * * *", func(ctx context.Context) error {
		ran++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background(), "streaks.daily"))
	require.NoError(t, s.RunOnce(context.Background(), "streaks.daily"))
	assert.Equal(t, 2, ran)
}

func TestRunOncePropagatesJobError(t *testing.T) {
	s := New()
	jobErr := errors.New("storage down")
	require.NoError(t, s.Register("reminders.dispatch", "*/15 * * * *", func(ctx context.Context) error {
		return jobErr
	}))

	err := s.RunOnce(context.Background(), "reminders.dispatch")
	assert.ErrorIs(t, err, jobErr)
}

func TestRunOnceRejectsUnknownJob(t *testing.T) {
	s := New()
	err := s.RunOnce(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New()
	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Register("reminders.generate", "0 21 * * *", noop))

	err := s.Register("reminders.generate", "0 22 * * *", noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterRejectsBadCronSpec(t *testing.T) {
	s := New()
	err := s.Register("bad", "not a cron spec", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Empty(t, s.Names())
}

func TestNamesListsRegisteredJobs(t *testing.T) {
	s := New()
	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Register("a", "* * * * *", noop))
	require.NoError(t, s.Register("b", "* * * * *", noop))

	assert.ElementsMatch(t, []string{"a", "b"}, s.Names())
}
