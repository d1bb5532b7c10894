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

// Points awarded per 5-day block of a user's daily-goal streak.
const dailyGoalBlockPoints = 25

// StreakEngine runs the daily streak evaluation: one state machine per
// (habit, user) over {zero, active, grace-pending}, plus the independent
// per-user daily-goal streak. It is the only writer of HabitStreak rows and
// of the user streak counters.
type StreakEngine struct {
	store  storage.StorageInterface
	freq   *FrequencyEvaluator
	outbox Outbox
	clock  quartz.Clock
}

// NewStreakEngine creates a StreakEngine with its injected collaborators.
func NewStreakEngine(store storage.StorageInterface, freq *FrequencyEvaluator, outbox Outbox, clock quartz.Clock) *StreakEngine {
	return &StreakEngine{store: store, freq: freq, outbox: outbox, clock: clock}
}

// StreakRunResult aggregates the outcome of one daily run. Per-item failures
// are counted, never fatal; Errored > 0 with a nil error means the batch
// finished but some habits or users were left untouched until the next run.
type StreakRunResult struct {
	HabitsProcessed int
	Increased       int
	GraceUsed       int
	Reset           int
	Skipped         int
	Errored         int

	UsersProcessed int
	UsersIncreased int
	UsersReset     int
	UsersSkipped   int
	UsersErrored   int
}

type habitOutcome int

const (
	outcomeSkipped habitOutcome = iota
	outcomeIncreased
	outcomeGraceUsed
	outcomeReset
	outcomeNoop
)

// RunDaily evaluates yesterday for every active habit and then runs the
// per-user daily-goal pass. An error from the initial queries aborts the run
// with no state touched; anything past that point is handled per item.
func (e *StreakEngine) RunDaily(ctx context.Context) (*StreakRunResult, error) {
	habits, err := e.store.FindActiveHabits(ctx)
	if err != nil {
		return nil, fmt.Errorf("streaks: loading active habits: %w", err)
	}

	result := &StreakRunResult{}
	users := map[primitive.ObjectID]*models.User{}

	for i := range habits {
		habit := &habits[i]

		user, ok := users[habit.UserID]
		if !ok {
			user, err = e.store.FindUser(ctx, habit.UserID)
			if err != nil {
				log.Printf("streaks: habit %s: loading user %s: %v", habit.ID.Hex(), habit.UserID.Hex(), err)
				result.Errored++
				continue
			}
			users[habit.UserID] = user
		}

		result.HabitsProcessed++
		outcome, events, err := e.evaluateHabit(ctx, habit, user)
		if err != nil {
			log.Printf("streaks: habit %s: %v", habit.ID.Hex(), err)
			result.Errored++
			continue
		}

		switch outcome {
		case outcomeIncreased:
			result.Increased++
		case outcomeGraceUsed:
			result.GraceUsed++
		case outcomeReset:
			result.Reset++
		case outcomeSkipped, outcomeNoop:
			result.Skipped++
		}

		if len(events) > 0 {
			if err := e.outbox.Dispatch(ctx, events); err != nil {
				log.Printf("streaks: habit %s: dispatching events: %v", habit.ID.Hex(), err)
				result.Errored++
			}
		}
	}

	allUsers, err := e.store.FindUsers(ctx)
	if err != nil {
		// The habit pass already committed its transitions; report what ran.
		log.Printf("streaks: loading users for daily-goal pass: %v", err)
		result.UsersErrored++
		return result, nil
	}

	for i := range allUsers {
		user := &allUsers[i]
		result.UsersProcessed++

		increased, events, err := e.evaluateDailyGoal(ctx, user)
		if err != nil {
			log.Printf("streaks: user %s daily goal: %v", user.ID.Hex(), err)
			result.UsersErrored++
			continue
		}

		switch {
		case increased == nil:
			result.UsersSkipped++
		case *increased:
			result.UsersIncreased++
		default:
			result.UsersReset++
		}

		if len(events) > 0 {
			if err := e.outbox.Dispatch(ctx, events); err != nil {
				log.Printf("streaks: user %s: dispatching events: %v", user.ID.Hex(), err)
				result.UsersErrored++
			}
		}
	}

	log.Printf("streaks: habits processed=%d increased=%d grace=%d reset=%d skipped=%d errored=%d; users processed=%d increased=%d reset=%d errored=%d",
		result.HabitsProcessed, result.Increased, result.GraceUsed, result.Reset, result.Skipped, result.Errored,
		result.UsersProcessed, result.UsersIncreased, result.UsersReset, result.UsersErrored)
	return result, nil
}

// evaluateHabit runs one habit's state machine for yesterday in the owner's
// timezone and returns the transition outcome plus the events it emitted.
func (e *StreakEngine) evaluateHabit(ctx context.Context, habit *models.Habit, user *models.User) (habitOutcome, []Event, error) {
	if !habit.IsActive {
		return outcomeSkipped, nil, nil
	}
	if user.OnVacation && habit.SkipOnVacation {
		return outcomeSkipped, nil, nil
	}

	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return outcomeSkipped, nil, err
	}
	yesterday := e.clock.Now().In(loc).AddDate(0, 0, -1)

	due, err := e.freq.IsDue(ctx, habit, yesterday)
	if err != nil {
		if errors.Is(err, ErrNoScheduleDecision) {
			// Quota rule with no recorded decision: the day does not count
			// either way.
			return outcomeSkipped, nil, nil
		}
		return outcomeSkipped, nil, err
	}
	if !due {
		return outcomeSkipped, nil, nil
	}

	completed, err := habitCompletedOn(ctx, e.store, habit.ID, user.ID, yesterday)
	if err != nil {
		return outcomeSkipped, nil, err
	}

	// The day's status row is the authoritative ledger; make sure one exists
	// even for a miss so later reads need not re-derive the rule.
	dayKey := utils.DayKey(yesterday, loc)
	if _, err := e.store.FindDailyStatus(ctx, habit.ID, user.ID, dayKey); errors.Is(err, storage.ErrNotFound) {
		_, err = e.store.AddDailyStatus(ctx, &models.HabitDailyStatus{
			HabitID:     habit.ID,
			UserID:      user.ID,
			Date:        dayKey,
			IsScheduled: true,
			IsCompleted: completed,
		})
		if err != nil {
			return outcomeSkipped, nil, fmt.Errorf("creating daily status: %w", err)
		}
	} else if err != nil {
		return outcomeSkipped, nil, err
	}

	streak, err := e.loadOrCreateStreak(ctx, habit.ID, user.ID)
	if err != nil {
		return outcomeSkipped, nil, err
	}

	if completed {
		events := e.applyCompletion(habit, streak, dayKey)
		if err := e.store.UpdateStreak(ctx, streak); err != nil {
			return outcomeSkipped, nil, fmt.Errorf("persisting streak: %w", err)
		}
		return outcomeIncreased, events, nil
	}

	// Missed day. Nothing to do when there is no streak to protect.
	if streak.CurrentStreak == 0 {
		return outcomeNoop, nil, nil
	}

	if habit.GracePeriodEnabled && !streak.GracePeriodUsed {
		streak.GracePeriodUsed = true
		streak.MissedDaysCount++
		if err := e.store.UpdateStreak(ctx, streak); err != nil {
			return outcomeSkipped, nil, fmt.Errorf("persisting streak: %w", err)
		}
		events := []Event{NotificationEvent(user.ID, &habit.ID,
			"Grace period used",
			fmt.Sprintf("You missed %q yesterday. Your %d-day streak survives, but the next miss resets it.", habit.Name, streak.CurrentStreak))}
		return outcomeGraceUsed, events, nil
	}

	// No grace available: audit first, then zero the streak.
	previous := streak.CurrentStreak
	_, err = e.store.AddReset(ctx, &models.HabitReset{
		HabitID:         habit.ID,
		UserID:          user.ID,
		PreviousStreak:  previous,
		Reason:          models.ResetMissedCompletion,
		ResetDate:       dayKey,
		SystemInitiated: true,
	})
	if err != nil {
		return outcomeSkipped, nil, fmt.Errorf("writing reset audit: %w", err)
	}

	streak.CurrentStreak = 0
	streak.GracePeriodUsed = false
	streak.StartDate = nil
	if err := e.store.UpdateStreak(ctx, streak); err != nil {
		return outcomeSkipped, nil, fmt.Errorf("persisting streak: %w", err)
	}

	events := []Event{NotificationEvent(user.ID, &habit.ID,
		"Streak reset",
		fmt.Sprintf("Your %d-day streak on %q ended. Today is a good day to start a new one.", previous, habit.Name))}
	return outcomeReset, events, nil
}

// applyCompletion advances the streak for a completed day and returns any
// milestone or bonus events. longest_streak >= current_streak holds after
// every call.
func (e *StreakEngine) applyCompletion(habit *models.Habit, streak *models.HabitStreak, day time.Time) []Event {
	streak.CurrentStreak++
	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	if streak.CurrentStreak == 1 {
		start := day
		streak.StartDate = &start
	}
	completedAt := day
	streak.LastCompleted = &completedAt
	streak.StreakHistory = append(streak.StreakHistory, models.StreakEntry{
		Date:  day,
		Value: streak.CurrentStreak,
	})
	streak.GracePeriodUsed = false

	var events []Event
	if streak.CurrentStreak%7 == 0 {
		events = append(events, NotificationEvent(streak.UserID, &habit.ID,
			"Streak milestone",
			fmt.Sprintf("%d days of %q and counting. Keep it up!", streak.CurrentStreak, habit.Name)))
	}
	if habit.BonusPointsStreak > 0 {
		events = append(events, PointsEvent(streak.UserID, &habit.ID,
			habit.BonusPointsStreak*streak.CurrentStreak, "streak bonus"))
	}
	return events
}

func (e *StreakEngine) loadOrCreateStreak(ctx context.Context, habitID, userID primitive.ObjectID) (*models.HabitStreak, error) {
	streak, err := e.store.FindStreak(ctx, habitID, userID)
	if err == nil {
		return streak, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	streak = &models.HabitStreak{HabitID: habitID, UserID: userID}
	if _, err := e.store.AddStreak(ctx, streak); err != nil {
		return nil, fmt.Errorf("creating streak: %w", err)
	}
	return streak, nil
}

// evaluateDailyGoal runs one user's daily-goal state machine for yesterday.
// The returned pointer is nil when the user was skipped (vacation or no goal),
// true on an increment, false on a reset.
func (e *StreakEngine) evaluateDailyGoal(ctx context.Context, user *models.User) (*bool, []Event, error) {
	if user.OnVacation || user.DailyGoal <= 0 {
		return nil, nil, nil
	}

	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		return nil, nil, err
	}
	yesterday := e.clock.Now().In(loc).AddDate(0, 0, -1)
	start, end := utils.DayBounds(yesterday, loc)

	// Union of completions across logs and status rows, unique by habit.
	completed := map[primitive.ObjectID]struct{}{}
	logs, err := e.store.FindCompletedLogs(ctx, user.ID, start, end)
	if err != nil {
		return nil, nil, err
	}
	for _, l := range logs {
		completed[l.HabitID] = struct{}{}
	}
	statuses, err := e.store.FindCompletedStatuses(ctx, user.ID, utils.DayKey(yesterday, loc))
	if err != nil {
		return nil, nil, err
	}
	for _, s := range statuses {
		completed[s.HabitID] = struct{}{}
	}

	if len(completed) >= user.DailyGoal {
		current := user.CurrentDailyStreak + 1
		longest := user.LongestDailyStreak
		if current > longest {
			longest = current
		}
		if err := e.store.UpdateUserStreak(ctx, user.ID, current, longest); err != nil {
			return nil, nil, err
		}
		user.CurrentDailyStreak = current
		user.LongestDailyStreak = longest

		var events []Event
		if current%5 == 0 {
			points := dailyGoalBlockPoints * (current / 5)
			events = append(events,
				PointsEvent(user.ID, nil, points, "daily goal streak"),
				NotificationEvent(user.ID, nil,
					"Daily goal streak",
					fmt.Sprintf("%d days in a row of hitting your daily goal. +%d points!", current, points)))
		}
		increased := true
		return &increased, events, nil
	}

	// No grace at the user level: any shortfall resets.
	if user.CurrentDailyStreak != 0 {
		if err := e.store.UpdateUserStreak(ctx, user.ID, 0, user.LongestDailyStreak); err != nil {
			return nil, nil, err
		}
		user.CurrentDailyStreak = 0
	}
	increased := false
	return &increased, nil, nil
}
