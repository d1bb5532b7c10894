package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jghoshh/cadence/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStorage is a complete in-memory implementation of StorageInterface.
// It backs the engine tests and local runs that have no MongoDB available.
// All methods are safe for concurrent use.
type MemoryStorage struct {
	mu sync.Mutex

	users              map[primitive.ObjectID]*models.User
	habits             map[primitive.ObjectID]*models.Habit
	logs               []*models.HabitLog
	statuses           []*models.HabitDailyStatus
	streaks            []*models.HabitStreak
	resets             []*models.HabitReset
	reminders          []*models.HabitReminder
	scheduledReminders []*models.ScheduledReminder
	notifications      []*models.Notification
	pointsLogs         []*models.PointsLog
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:  make(map[primitive.ObjectID]*models.User),
		habits: make(map[primitive.ObjectID]*models.Habit),
	}
}

// Disconnect is a no-op for the in-memory backend.
func (m *MemoryStorage) Disconnect() error { return nil }

// Seed helpers used by tests and local bootstrapping.

// PutUser stores a user, assigning an id when absent.
func (m *MemoryStorage) PutUser(user *models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	m.users[user.ID] = user
	return user
}

// PutHabit stores a habit, assigning an id when absent.
func (m *MemoryStorage) PutHabit(habit *models.Habit) *models.Habit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if habit.ID.IsZero() {
		habit.ID = primitive.NewObjectID()
	}
	m.habits[habit.ID] = habit
	return habit
}

// PutLog stores a habit log, assigning an id when absent.
func (m *MemoryStorage) PutLog(l *models.HabitLog) *models.HabitLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	m.logs = append(m.logs, l)
	return l
}

// PutReminder stores a reminder configuration, assigning an id when absent.
func (m *MemoryStorage) PutReminder(r *models.HabitReminder) *models.HabitReminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	m.reminders = append(m.reminders, r)
	return r
}

// Resets returns the recorded streak reset audit rows.
func (m *MemoryStorage) Resets() []*models.HabitReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.HabitReset{}, m.resets...)
}

// Notifications returns the recorded notification rows.
func (m *MemoryStorage) Notifications() []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Notification{}, m.notifications...)
}

// PointsLogs returns the recorded points award rows.
func (m *MemoryStorage) PointsLogs() []*models.PointsLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.PointsLog{}, m.pointsLogs...)
}

// ScheduledReminders returns all materialized reminder instances.
func (m *MemoryStorage) ScheduledReminders() []*models.ScheduledReminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ScheduledReminder, len(m.scheduledReminders))
	for i, r := range m.scheduledReminders {
		cp := *r
		out[i] = &cp
	}
	return out
}

func (m *MemoryStorage) FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *MemoryStorage) FindUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, nil
}

func (m *MemoryStorage) UpdateUserStreak(ctx context.Context, id primitive.ObjectID, current, longest int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return errors.New("no user found to update")
	}
	user.CurrentDailyStreak = current
	user.LongestDailyStreak = longest
	return nil
}

func (m *MemoryStorage) AddUserPoints(ctx context.Context, id primitive.ObjectID, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return errors.New("no user found to update")
	}
	user.Points += points
	return nil
}

func (m *MemoryStorage) FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	habit, ok := m.habits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *habit
	return &cp, nil
}

func (m *MemoryStorage) FindActiveHabits(ctx context.Context) ([]models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var habits []models.Habit
	for _, h := range m.habits {
		if h.IsActive {
			habits = append(habits, *h)
		}
	}
	return habits, nil
}

func (m *MemoryStorage) HasCompletedLog(ctx context.Context, habitID primitive.ObjectID, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.HabitID == habitID && l.Completed && !l.LoggedAt.Before(start) && l.LoggedAt.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) FindCompletedLogs(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.HabitLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var logs []models.HabitLog
	for _, l := range m.logs {
		if l.UserID == userID && l.Completed && !l.LoggedAt.Before(start) && l.LoggedAt.Before(end) {
			logs = append(logs, *l)
		}
	}
	return logs, nil
}

func (m *MemoryStorage) FindDailyStatus(ctx context.Context, habitID, userID primitive.ObjectID, day time.Time) (*models.HabitDailyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		if s.HabitID == habitID && s.UserID == userID && s.Date.Equal(day) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStorage) AddDailyStatus(ctx context.Context, status *models.HabitDailyStatus) (*models.HabitDailyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		if s.HabitID == status.HabitID && s.UserID == status.UserID && s.Date.Equal(status.Date) {
			return nil, fmt.Errorf("daily status already exists for habit %s on %s", status.HabitID.Hex(), status.Date)
		}
	}
	if status.ID.IsZero() {
		status.ID = primitive.NewObjectID()
	}
	cp := *status
	m.statuses = append(m.statuses, &cp)
	return status, nil
}

// SetStatusCompleted marks the status row for (habit, user, day) completed,
// creating it when absent. Test seeding helper.
func (m *MemoryStorage) SetStatusCompleted(habitID, userID primitive.ObjectID, day time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		if s.HabitID == habitID && s.UserID == userID && s.Date.Equal(day) {
			s.IsCompleted = true
			return
		}
	}
	m.statuses = append(m.statuses, &models.HabitDailyStatus{
		ID:          primitive.NewObjectID(),
		HabitID:     habitID,
		UserID:      userID,
		Date:        day,
		IsScheduled: true,
		IsCompleted: true,
	})
}

// SetStatusScheduled records the scheduling decision for (habit, user, day),
// the collaborator-side write the X_TIMES rules depend on. Test seeding helper.
func (m *MemoryStorage) SetStatusScheduled(habitID, userID primitive.ObjectID, day time.Time, scheduled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.statuses {
		if s.HabitID == habitID && s.UserID == userID && s.Date.Equal(day) {
			s.IsScheduled = scheduled
			return
		}
	}
	m.statuses = append(m.statuses, &models.HabitDailyStatus{
		ID:          primitive.NewObjectID(),
		HabitID:     habitID,
		UserID:      userID,
		Date:        day,
		IsScheduled: scheduled,
	})
}

func (m *MemoryStorage) FindCompletedStatuses(ctx context.Context, userID primitive.ObjectID, day time.Time) ([]models.HabitDailyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var statuses []models.HabitDailyStatus
	for _, s := range m.statuses {
		if s.UserID == userID && s.Date.Equal(day) && s.IsCompleted {
			statuses = append(statuses, *s)
		}
	}
	return statuses, nil
}

func (m *MemoryStorage) FindStreak(ctx context.Context, habitID, userID primitive.ObjectID) (*models.HabitStreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streaks {
		if s.HabitID == habitID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStorage) AddStreak(ctx context.Context, streak *models.HabitStreak) (*models.HabitStreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streaks {
		if s.HabitID == streak.HabitID && s.UserID == streak.UserID {
			return nil, errors.New("streak already exists")
		}
	}
	if streak.ID.IsZero() {
		streak.ID = primitive.NewObjectID()
	}
	cp := *streak
	m.streaks = append(m.streaks, &cp)
	return streak, nil
}

func (m *MemoryStorage) UpdateStreak(ctx context.Context, streak *models.HabitStreak) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.streaks {
		if s.ID == streak.ID {
			cp := *streak
			m.streaks[i] = &cp
			return nil
		}
	}
	return errors.New("no streak found to update")
}

func (m *MemoryStorage) AddReset(ctx context.Context, reset *models.HabitReset) (*models.HabitReset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reset.ID.IsZero() {
		reset.ID = primitive.NewObjectID()
	}
	cp := *reset
	m.resets = append(m.resets, &cp)
	return reset, nil
}

func (m *MemoryStorage) FindEnabledReminders(ctx context.Context, habitID primitive.ObjectID) ([]models.HabitReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var reminders []models.HabitReminder
	for _, r := range m.reminders {
		if r.HabitID == habitID && r.Enabled {
			reminders = append(reminders, *r)
		}
	}
	return reminders, nil
}

func oidEqual(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *MemoryStorage) AddScheduledReminderIfAbsent(ctx context.Context, reminder *models.ScheduledReminder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.scheduledReminders {
		if oidEqual(r.HabitID, reminder.HabitID) &&
			r.UserID == reminder.UserID &&
			r.ScheduledTime.Equal(reminder.ScheduledTime) &&
			oidEqual(r.ReminderConfigID, reminder.ReminderConfigID) &&
			r.Type == reminder.Type {
			return false, nil
		}
	}
	if reminder.ID.IsZero() {
		reminder.ID = primitive.NewObjectID()
	}
	cp := *reminder
	m.scheduledReminders = append(m.scheduledReminders, &cp)
	return true, nil
}

func (m *MemoryStorage) FindDueScheduledReminders(ctx context.Context, now time.Time) ([]models.ScheduledReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []models.ScheduledReminder
	for _, r := range m.scheduledReminders {
		if !r.IsSent && !r.ScheduledTime.After(now) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (m *MemoryStorage) CloseScheduledReminder(ctx context.Context, id primitive.ObjectID, status models.SendStatus, errText string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.scheduledReminders {
		if r.ID == id {
			if r.IsSent {
				return false, nil
			}
			r.IsSent = true
			r.SendStatus = status
			r.Error = errText
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStorage) DeleteUnsentReminders(ctx context.Context, configID primitive.ObjectID) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.ScheduledReminder
	var deleted int64
	for _, r := range m.scheduledReminders {
		if !r.IsSent && r.ReminderConfigID != nil && *r.ReminderConfigID == configID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.scheduledReminders = kept
	return &DeleteResult{DeletedCount: deleted}, nil
}

func (m *MemoryStorage) AddNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return n, nil
}

func (m *MemoryStorage) AddPointsLog(ctx context.Context, p *models.PointsLog) (*models.PointsLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	cp := *p
	m.pointsLogs = append(m.pointsLogs, &cp)
	return p, nil
}
