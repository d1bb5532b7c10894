package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FrequencyType enumerates the schedule rules a habit can follow.
type FrequencyType string

const (
	FrequencyDaily        FrequencyType = "DAILY"
	FrequencyWeekdays     FrequencyType = "WEEKDAYS"
	FrequencyWeekends     FrequencyType = "WEEKENDS"
	FrequencySpecificDays FrequencyType = "SPECIFIC_DAYS"
	FrequencyInterval     FrequencyType = "INTERVAL"
	FrequencyXTimesWeek   FrequencyType = "X_TIMES_WEEK"
	FrequencyXTimesMonth  FrequencyType = "X_TIMES_MONTH"
)

// ReminderType enumerates the kinds of scheduled reminder instances.
type ReminderType string

const (
	ReminderPrimary            ReminderType = "PRIMARY"
	ReminderPreNotification    ReminderType = "PRE_NOTIFICATION"
	ReminderStreakWarning      ReminderType = "STREAK_WARNING"
	ReminderStreakPreservation ReminderType = "STREAK_PRESERVATION"
)

// SendStatus is the terminal outcome recorded on a scheduled reminder.
type SendStatus string

const (
	SendStatusSent             SendStatus = "SENT"
	SendStatusSkippedCompleted SendStatus = "SKIPPED_COMPLETED"
	SendStatusSkippedQuiet     SendStatus = "SKIPPED_QUIET_HOURS"
	SendStatusDismissed        SendStatus = "DISMISSED_BY_USER"
	SendStatusFailed           SendStatus = "FAILED"
)

// ResetReason records why a streak was zeroed.
type ResetReason string

const (
	ResetMissedCompletion ResetReason = "MISSED_COMPLETION"
	ResetUserRequested    ResetReason = "USER_REQUESTED"
)

type User struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username             string             `bson:"username" json:"username"`
	Email                string             `bson:"email" json:"email"`
	Timezone             string             `bson:"timezone" json:"timezone"`
	PrefersNotifications bool               `bson:"prefers_notifications" json:"prefers_notifications"`
	QuietHoursEnabled    bool               `bson:"quiet_hours_enabled" json:"quiet_hours_enabled"`
	QuietHoursStart      string             `bson:"quiet_hours_start,omitempty" json:"quiet_hours_start"` // "HH:MM"
	QuietHoursEnd        string             `bson:"quiet_hours_end,omitempty" json:"quiet_hours_end"`     // "HH:MM"
	OnVacation           bool               `bson:"on_vacation" json:"on_vacation"`
	DailyGoal            int                `bson:"daily_goal" json:"daily_goal"`
	CurrentDailyStreak   int                `bson:"current_daily_streak" json:"current_daily_streak"`
	LongestDailyStreak   int                `bson:"longest_daily_streak" json:"longest_daily_streak"`
	Points               int                `bson:"points" json:"points"`
}

type Habit struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID             primitive.ObjectID `bson:"user_id" json:"user_id"`
	Name               string             `bson:"name" json:"name"`
	Description        string             `bson:"description,omitempty" json:"description"`
	FrequencyType      FrequencyType      `bson:"frequency_type" json:"frequency_type"`
	SpecificDays       []int              `bson:"specific_days,omitempty" json:"specific_days"` // 0=Sunday .. 6=Saturday
	FrequencyInterval  int                `bson:"frequency_interval,omitempty" json:"frequency_interval"`
	FrequencyValue     int                `bson:"frequency_value,omitempty" json:"frequency_value"`
	StartDate          time.Time          `bson:"start_date" json:"start_date"`
	EndDate            *time.Time         `bson:"end_date,omitempty" json:"end_date"`
	IsActive           bool               `bson:"is_active" json:"is_active"`
	SkipOnVacation     bool               `bson:"skip_on_vacation" json:"skip_on_vacation"`
	GracePeriodEnabled bool               `bson:"grace_period_enabled" json:"grace_period_enabled"`
	BonusPointsStreak  int                `bson:"bonus_points_streak" json:"bonus_points_streak"`
}

// HabitLog is a user-authored completion record for a habit at a point in time.
type HabitLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID   primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Completed bool               `bson:"completed" json:"completed"`
	LoggedAt  time.Time          `bson:"logged_at" json:"logged_at"`
	Note      string             `bson:"note,omitempty" json:"note"`
}

// HabitDailyStatus is the authoritative per-day ledger for one habit and user.
// It is created lazily by the engine when absent and carries the scheduling
// decision for the irregular X_TIMES_WEEK / X_TIMES_MONTH rules.
type HabitDailyStatus struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID     primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Date        time.Time          `bson:"date" json:"date"` // truncated to midnight UTC
	IsScheduled bool               `bson:"is_scheduled" json:"is_scheduled"`
	IsCompleted bool               `bson:"is_completed" json:"is_completed"`
	IsSkipped   bool               `bson:"is_skipped" json:"is_skipped"`
}

// StreakEntry is one append-only history record of a streak value on a date.
type StreakEntry struct {
	Date  time.Time `bson:"date" json:"date"`
	Value int       `bson:"value" json:"value"`
}

type HabitStreak struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID         primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	CurrentStreak   int                `bson:"current_streak" json:"current_streak"`
	LongestStreak   int                `bson:"longest_streak" json:"longest_streak"`
	LastCompleted   *time.Time         `bson:"last_completed,omitempty" json:"last_completed"`
	GracePeriodUsed bool               `bson:"grace_period_used" json:"grace_period_used"`
	MissedDaysCount int                `bson:"missed_days_count" json:"missed_days_count"`
	StartDate       *time.Time         `bson:"start_date,omitempty" json:"start_date"`
	StreakHistory   []StreakEntry      `bson:"streak_history,omitempty" json:"streak_history"`
}

// HabitReset is an immutable audit row written whenever a streak is zeroed.
type HabitReset struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID         primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	PreviousStreak  int                `bson:"previous_streak" json:"previous_streak"`
	Reason          ResetReason        `bson:"reason" json:"reason"`
	ResetDate       time.Time          `bson:"reset_date" json:"reset_date"`
	SystemInitiated bool               `bson:"system_initiated" json:"system_initiated"`
}

// HabitReminder is a user-authored reminder configuration, long-lived and
// distinct from the ScheduledReminder instances materialized from it.
type HabitReminder struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID                primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	UserID                 primitive.ObjectID `bson:"user_id" json:"user_id"`
	TimeOfDay              string             `bson:"time_of_day" json:"time_of_day"` // "HH:MM" in the user's timezone
	Repeat                 string             `bson:"repeat,omitempty" json:"repeat"`
	Enabled                bool               `bson:"enabled" json:"enabled"`
	PreNotificationMinutes int                `bson:"pre_notification_minutes" json:"pre_notification_minutes"`
	FollowUpEnabled        bool               `bson:"follow_up_enabled" json:"follow_up_enabled"`
	FollowUpMinutes        int                `bson:"follow_up_minutes" json:"follow_up_minutes"`
	Smart                  bool               `bson:"smart" json:"smart"`
}

// ScheduledReminder is a materialized instance of a reminder configuration
// for one specific timestamp. Once IsSent flips true the row is terminal and
// is never mutated again except by explicit user dismissal.
type ScheduledReminder struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	HabitID          *primitive.ObjectID `bson:"habit_id,omitempty" json:"habit_id"` // nil for system-level reminders
	UserID           primitive.ObjectID  `bson:"user_id" json:"user_id"`
	ReminderConfigID *primitive.ObjectID `bson:"reminder_config_id,omitempty" json:"reminder_config_id"`
	ScheduledTime    time.Time           `bson:"scheduled_time" json:"scheduled_time"`
	Type             ReminderType        `bson:"reminder_type" json:"reminder_type"`
	Message          string              `bson:"message" json:"message"`
	IsSent           bool                `bson:"is_sent" json:"is_sent"`
	SendStatus       SendStatus          `bson:"send_status,omitempty" json:"send_status"`
	Error            string              `bson:"error,omitempty" json:"error"`
	Metadata         map[string]string   `bson:"metadata,omitempty" json:"metadata"`
}

// IsTest reports whether the instance is a forced test reminder, which
// bypasses quiet hours and earns no points.
func (s *ScheduledReminder) IsTest() bool {
	return s.Metadata["test"] == "true"
}

// Notification is an in-app notification row consumed by display surfaces
// outside this service.
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	HabitID   *primitive.ObjectID `bson:"habit_id,omitempty" json:"habit_id"`
	Title     string              `bson:"title" json:"title"`
	Body      string              `bson:"body" json:"body"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
	Read      bool                `bson:"read" json:"read"`
}

// PointsLog records a gamification points award; totals are computed by an
// out-of-scope read model.
type PointsLog struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	HabitID   *primitive.ObjectID `bson:"habit_id,omitempty" json:"habit_id"`
	Points    int                 `bson:"points" json:"points"`
	Reason    string              `bson:"reason" json:"reason"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
}
