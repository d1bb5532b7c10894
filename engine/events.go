package engine

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType distinguishes the side effects an engine transition produces.
type EventType string

const (
	EventNotification EventType = "NOTIFICATION"
	EventPoints       EventType = "POINTS"
)

// Event is one side effect emitted by a state transition. Engines return
// events instead of sending anything themselves; a single outbound adapter
// turns them into notification rows, pushes and points awards. Keeping
// transitions pure of delivery mechanics is what makes them testable.
type Event struct {
	Type    EventType
	UserID  primitive.ObjectID
	HabitID *primitive.ObjectID
	Title   string
	Body    string
	Points  int
	Reason  string
}

// NotificationEvent builds a notification event for a user, optionally tied
// to a habit.
func NotificationEvent(userID primitive.ObjectID, habitID *primitive.ObjectID, title, body string) Event {
	return Event{
		Type:    EventNotification,
		UserID:  userID,
		HabitID: habitID,
		Title:   title,
		Body:    body,
	}
}

// PointsEvent builds a points award event for a user, optionally tied to a habit.
func PointsEvent(userID primitive.ObjectID, habitID *primitive.ObjectID, points int, reason string) Event {
	return Event{
		Type:    EventPoints,
		UserID:  userID,
		HabitID: habitID,
		Points:  points,
		Reason:  reason,
	}
}
