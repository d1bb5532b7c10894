// Package engine implements the habit scheduling core: frequency evaluation,
// streak state transitions, reminder materialization and reminder dispatch.
// Every component receives its storage, clock and outbound dependencies by
// injection and never touches the wall clock or delivery directly.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/jghoshh/cadence/lib/utils"
	storage "github.com/jghoshh/cadence/storage/persistent"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sender delivers one push notification to a user. Implementations live in
// the notifications package; failures propagate as errors and are handled
// per item by the caller.
type Sender interface {
	Send(ctx context.Context, userID primitive.ObjectID, title, body string) error
}

// Outbox consumes the event lists emitted by engine transitions and turns
// them into notification rows, pushes and points awards.
type Outbox interface {
	Dispatch(ctx context.Context, events []Event) error
}

// habitCompletedOn resolves whether a habit was completed on day (a local
// time in the user's location). A completion exists if either a completed
// habit log falls inside the day's bounds or the day's status row says so.
func habitCompletedOn(ctx context.Context, store storage.StorageInterface, habitID, userID primitive.ObjectID, day time.Time) (bool, error) {
	loc := day.Location()
	start, end := utils.DayBounds(day, loc)

	logged, err := store.HasCompletedLog(ctx, habitID, start, end)
	if err != nil {
		return false, err
	}
	if logged {
		return true, nil
	}

	status, err := store.FindDailyStatus(ctx, habitID, userID, utils.DayKey(day, loc))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return status.IsCompleted, nil
}
