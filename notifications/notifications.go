// Package notifications turns engine events into durable side effects:
// in-app notification rows, push deliveries and points awards.
package notifications

import (
	"context"
	"log"

	"github.com/coder/quartz"
	"github.com/jghoshh/cadence/engine"
	"github.com/jghoshh/cadence/models"
	storage "github.com/jghoshh/cadence/storage/persistent"
)

// Outbox is the single outbound adapter for engine events. State transitions
// stay free of delivery mechanics; everything user-visible funnels through
// Dispatch.
type Outbox struct {
	store  storage.StorageInterface
	sender engine.Sender
	clock  quartz.Clock
}

// NewOutbox creates an Outbox writing through the given storage and sender.
func NewOutbox(store storage.StorageInterface, sender engine.Sender, clock quartz.Clock) *Outbox {
	return &Outbox{store: store, sender: sender, clock: clock}
}

// Dispatch applies a transition's event list. Each event is handled
// independently: the in-app row is the durable record, and a failed push on
// top of it is logged rather than propagated. Only failures to persist are
// returned, and the remaining events are still attempted.
func (o *Outbox) Dispatch(ctx context.Context, events []engine.Event) error {
	var firstErr error
	for _, event := range events {
		var err error
		switch event.Type {
		case engine.EventNotification:
			err = o.dispatchNotification(ctx, event)
		case engine.EventPoints:
			err = o.dispatchPoints(ctx, event)
		default:
			log.Printf("outbox: dropping event with unknown type %q", event.Type)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *Outbox) dispatchNotification(ctx context.Context, event engine.Event) error {
	_, err := o.store.AddNotification(ctx, &models.Notification{
		UserID:    event.UserID,
		HabitID:   event.HabitID,
		Title:     event.Title,
		Body:      event.Body,
		CreatedAt: o.clock.Now(),
	})
	if err != nil {
		return err
	}

	user, err := o.store.FindUser(ctx, event.UserID)
	if err != nil {
		return err
	}
	if !user.PrefersNotifications {
		return nil
	}
	if err := o.sender.Send(ctx, event.UserID, event.Title, event.Body); err != nil {
		// The in-app row is already written; a lost push is not worth
		// failing the transition over.
		log.Printf("outbox: push to user %s failed: %v", event.UserID.Hex(), err)
	}
	return nil
}

func (o *Outbox) dispatchPoints(ctx context.Context, event engine.Event) error {
	_, err := o.store.AddPointsLog(ctx, &models.PointsLog{
		UserID:    event.UserID,
		HabitID:   event.HabitID,
		Points:    event.Points,
		Reason:    event.Reason,
		CreatedAt: o.clock.Now(),
	})
	if err != nil {
		return err
	}
	return o.store.AddUserPoints(ctx, event.UserID, event.Points)
}
