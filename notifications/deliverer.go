package notifications

import (
	"context"
	"fmt"

	"github.com/jghoshh/cadence/models"
	"github.com/jghoshh/cadence/notifications/email"
)

// EmailDeliverer delivers push messages over the SMTP fallback channel. A
// dedicated push gateway can replace it behind the same queue.Deliverer
// interface without touching the pipeline.
type EmailDeliverer struct{}

// Deliver sends the message to the user's email address.
func (EmailDeliverer) Deliver(ctx context.Context, user *models.User, title, body string) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", user.ID.Hex())
	}
	return email.SendEmail(user.Email, title, body)
}
