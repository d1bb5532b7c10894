package engine

import (
	"log"
	"time"

	"github.com/jghoshh/cadence/lib/utils"
	"github.com/jghoshh/cadence/models"
)

// IsQuiet reports whether the instant falls inside the user's quiet-hours
// window, evaluated in the user's timezone on a minutes-since-midnight basis.
// Windows may wrap midnight: with start 22:00 and end 08:00, 23:30 is quiet
// and 09:00 is not. Absent or disabled preferences are never quiet, and a
// malformed window or timezone fails open so a bad preference can only cause
// an extra notification, never a silently suppressed one.
func IsQuiet(user *models.User, instant time.Time) bool {
	if user == nil || !user.QuietHoursEnabled {
		return false
	}

	start, err := utils.ParseClock(user.QuietHoursStart)
	if err != nil {
		log.Printf("quiet hours: ignoring window for user %s: %v", user.ID.Hex(), err)
		return false
	}
	end, err := utils.ParseClock(user.QuietHoursEnd)
	if err != nil {
		log.Printf("quiet hours: ignoring window for user %s: %v", user.ID.Hex(), err)
		return false
	}

	loc, err := utils.LoadLocation(user.Timezone)
	if err != nil {
		log.Printf("quiet hours: ignoring window for user %s: %v", user.ID.Hex(), err)
		return false
	}

	current := utils.MinutesSinceMidnight(instant, loc)
	if start > end {
		// Window wraps midnight, e.g. 22:00-08:00.
		return current >= start || current <= end
	}
	return current >= start && current <= end
}
