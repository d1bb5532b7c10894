package engine

import (
	"testing"
	"time"

	"github.com/jghoshh/cadence/models"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func quietUser(start, end string) *models.User {
	return &models.User{
		ID:                primitive.NewObjectID(),
		Timezone:          "UTC",
		QuietHoursEnabled: true,
		QuietHoursStart:   start,
		QuietHoursEnd:     end,
	}
}

func atClockUTC(hh, mm int) time.Time {
	return time.Date(2023, 10, 2, hh, mm, 0, 0, time.UTC)
}

func TestIsQuietWrapsMidnight(t *testing.T) {
	user := quietUser("22:00", "08:00")

	assert.True(t, IsQuiet(user, atClockUTC(23, 30)))
	assert.True(t, IsQuiet(user, atClockUTC(3, 0)))
	assert.False(t, IsQuiet(user, atClockUTC(9, 0)))
	assert.False(t, IsQuiet(user, atClockUTC(21, 59)))
}

func TestIsQuietSameDayWindow(t *testing.T) {
	user := quietUser("01:00", "05:00")

	assert.True(t, IsQuiet(user, atClockUTC(3, 0)))
	assert.False(t, IsQuiet(user, atClockUTC(0, 30)))
	assert.False(t, IsQuiet(user, atClockUTC(6, 0)))
}

func TestIsQuietDisabledOrAbsent(t *testing.T) {
	user := quietUser("22:00", "08:00")
	user.QuietHoursEnabled = false
	assert.False(t, IsQuiet(user, atClockUTC(23, 30)))

	assert.False(t, IsQuiet(nil, atClockUTC(23, 30)))
}

func TestIsQuietRespectsTimezone(t *testing.T) {
	user := quietUser("22:00", "08:00")
	user.Timezone = "America/New_York"

	// 03:00 UTC is 23:00 in New York (EDT): inside the window.
	assert.True(t, IsQuiet(user, atClockUTC(3, 0)))
	// 16:00 UTC is noon in New York: outside.
	assert.False(t, IsQuiet(user, atClockUTC(16, 0)))
}

func TestIsQuietFailsOpenOnBadWindow(t *testing.T) {
	user := quietUser("25:99", "08:00")
	assert.False(t, IsQuiet(user, atClockUTC(23, 30)))

	user = quietUser("22:00", "08:00")
	user.Timezone = "Not/AZone"
	assert.False(t, IsQuiet(user, atClockUTC(23, 30)))
}
