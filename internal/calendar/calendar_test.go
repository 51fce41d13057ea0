package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shanghai(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func TestIsTradingDayUsesLocalDate(t *testing.T) {
	cal := New(shanghai(t))

	// Friday 17:00 UTC is already Saturday 01:00 in Shanghai.
	assert.False(t, cal.IsTradingDay(time.Date(2025, 8, 15, 17, 0, 0, 0, time.UTC)))
	// Sunday 20:00 UTC is Monday 04:00 in Shanghai.
	assert.True(t, cal.IsTradingDay(time.Date(2025, 8, 17, 20, 0, 0, 0, time.UTC)))
}

func TestSessionAt(t *testing.T) {
	loc := shanghai(t)
	cal := New(loc)
	at := func(h, m int) time.Time { return time.Date(2025, 8, 15, h, m, 0, 0, loc) }

	cases := []struct {
		t       time.Time
		session Session
		open    bool
	}{
		{at(9, 20), SessionPreMarket, true},
		{at(9, 27), SessionPostMarket, false},
		{at(10, 0), SessionMorning, true},
		{at(12, 0), SessionPostMarket, false},
		{at(14, 59), SessionAfternoon, true},
		{at(15, 0), SessionPostMarket, false},
	}
	for _, tc := range cases {
		s, open := cal.SessionAt(tc.t)
		assert.Equal(t, tc.session, s, tc.t.String())
		assert.Equal(t, tc.open, open, tc.t.String())
	}
}

func TestWithClock(t *testing.T) {
	loc := shanghai(t)
	fixed := time.Date(2025, 8, 15, 1, 30, 0, 0, time.UTC)
	cal := New(loc).WithClock(func() time.Time { return fixed })

	now := cal.Now()
	assert.Equal(t, loc, now.Location())
	assert.Equal(t, 9, now.Hour())
	assert.True(t, cal.IsTradingDay(now))
}
