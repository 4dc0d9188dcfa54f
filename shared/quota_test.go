package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestParseResetBoundary(t *testing.T) {
	b, err := ParseResetBoundary("00:00", "")
	require.NoError(t, err)
	require.Equal(t, 0, b.Hour)
	require.Equal(t, 0, b.Minute)
	require.Equal(t, time.UTC, b.Location)

	b, err = ParseResetBoundary("06:30", "America/Chicago")
	require.NoError(t, err)
	require.Equal(t, 6, b.Hour)
	require.Equal(t, 30, b.Minute)
	require.Equal(t, "06:30 America/Chicago", b.String())

	for _, clock := range []string{"", "6", "25:00", "12:60", "noon"} {
		_, err := ParseResetBoundary(clock, "UTC")
		require.Error(t, err, clock)
	}
	_, err = ParseResetBoundary("00:00", "Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestResetBoundaryMidnightUTC(t *testing.T) {
	b := MidnightUTC()
	testcases := []struct {
		now, mostRecent, next time.Time
	}{
		{
			now:        time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC),
			mostRecent: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			next:       time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			// Exactly on the boundary
			now:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			mostRecent: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			next:       time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			now:        time.Date(2024, 12, 31, 23, 59, 59, 999, time.UTC),
			mostRecent: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			next:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			// The zone of the input doesn't matter
			now:        time.Date(2025, 3, 10, 20, 0, 0, 0, time.FixedZone("UTC-5", -5*3600)),
			mostRecent: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
			next:       time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range testcases {
		require.True(t, tc.mostRecent.Equal(b.MostRecent(tc.now)), "MostRecent(%s)=%s", tc.now, b.MostRecent(tc.now))
		require.True(t, tc.next.Equal(b.NextAfter(tc.now)), "NextAfter(%s)=%s", tc.now, b.NextAfter(tc.now))
	}
}

func TestResetBoundaryInLocation(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	b := ResetBoundary{Hour: 6, Location: ny}

	now := time.Date(2025, 3, 10, 5, 0, 0, 0, ny)
	require.True(t, time.Date(2025, 3, 9, 6, 0, 0, 0, ny).Equal(b.MostRecent(now)))
	require.True(t, time.Date(2025, 3, 10, 6, 0, 0, 0, ny).Equal(b.NextAfter(now)))

	// Across the spring forward the boundary stays at 06:00 local time
	require.Equal(t, 23*time.Hour, b.NextAfter(time.Date(2025, 3, 8, 12, 0, 0, 0, ny)).Sub(b.MostRecent(time.Date(2025, 3, 8, 12, 0, 0, 0, ny))))
}

func TestResetBoundaryIsDue(t *testing.T) {
	b := MidnightUTC()
	last := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	require.False(t, b.IsDue(last, time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC)))
	require.True(t, b.IsDue(last, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)))
	require.True(t, b.IsDue(last, time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)))
	// A reset stamped exactly on the boundary is not due again
	require.False(t, b.IsDue(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)))
}

func TestDefaultQuotaPolicy(t *testing.T) {
	p := DefaultQuotaPolicy()
	require.Equal(t, 50, p.DailyLimit)
	require.Equal(t, "00:00 UTC", p.Boundary.String())
}
