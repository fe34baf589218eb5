package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsPinned(t *testing.T) {
	require.Equal(t, "America/Los_Angeles", Now().Location().String())
}

func TestTodayIsMidnight(t *testing.T) {
	today := Today()
	require.Equal(t, 0, today.Hour())
	require.Equal(t, 0, today.Minute())
	require.Equal(t, 0, today.Second())
	require.Equal(t, Location, today.Location())
}

func TestTodayMatchesNow(t *testing.T) {
	now := Now()
	today := Today()
	require.Equal(t, now.Year(), today.Year())
	require.Equal(t, now.YearDay(), today.YearDay())
	require.LessOrEqual(t, today.Unix(), now.Unix())
	require.Less(t, now.Sub(today), time.Hour*24)
}
