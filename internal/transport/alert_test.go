package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAlerter_SuppressesRepeatWithinWindow(t *testing.T) {
	alerts := &collector{}
	a := NewAlerter(alerts, time.Minute)
	now := time.Unix(1700000000, 0)
	a.now = func() time.Time { return now }

	require.True(t, a.Alert("Timed out"))
	now = now.Add(30 * time.Second)
	require.False(t, a.Alert("Timed out"))
	require.True(t, a.Alert("HTTP 500"))
	require.True(t, a.Alert("Timed out"))
	now = now.Add(59 * time.Second)
	require.False(t, a.Alert("Timed out"))
	now = now.Add(time.Second)
	require.True(t, a.Alert("Timed out"))

	require.Equal(t, []string{"Timed out", "HTTP 500", "Timed out", "Timed out"}, alerts.all())
}

func TestAlerter_ShouldAlertDoesNotRecord(t *testing.T) {
	a := NewAlerter(nil, time.Minute)
	now := time.Now()
	require.True(t, a.ShouldAlert("x", now))
	require.True(t, a.ShouldAlert("x", now))
	a.now = func() time.Time { return now }
	require.True(t, a.Alert("x"))
	require.False(t, a.ShouldAlert("x", now.Add(time.Second)))
}

func TestAlertState_ShouldAlert(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := time.Duration(rapid.Int64Range(1, 1e12).Draw(t, "window"))
		prev := AlertState{
			Message: rapid.StringMatching(`[a-c]{1,2}`).Draw(t, "prev"),
			At:      time.Unix(0, rapid.Int64Range(0, 1e15).Draw(t, "at")),
		}
		msg := rapid.StringMatching(`[a-c]{1,2}`).Draw(t, "msg")
		elapsed := time.Duration(rapid.Int64Range(0, 2e12).Draw(t, "elapsed"))

		got := prev.ShouldAlert(msg, prev.At.Add(elapsed), window)
		want := msg != prev.Message || elapsed >= window
		require.Equal(t, want, got)
	})
}
