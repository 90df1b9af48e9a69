package transport

import (
	"sync"
	"time"
)

// DefaultAlertWindow is how long an identical alert stays suppressed.
const DefaultAlertWindow = time.Minute

// Notifier shows an alert to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Notify calls f(msg).
func (f NotifierFunc) Notify(msg string) { f(msg) }

// AlertState is the last alert that was shown.
type AlertState struct {
	Message string
	At      time.Time
}

// ShouldAlert reports whether msg at now may be shown given the previous
// alert: a different message, or the same one once window has elapsed.
func (s AlertState) ShouldAlert(msg string, now time.Time, window time.Duration) bool {
	return s.Message != msg || now.Sub(s.At) >= window
}

// Alerter forwards terminal failures to a Notifier, suppressing repeats of
// the same message within a window.
type Alerter struct {
	mu       sync.Mutex
	state    AlertState
	window   time.Duration
	notifier Notifier
	now      func() time.Time
}

// NewAlerter creates an Alerter. A non-positive window uses DefaultAlertWindow.
func NewAlerter(n Notifier, window time.Duration) *Alerter {
	if window <= 0 {
		window = DefaultAlertWindow
	}
	return &Alerter{window: window, notifier: n, now: time.Now}
}

// ShouldAlert applies the suppression rule without recording anything.
func (a *Alerter) ShouldAlert(msg string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.ShouldAlert(msg, now, a.window)
}

// Alert shows msg unless it repeats the last alert within the window.
// It reports whether the notifier was called.
func (a *Alerter) Alert(msg string) bool {
	a.mu.Lock()
	now := a.now()
	if !a.state.ShouldAlert(msg, now, a.window) {
		a.mu.Unlock()
		return false
	}
	a.state = AlertState{Message: msg, At: now}
	a.mu.Unlock()

	if a.notifier != nil {
		a.notifier.Notify(msg)
	}
	return true
}
