// Package markethours holds the UTC daily session arithmetic used to admit
// only fully closed bars.
package markethours

import (
	"fmt"
	"time"
)

// Session is the length of one daily bar.
const Session = 24 * time.Hour

// SessionStart returns 00:00 UTC of the day containing t.
func SessionStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// LastClosedSessionEnd is the latest close time a closed daily bar can
// carry at t: one millisecond before today's 00:00 UTC.
func LastClosedSessionEnd(t time.Time) time.Time {
	return SessionStart(t).Add(-time.Millisecond)
}

// NextSessionClose returns the next 00:00 UTC boundary strictly after t.
func NextSessionClose(t time.Time) time.Time {
	return SessionStart(t).Add(Session)
}

// TimeUntilClose returns the duration until the running session closes.
func TimeUntilClose(t time.Time) time.Duration {
	return NextSessionClose(t).Sub(t)
}

// IsClosed reports whether a bar ending at closeTime had closed by now.
func IsClosed(closeTime, now time.Time) bool {
	return !closeTime.After(LastClosedSessionEnd(now))
}

// ClosedOnly returns the prefix of items whose close time is closed at now.
// Items must be ordered by close time.
func ClosedOnly[T any](items []T, closeTime func(T) time.Time, now time.Time) []T {
	n := len(items)
	for n > 0 && !IsClosed(closeTime(items[n-1]), now) {
		n--
	}
	return items[:n]
}

// StatusString returns a human-readable session status.
func StatusString(t time.Time) string {
	return fmt.Sprintf("Session %s open, closes in %s",
		SessionStart(t).Format("2006-01-02"), fmtDur(TimeUntilClose(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
