package core

import "time"

// Age returns how long ago t happened relative to now. Events stamped in the
// future have a negative age.
func Age(now, t time.Time) time.Duration {
	return now.Sub(t)
}

// Expired reports whether t has fallen out of a retention window ending at now.
func Expired(now, t time.Time, window time.Duration) bool {
	return Age(now, t) >= window
}

// WindowStart returns the oldest instant still inside the window ending at now.
func WindowStart(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
