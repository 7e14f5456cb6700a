// Package session decides whether the analytics system would still attach
// new hits to a user's existing visit, or whether a fresh pageview must be
// sent first. The decision is pure; no I/O happens here.
package session

import "time"

// Default thresholds mirror the collector's own visit-stitching window.
// They must match the counter settings exactly or conversions attribute to
// the wrong visit.
const (
	DefaultVisitCompletion = 12 * time.Hour
	DefaultSessionTimeout  = 30 * time.Minute
)

// Options overrides the stitching window for counters configured with
// non-default timeouts.
type Options struct {
	VisitCompletion time.Duration
	SessionTimeout  time.Duration
}

// IsVisitOpen reports whether events can still be appended to the user's
// current visit. The visit is open while the time since the most recent
// visit activity is within the completion window plus the session timeout.
// A record that never registered a visit (zero timestamps) is always
// closed: first contact requires an initial pageview.
func IsVisitOpen(firstVisit, lastVisit time.Time, now time.Time, opts Options) bool {
	if opts.VisitCompletion == 0 {
		opts.VisitCompletion = DefaultVisitCompletion
	}
	if opts.SessionTimeout == 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}

	latest := lastVisit
	if firstVisit.After(latest) {
		latest = firstVisit
	}
	if latest.IsZero() {
		return false
	}

	return now.Sub(latest) <= opts.VisitCompletion+opts.SessionTimeout
}
