// Package session tracks how many review sessions finished today and
// decides when the human reviewer is due a break. The counter lives in
// the store and rolls over at local midnight; this package owns the
// calendar and the pause policy.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/valpere/transpipe/internal/store"
)

// Interval bounds. An interval of 1 pauses after every session.
const (
	MinInterval     = 1
	MaxInterval     = 20
	DefaultInterval = 5
)

// Status is the governor's view of the day.
type Status struct {
	Day               string `json:"day"`
	SessionsCompleted int    `json:"sessions_completed"`
	ReviewInterval    int    `json:"review_interval"`
	PauseDue          bool   `json:"pause_due"`
}

// Governor reads and steers the daily counter.
type Governor struct {
	st              *store.Store
	defaultInterval int
	now             func() time.Time
}

// NewGovernor returns a Governor. An out-of-range defaultInterval falls
// back to DefaultInterval.
func NewGovernor(st *store.Store, defaultInterval int) *Governor {
	if defaultInterval < MinInterval || defaultInterval > MaxInterval {
		defaultInterval = DefaultInterval
	}
	return &Governor{st: st, defaultInterval: defaultInterval, now: time.Now}
}

// Today returns the current local calendar day. Saves are stamped with
// this value so the rollover uses the reviewer's wall clock, not UTC.
func (g *Governor) Today() string {
	return g.now().Format("2006-01-02")
}

// Status returns today's counter and whether a pause is due. A pause is
// due once the count reaches the interval, including when the interval
// was lowered below an already accumulated count; the count stays where
// it is, so the signal repeats until the counter is reset.
func (g *Governor) Status(ctx context.Context) (*Status, error) {
	st, err := g.st.GetSessionState(ctx, g.Today(), g.defaultInterval)
	if err != nil {
		return nil, err
	}
	return &Status{
		Day:               st.Day,
		SessionsCompleted: st.SessionsCompleted,
		ReviewInterval:    st.ReviewInterval,
		PauseDue:          st.SessionsCompleted >= st.ReviewInterval,
	}, nil
}

// Reset zeroes today's counter, acknowledging a pause.
func (g *Governor) Reset(ctx context.Context) error {
	return g.st.ResetSessions(ctx, g.Today())
}

// SetInterval updates the pause interval within the allowed bounds.
func (g *Governor) SetInterval(ctx context.Context, interval int) error {
	if interval < MinInterval || interval > MaxInterval {
		return fmt.Errorf("review interval must be between %d and %d, got %d",
			MinInterval, MaxInterval, interval)
	}
	return g.st.SetReviewInterval(ctx, g.Today(), interval)
}
