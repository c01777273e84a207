package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SessionState is the singleton daily session counter. The day column
// holds a local calendar date; a read or increment on a different day
// resets the count before applying.
type SessionState struct {
	Day               string `json:"day"`
	SessionsCompleted int    `json:"sessions_completed"`
	ReviewInterval    int    `json:"review_interval"`
}

// GetSessionState returns the session counter for the given local day,
// rolling the count over when the stored day differs. A missing row is
// created with the provided default interval.
func (s *Store) GetSessionState(ctx context.Context, day string, defaultInterval int) (*SessionState, error) {
	var st SessionState
	err := s.db.QueryRowContext(ctx,
		`SELECT day, sessions_completed, review_interval FROM session_state WHERE id = 1`).
		Scan(&st.Day, &st.SessionsCompleted, &st.ReviewInterval)
	if errors.Is(err, sql.ErrNoRows) {
		st = SessionState{Day: day, SessionsCompleted: 0, ReviewInterval: defaultInterval}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO session_state (id, day, sessions_completed, review_interval) VALUES (1, ?, 0, ?)`,
			day, defaultInterval)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize session state: %w", err)
		}
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	if st.Day != day {
		st.Day = day
		st.SessionsCompleted = 0
		_, err = s.db.ExecContext(ctx,
			`UPDATE session_state SET day = ?, sessions_completed = 0 WHERE id = 1`, day)
		if err != nil {
			return nil, fmt.Errorf("failed to roll session state over: %w", err)
		}
	}
	return &st, nil
}

// ResetSessions zeroes today's counter.
func (s *Store) ResetSessions(ctx context.Context, day string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, day, sessions_completed) VALUES (1, ?, 0)
		 ON CONFLICT(id) DO UPDATE SET day = excluded.day, sessions_completed = 0`,
		day)
	if err != nil {
		return fmt.Errorf("failed to reset sessions: %w", err)
	}
	return nil
}

// SetReviewInterval updates the pause interval.
func (s *Store) SetReviewInterval(ctx context.Context, day string, interval int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, day, sessions_completed, review_interval) VALUES (1, ?, 0, ?)
		 ON CONFLICT(id) DO UPDATE SET review_interval = excluded.review_interval`,
		day, interval)
	if err != nil {
		return fmt.Errorf("failed to set review interval: %w", err)
	}
	return nil
}

// incrementSessionsTx bumps the counter inside the save transaction,
// applying the day rollover first so a save at midnight counts toward
// the new day.
func incrementSessionsTx(ctx context.Context, tx *sql.Tx, day string) error {
	var storedDay string
	var completed int
	err := tx.QueryRowContext(ctx,
		`SELECT day, sessions_completed FROM session_state WHERE id = 1`).
		Scan(&storedDay, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_state (id, day, sessions_completed) VALUES (1, ?, 1)`, day)
		if err != nil {
			return fmt.Errorf("failed to initialize session counter: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session counter: %w", err)
	}

	if storedDay != day {
		completed = 0
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE session_state SET day = ?, sessions_completed = ? WHERE id = 1`,
		day, completed+1)
	if err != nil {
		return fmt.Errorf("failed to increment session counter: %w", err)
	}
	return nil
}
