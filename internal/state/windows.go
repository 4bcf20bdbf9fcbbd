package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Window is a closed-open scan interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowTracker hands out fixed-duration scan windows with no gaps and no
// overlaps. Each window starts where the last recorded one ended; the first
// window starts at the configured cutoff. A window is only eligible once its
// end lags `lag` behind now, so upstream data is complete before a scan.
type WindowTracker struct {
	store      *Store
	duration   time.Duration
	lag        time.Duration
	firstStart time.Time

	// now is swapped out in tests.
	now func() time.Time
}

// NewWindowTracker creates a tracker over the given store. duration and lag
// default to 6 hours when zero.
func NewWindowTracker(store *Store, duration, lag time.Duration, firstStart time.Time) *WindowTracker {
	if duration <= 0 {
		duration = 6 * time.Hour
	}
	if lag <= 0 {
		lag = 6 * time.Hour
	}
	return &WindowTracker{
		store:      store,
		duration:   duration,
		lag:        lag,
		firstStart: firstStart.UTC().Truncate(time.Second),
		now:        time.Now,
	}
}

// Next returns the next unscanned window, or ok=false when the candidate
// window's end would exceed now-lag and the caller must wait.
func (t *WindowTracker) Next() (Window, bool, error) {
	start := t.firstStart
	lastEnd, found, err := t.store.lastWindowEnd()
	if err != nil {
		return Window{}, false, err
	}
	if found && lastEnd.After(start) {
		start = lastEnd
	}

	end := start.Add(t.duration)
	if end.After(t.now().UTC().Add(-t.lag)) {
		return Window{}, false, nil
	}
	return Window{Start: start, End: end}, true, nil
}

// MarkProcessed appends the window to the durable log. Re-recording an
// already-logged window is a no-op.
func (t *WindowTracker) MarkProcessed(w Window) error {
	_, err := t.store.db.Exec(
		`INSERT OR IGNORE INTO scan_windows (start_epoch, end_epoch, processed_at)
		 VALUES (?, ?, ?)`,
		w.Start.Unix(), w.End.Unix(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording window [%d, %d): %w", w.Start.Unix(), w.End.Unix(), err)
	}
	return nil
}

// LastWindow returns the most recently recorded window, if any.
func (s *Store) LastWindow() (Window, bool, error) {
	var startEpoch, endEpoch int64
	err := s.db.QueryRow(
		`SELECT start_epoch, end_epoch FROM scan_windows ORDER BY end_epoch DESC LIMIT 1`,
	).Scan(&startEpoch, &endEpoch)
	if err == sql.ErrNoRows {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("querying last window: %w", err)
	}
	return Window{
		Start: time.Unix(startEpoch, 0).UTC(),
		End:   time.Unix(endEpoch, 0).UTC(),
	}, true, nil
}

func (s *Store) lastWindowEnd() (time.Time, bool, error) {
	w, found, err := s.LastWindow()
	if err != nil || !found {
		return time.Time{}, found, err
	}
	return w.End, true, nil
}
