package state

import (
	"fmt"
	"time"
)

// Outcome is the terminal result recorded for one production record.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomeFail    Outcome = "Fail"
)

// StatusEntry is one append-only ledger row.
type StatusEntry struct {
	RecordID  int64
	LotNumber string
	Outcome   Outcome
	Reason    string
	RunID     string
	LoggedAt  time.Time
}

// AlreadySucceeded reports whether a production record has a Success entry.
// Fail entries do not count: failures are retried on the next run.
func (s *Store) AlreadySucceeded(recordID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM status_log WHERE record_id = ? AND outcome = 'Success'`,
		recordID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying status for record %d: %w", recordID, err)
	}
	return n > 0, nil
}

// LogStatus appends a terminal outcome for a production record.
func (s *Store) LogStatus(e StatusEntry) error {
	loggedAt := e.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO status_log (record_id, lot_number, outcome, reason, run_id, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RecordID, e.LotNumber, string(e.Outcome), e.Reason, e.RunID,
		loggedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("logging status for record %d: %w", e.RecordID, err)
	}
	return nil
}

// OutcomeCounts returns the total Success and Fail row counts.
func (s *Store) OutcomeCounts() (success, fail int64, err error) {
	err = s.db.QueryRow(
		`SELECT
			COUNT(*) FILTER (WHERE outcome = 'Success'),
			COUNT(*) FILTER (WHERE outcome = 'Fail')
		 FROM status_log`,
	).Scan(&success, &fail)
	if err != nil {
		return 0, 0, fmt.Errorf("counting outcomes: %w", err)
	}
	return success, fail, nil
}

// RecordEntries returns every ledger row for a record, oldest first.
func (s *Store) RecordEntries(recordID int64) ([]StatusEntry, error) {
	rows, err := s.db.Query(
		`SELECT record_id, lot_number, outcome, reason, run_id, logged_at
		 FROM status_log WHERE record_id = ? ORDER BY id ASC`,
		recordID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StatusEntry
	for rows.Next() {
		var e StatusEntry
		var outcome, loggedAt string
		if err := rows.Scan(&e.RecordID, &e.LotNumber, &outcome, &e.Reason, &e.RunID, &loggedAt); err != nil {
			return nil, err
		}
		e.Outcome = Outcome(outcome)
		t, err := time.Parse(time.RFC3339, loggedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing logged_at: %w", err)
		}
		e.LoggedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
