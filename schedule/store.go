package schedule

import (
	"database/sql"
	"time"

	"github.com/teranos/warden/errors"
)

// Store handles persistence of schedule entries
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = `schedule_id, job_reference, frequency_code,
	frequency_day, frequency_hour, frequency_minute,
	valid_from, valid_to, active_flag, parent_schedule_id, current_flag,
	created_at, updated_at`

// Create inserts a new schedule entry as the current version for its job
// reference. Fails if a current row already exists (use Replace for edits).
func (s *Store) Create(entry *Entry) error {
	now := time.Now()
	entry.Current = true
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := s.insert(s.db, entry); err != nil {
		err = errors.Wrap(err, "failed to create schedule entry")
		err = errors.WithDetailf(err, "Schedule ID: %s", entry.ScheduleID)
		err = errors.WithDetailf(err, "Job reference: %s", entry.JobReference)
		return err
	}
	return nil
}

// Replace inserts entry as the new current version for its job reference,
// flipping any prior current row to current_flag=0 in the same transaction.
// The history row is preserved (append-only versioning).
func (s *Store) Replace(entry *Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin replace transaction")
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.Exec(
		`UPDATE job_schedules SET current_flag = 0, updated_at = ? WHERE job_reference = ? AND current_flag = 1`,
		now, entry.JobReference,
	); err != nil {
		err = errors.Wrap(err, "failed to retire prior schedule version")
		err = errors.WithDetailf(err, "Job reference: %s", entry.JobReference)
		return err
	}

	entry.Current = true
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if err := s.insert(tx, entry); err != nil {
		err = errors.Wrap(err, "failed to insert new schedule version")
		err = errors.WithDetailf(err, "Schedule ID: %s", entry.ScheduleID)
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit replace")
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insert(e execer, entry *Entry) error {
	query := `
		INSERT INTO job_schedules (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var validTo interface{}
	if entry.ValidTo != nil {
		validTo = *entry.ValidTo
	}
	parent := sql.NullString{String: entry.ParentScheduleID, Valid: entry.ParentScheduleID != ""}

	_, err := e.Exec(query,
		entry.ScheduleID,
		entry.JobReference,
		string(entry.Frequency),
		entry.Day,
		entry.Hour,
		entry.Minute,
		entry.ValidFrom,
		validTo,
		entry.Active,
		parent,
		entry.Current,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	return err
}

// Get retrieves a schedule entry by ID
func (s *Store) Get(scheduleID string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM job_schedules WHERE schedule_id = ?`

	entry, err := scanEntry(s.db.QueryRow(query, scheduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf("schedule entry not found: %s", scheduleID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get schedule entry")
	}
	return entry, nil
}

// ListCurrent returns all current-version entries, active or not.
func (s *Store) ListCurrent() ([]*Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM job_schedules
		WHERE current_flag = 1
		ORDER BY job_reference ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list current schedule entries")
	}
	defer rows.Close()

	return scanEntries(rows, "current entries")
}

// ListCurrentActive returns the desired trigger set: entries that are the
// current version and flagged active. Rows with current_flag=0 never appear
// here regardless of their active flag.
func (s *Store) ListCurrentActive() ([]*Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM job_schedules
		WHERE current_flag = 1 AND active_flag = 1
		ORDER BY job_reference ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active schedule entries")
	}
	defer rows.Close()

	return scanEntries(rows, "active entries")
}

// ListChildren returns the active current entries whose parent schedule is
// the current entry for the given job reference. This is the dependency
// fan-out query: these are the schedules to enqueue after jobReference
// completes successfully.
func (s *Store) ListChildren(jobReference string) ([]*Entry, error) {
	query := `SELECT c.schedule_id, c.job_reference, c.frequency_code,
			c.frequency_day, c.frequency_hour, c.frequency_minute,
			c.valid_from, c.valid_to, c.active_flag, c.parent_schedule_id, c.current_flag,
			c.created_at, c.updated_at
		FROM job_schedules c
		JOIN job_schedules p ON p.schedule_id = c.parent_schedule_id
		WHERE p.job_reference = ?
		  AND p.current_flag = 1
		  AND c.current_flag = 1
		  AND c.active_flag = 1
		ORDER BY c.schedule_id ASC`

	rows, err := s.db.Query(query, jobReference)
	if err != nil {
		err = errors.Wrap(err, "failed to list child schedules")
		err = errors.WithDetailf(err, "Parent job reference: %s", jobReference)
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows, "child entries")
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var entry Entry
	var freq string
	var day, hour, minute sql.NullInt64
	var validTo sql.NullTime
	var parent sql.NullString

	err := row.Scan(
		&entry.ScheduleID,
		&entry.JobReference,
		&freq,
		&day,
		&hour,
		&minute,
		&entry.ValidFrom,
		&validTo,
		&entry.Active,
		&parent,
		&entry.Current,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Frequency = Frequency(freq)
	entry.Day = int(day.Int64)
	entry.Hour = int(hour.Int64)
	entry.Minute = int(minute.Int64)
	if validTo.Valid {
		t := validTo.Time
		entry.ValidTo = &t
	}
	entry.ParentScheduleID = parent.String

	return &entry, nil
}

func scanEntries(rows *sql.Rows, context string) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return entries, nil
}
