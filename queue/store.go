package queue

import (
	"database/sql"
	"sort"
	"time"

	"github.com/teranos/warden/errors"
)

// Store handles persistence of queue requests
type Store struct {
	db *sql.DB
}

// NewStore creates a new queue request store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `request_id, job_reference, request_type, payload, status,
	requested_at, claimed_at, claimed_by, completed_at, result_payload`

// CreateRequest inserts a new request into the queue
func (s *Store) CreateRequest(req *Request) error {
	query := `
		INSERT INTO queue_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(req.Payload), Valid: len(req.Payload) > 0}
	resultJSON, err := MarshalResult(req.Result)
	if err != nil {
		return err
	}
	result := sql.NullString{String: resultJSON, Valid: resultJSON != ""}
	claimedBy := sql.NullString{String: req.ClaimedBy, Valid: req.ClaimedBy != ""}

	_, err = s.db.Exec(query,
		req.ID,
		req.JobReference,
		string(req.Type),
		payload,
		string(req.Status),
		req.RequestedAt,
		req.ClaimedAt,
		claimedBy,
		req.CompletedAt,
		result,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create queue request")
	}

	return nil
}

// ClaimBatch atomically transitions up to limit NEW requests (oldest first)
// to CLAIMED, owned by claimant, and returns them.
//
// The guarded single-statement UPDATE makes the claim atomic with respect to
// concurrent pollers: a row read as NEW by one claim cycle can never also be
// claimed by another (at-most-one-claimant).
func (s *Store) ClaimBatch(claimant string, limit int) ([]*Request, error) {
	query := `
		UPDATE queue_requests
		SET status = ?, claimed_at = ?, claimed_by = ?
		WHERE status = ? AND request_id IN (
			SELECT request_id FROM queue_requests
			WHERE status = ?
			ORDER BY requested_at ASC, request_id ASC
			LIMIT ?
		)
		RETURNING ` + requestColumns

	rows, err := s.db.Query(query,
		string(StatusClaimed), time.Now(), claimant,
		string(StatusNew), string(StatusNew), limit,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to claim request batch")
		err = errors.WithDetailf(err, "Claimant: %s", claimant)
		return nil, err
	}
	defer rows.Close()

	claimed, err := scanRequests(rows, "claimed requests")
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee row order; restore oldest-first.
	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].RequestedAt.Equal(claimed[j].RequestedAt) {
			return claimed[i].ID < claimed[j].ID
		}
		return claimed[i].RequestedAt.Before(claimed[j].RequestedAt)
	})

	return claimed, nil
}

// MarkTerminal transitions a CLAIMED request to the given terminal status and
// records the result document. Requests that are not CLAIMED are left
// untouched: NEW rows have no owner entitled to complete them, and DONE and
// FAILED are immutable.
func (s *Store) MarkTerminal(requestID string, status Status, result *Result) error {
	if !status.Terminal() {
		return errors.Newf("status %s is not terminal", status)
	}

	resultJSON, err := MarshalResult(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE queue_requests
		SET status = ?, completed_at = ?, result_payload = ?
		WHERE request_id = ? AND status = ?
	`

	res, err := s.db.Exec(query, string(status), time.Now(), resultJSON, requestID, string(StatusClaimed))
	if err != nil {
		err = errors.Wrapf(err, "failed to mark request %s", status)
		err = errors.WithDetailf(err, "Request ID: %s", requestID)
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		err := errors.Newf("request %s is not claimed; refusing %s transition", requestID, status)
		err = errors.WithDetailf(err, "Request ID: %s", requestID)
		return err
	}

	return nil
}

// GetRequest retrieves a request by ID
func (s *Store) GetRequest(id string) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM queue_requests WHERE request_id = ?`

	req, err := scanRequest(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Newf("request not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get request")
	}
	return req, nil
}

// ListRequests returns requests, optionally filtered by status, newest first.
func (s *Store) ListRequests(status *Status, limit int) ([]*Request, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + requestColumns + ` FROM queue_requests`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY requested_at DESC LIMIT ?`
		args = []interface{}{string(*status), limit}
	} else {
		query = baseQuery + ` ORDER BY requested_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	defer rows.Close()

	return scanRequests(rows, "requests")
}

// CountByStatus returns the number of requests per status.
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM queue_requests GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count requests")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan request count")
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating request counts")
	}

	return counts, nil
}

// CleanupOldRequests removes terminal requests older than the specified
// duration. The scheduler core never calls this; it exists for the operator
// CLI only.
func (s *Store) CleanupOldRequests(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM queue_requests
		WHERE status IN (?, ?)
		  AND completed_at < ?
	`

	result, err := s.db.Exec(query, string(StatusDone), string(StatusFailed), cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old requests")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scanner) (*Request, error) {
	var req Request
	var reqType, status string
	var payload, claimedBy, resultJSON sql.NullString
	var claimedAt, completedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.JobReference,
		&reqType,
		&payload,
		&status,
		&req.RequestedAt,
		&claimedAt,
		&claimedBy,
		&completedAt,
		&resultJSON,
	)
	if err != nil {
		return nil, err
	}

	req.Type = Type(reqType)
	req.Status = Status(status)
	if payload.Valid {
		req.Payload = []byte(payload.String)
	}
	req.ClaimedBy = claimedBy.String
	if claimedAt.Valid {
		t := claimedAt.Time
		req.ClaimedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		req.CompletedAt = &t
	}
	if resultJSON.Valid {
		result, err := UnmarshalResult(resultJSON.String)
		if err != nil {
			return nil, err
		}
		req.Result = result
	}

	return &req, nil
}

func scanRequests(rows *sql.Rows, context string) ([]*Request, error) {
	var requests []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan request")
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return requests, nil
}
