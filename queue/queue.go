package queue

import (
	"database/sql"
	"time"

	"github.com/teranos/warden/errors"
)

// Queue is the domain API over the request store. Producers (trigger fires,
// manual runs, dependency fan-out) enqueue through it; the poller claims
// through it; workers write terminal outcomes through it.
type Queue struct {
	store *Store
}

// NewQueue creates a new request queue backed by db
func NewQueue(db *sql.DB) *Queue {
	return &Queue{store: NewStore(db)}
}

// Enqueue adds a request to the queue
func (q *Queue) Enqueue(req *Request) error {
	if err := q.store.CreateRequest(req); err != nil {
		err = errors.Wrap(err, "failed to enqueue request")
		err = errors.WithDetailf(err, "Request ID: %s", req.ID)
		err = errors.WithDetailf(err, "Job reference: %s", req.JobReference)
		err = errors.WithDetailf(err, "Request type: %s", req.Type)
		return err
	}
	return nil
}

// EnqueueImmediate creates and enqueues an immediate-run request for the
// given job reference. This is the single entry point for schedule fires,
// dependency fan-out, the CLI, and any external manual-trigger surface.
func (q *Queue) EnqueueImmediate(jobReference string, params map[string]any) (*Request, error) {
	req, err := NewRequest(jobReference, TypeImmediate, params)
	if err != nil {
		return nil, err
	}
	if err := q.Enqueue(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ClaimBatch atomically claims up to limit NEW requests for claimant,
// oldest first. See Store.ClaimBatch for the at-most-one-claimant guarantee.
func (q *Queue) ClaimBatch(claimant string, limit int) ([]*Request, error) {
	return q.store.ClaimBatch(claimant, limit)
}

// MarkDone records a successful terminal outcome for a claimed request
func (q *Queue) MarkDone(requestID string, result *Result) error {
	return q.store.MarkTerminal(requestID, StatusDone, result)
}

// MarkFailed records a failed terminal outcome for a claimed request
func (q *Queue) MarkFailed(requestID string, message string) error {
	return q.store.MarkTerminal(requestID, StatusFailed, FailureResult(message))
}

// Get retrieves a request by ID
func (q *Queue) Get(requestID string) (*Request, error) {
	return q.store.GetRequest(requestID)
}

// List returns requests, optionally filtered by status, newest first
func (q *Queue) List(status *Status, limit int) ([]*Request, error) {
	return q.store.ListRequests(status, limit)
}

// Cleanup removes terminal requests older than the given duration.
// Operator surface only; the scheduler core never deletes requests.
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	return q.store.CleanupOldRequests(olderThan)
}

// Stats holds per-status request counts
type Stats struct {
	New     int `json:"new"`
	Claimed int `json:"claimed"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*Stats, error) {
	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		New:     counts[StatusNew],
		Claimed: counts[StatusClaimed],
		Done:    counts[StatusDone],
		Failed:  counts[StatusFailed],
	}
	stats.Total = stats.New + stats.Claimed + stats.Done + stats.Failed
	return stats, nil
}
