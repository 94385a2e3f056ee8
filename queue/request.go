// Package queue provides the durable request queue: the hand-off between
// trigger fires, manual runs, and dependency fan-out on the producing side,
// and the worker pool on the consuming side.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/warden/errors"
)

// Status represents the current state of a queue request.
// Requests move NEW -> CLAIMED -> DONE|FAILED. DONE and FAILED are terminal;
// there is no automatic retry.
type Status string

const (
	StatusNew     Status = "NEW"
	StatusClaimed Status = "CLAIMED"
	StatusDone    Status = "DONE"
	StatusFailed  Status = "FAILED"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusNew, StatusClaimed, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Type classifies what a request asks the execution engine to do.
type Type string

const (
	TypeImmediate  Type = "immediate"  // Run the mapped flow now
	TypeHistorical Type = "historical" // Reload a historical date range
	TypeStop       Type = "stop"       // Cooperative stop signal for a running flow
	TypeReport     Type = "report"     // Run a report
)

// IsValidType returns true if the string is a known request type
func IsValidType(s string) bool {
	switch Type(s) {
	case TypeImmediate, TypeHistorical, TypeStop, TypeReport:
		return true
	default:
		return false
	}
}

// Request is one durable unit of requested work.
type Request struct {
	ID           string          `json:"request_id"`
	JobReference string          `json:"job_reference"`
	Type         Type            `json:"request_type"`
	Payload      json.RawMessage `json:"payload,omitempty"` // Stored parameter document
	Params       map[string]any  `json:"-"`                 // Decoded payload, populated at claim time
	Status       Status          `json:"status"`
	RequestedAt  time.Time       `json:"requested_at"`
	ClaimedAt    *time.Time      `json:"claimed_at,omitempty"`
	ClaimedBy    string          `json:"claimed_by,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       *Result         `json:"result,omitempty"`
}

// Result is the structured outcome written back when a request reaches a
// terminal state: the engine's success indicator plus arbitrary metrics, or
// the failure message.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// FailureResult builds the result document recorded for a failed execution.
func FailureResult(message string) *Result {
	return &Result{Success: false, Message: message}
}

// NewRequest creates a NEW request for the given job reference.
// Params may be nil (stored as an empty payload).
func NewRequest(jobReference string, reqType Type, params map[string]any) (*Request, error) {
	if jobReference == "" {
		return nil, errors.New("job reference cannot be empty")
	}
	if !IsValidType(string(reqType)) {
		return nil, errors.Newf("invalid request type: %s", reqType)
	}

	var payload json.RawMessage
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request params")
		}
		payload = data
	}

	return &Request{
		ID:           "REQ_" + uuid.NewString(),
		JobReference: jobReference,
		Type:         reqType,
		Payload:      payload,
		Params:       params,
		Status:       StatusNew,
		RequestedAt:  time.Now(),
	}, nil
}

// MarshalResult converts a Result to its stored JSON string
func MarshalResult(result *Result) (string, error) {
	if result == nil {
		return "", nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal result")
	}
	return string(data), nil
}

// UnmarshalResult converts a stored JSON string to a Result
func UnmarshalResult(data string) (*Result, error) {
	if data == "" {
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal result")
	}
	return &result, nil
}
