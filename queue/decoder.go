package queue

import (
	"encoding/json"

	"github.com/teranos/warden/errors"
)

// PayloadDecoder turns a stored payload document into request parameters.
//
// The queue core does not care how the underlying driver represents the
// document (raw text, streamed large object, native JSON column); decoding
// is pluggable at the queue-read boundary.
type PayloadDecoder interface {
	Decode(payload []byte) (map[string]any, error)
}

// JSONDecoder decodes payloads stored as JSON text. This is the default
// decoder for the SQLite store.
type JSONDecoder struct{}

// Decode implements PayloadDecoder. An empty payload decodes to an empty
// parameter set.
func (JSONDecoder) Decode(payload []byte) (map[string]any, error) {
	if len(payload) == 0 {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, errors.Wrap(err, "failed to decode request payload")
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
