package models

import "time"

// Event is one buffered log record as flushed by the host pipeline: a
// hierarchical tag, a unix timestamp and the record itself. Records are
// owned by the producer and treated as read-only here.
type Event struct {
	Tag    string                 `json:"tag"`
	Time   int64                  `json:"time"`
	Record map[string]interface{} `json:"record"`
}

// Batch is the flush envelope published by the buffering collaborator. All
// events of one batch are rendered and delivered together; the envelope is
// acked only after the whole batch is handled.
type Batch struct {
	RequestID string    `json:"request_id"`
	Source    string    `json:"source,omitempty"`
	FlushedAt time.Time `json:"flushed_at"`
	Events    []Event   `json:"events"`
}
