package model

import (
	"time"

	uuid "github.com/satori/go.uuid"
)

type IndexingAction string

const (
	ActionMap         IndexingAction = "map"
	ActionReduce      IndexingAction = "reduce"
	ActionMaterialize IndexingAction = "materialize"
	ActionStorage     IndexingAction = "storage"
)

// IndexingError is a recorded, recoverable indexing failure.
// Identical failures are counted instead of recorded twice.
type IndexingError struct {
	ID        string         `json:"id"`
	Index     string         `json:"index"`
	Action    IndexingAction `json:"action"`
	Key       string         `json:"key,omitempty"`
	Document  string         `json:"document,omitempty"`
	Message   string         `json:"message"`
	Count     int            `json:"count"`
	FirstSeen time.Time      `json:"first_seen"`
	LastSeen  time.Time      `json:"last_seen"`
}

func NewIndexingError(index string, action IndexingAction, err error) *IndexingError {
	now := time.Now()
	return &IndexingError{
		ID:        uuid.NewV4().String(),
		Index:     index,
		Action:    action,
		Message:   err.Error(),
		Count:     1,
		FirstSeen: now,
		LastSeen:  now,
	}
}

// Signature identifies identical failures.
func (e *IndexingError) Signature() string {
	return string(e.Action) + "\x00" + e.Key + "\x00" + e.Document + "\x00" + e.Message
}
