package model

import "time"

// ChangeKind is the kind of document mutation a ChangeEvent records.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeReplaced ChangeKind = "replaced"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeEvent describes one committed document write.
type ChangeEvent struct {
	Kind         ChangeKind `json:"kind"`
	DatabaseID   string     `json:"databaseId"`
	CollectionID string     `json:"collectionId"`
	DocumentID   string     `json:"documentId"`
	ResourceID   string     `json:"resourceId,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`

	// Sequence is filled in by stores that assign an ordering, such as a Redis stream ID.
	Sequence string `json:"sequence,omitempty"`
}
