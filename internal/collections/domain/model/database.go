package model

import "time"

// Database identifies the logical container shared by all bound collections.
type Database struct {
	ID         string    `json:"id" bson:"id"`
	ResourceID string    `json:"_rid,omitempty" bson:"_rid,omitempty"`
	SelfLink   string    `json:"_self" bson:"_self"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
}

// CollectionHandle identifies one physical collection. It is immutable once resolved
// and is bound to exactly one accessor and one model type.
type CollectionHandle struct {
	ID         string    `json:"id" bson:"id"`
	DatabaseID string    `json:"databaseId" bson:"database_id"`
	ResourceID string    `json:"_rid,omitempty" bson:"_rid,omitempty"`
	SelfLink   string    `json:"_self" bson:"_self"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
}

// CollectionSpec describes a collection to create. The "id" key is always unique;
// UniqueKeys adds further unique single-field constraints.
type CollectionSpec struct {
	ID         string
	UniqueKeys []string
}
