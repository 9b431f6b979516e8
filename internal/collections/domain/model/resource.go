package model

// Model is implemented by every record type stored through a collection accessor.
// Implementations are pointer types, usually by embedding Resource:
//
//	type Widget struct {
//		model.Resource `bson:",inline"`
//		Name string `json:"name" bson:"name"`
//	}
type Model interface {
	GetID() string
	SetID(id string)
	GetResourceID() string
	SetResourceID(rid string)
	GetSelfLink() string
	SetSelfLink(link string)
}

// Resource carries the identity fields shared by all stored documents.
// ID is chosen by the caller (or generated) and is unique within a collection.
// ResourceID and SelfLink are assigned by the database on first persist.
type Resource struct {
	ID         string `json:"id" bson:"id"`
	ResourceID string `json:"_rid,omitempty" bson:"_rid,omitempty"`
	SelfLink   string `json:"_self,omitempty" bson:"_self,omitempty"`
}

func (r *Resource) GetID() string            { return r.ID }
func (r *Resource) SetID(id string)          { r.ID = id }
func (r *Resource) GetResourceID() string    { return r.ResourceID }
func (r *Resource) SetResourceID(rid string) { r.ResourceID = rid }
func (r *Resource) GetSelfLink() string      { return r.SelfLink }
func (r *Resource) SetSelfLink(link string)  { r.SelfLink = link }

// IsPersisted reports whether the database has assigned a resource id.
func (r *Resource) IsPersisted() bool { return r.ResourceID != "" }
