package links

import (
	"regexp"
	"strings"

	"docdb-binder/internal/shared/errors"
)

const (
	databasesSegment   = "dbs"
	collectionsSegment = "colls"
	documentsSegment   = "docs"
)

// LinkInfo is a parsed resource link. CollectionID and DocumentID are empty for links
// that address a database or a collection respectively.
type LinkInfo struct {
	DatabaseID   string
	CollectionID string
	DocumentID   string
}

// IsDatabase reports whether the link addresses a database.
func (l *LinkInfo) IsDatabase() bool { return l.CollectionID == "" }

// IsCollection reports whether the link addresses a collection.
func (l *LinkInfo) IsCollection() bool { return l.CollectionID != "" && l.DocumentID == "" }

// IsDocument reports whether the link addresses a document.
func (l *LinkInfo) IsDocument() bool { return l.DocumentID != "" }

var (
	// dbs/{DB}[/colls/{COLL}[/docs/{ID}]]
	linkRegex = regexp.MustCompile(`^dbs/([^/]+)(?:/colls/([^/]+)(?:/docs/([^/]+))?)?$`)

	validIDPattern = regexp.MustCompile(`^[^/\\?#\s]+$`)
)

// Database builds the link of a database.
func Database(databaseID string) string {
	return databasesSegment + "/" + databaseID
}

// Collection builds the link of a collection inside a database.
func Collection(databaseID, collectionID string) string {
	return Database(databaseID) + "/" + collectionsSegment + "/" + collectionID
}

// Document builds the link of a document from its collection link and caller-visible id.
func Document(collectionLink, documentID string) string {
	return strings.TrimRight(collectionLink, "/") + "/" + documentsSegment + "/" + documentID
}

// Parse parses a database, collection or document link.
func Parse(link string) (*LinkInfo, error) {
	if link == "" {
		return nil, errors.NewValidationError("link cannot be empty").WithCause(errors.ErrInvalidLink)
	}

	link = strings.Trim(link, "/")
	matches := linkRegex.FindStringSubmatch(link)
	if matches == nil {
		return nil, errors.NewValidationError("invalid resource link format").
			WithCause(errors.ErrInvalidLink).
			WithDetail("expected_format", "dbs/{DB}/colls/{COLLECTION}/docs/{ID}").
			WithDetail("provided_link", link)
	}

	info := &LinkInfo{
		DatabaseID:   matches[1],
		CollectionID: matches[2],
		DocumentID:   matches[3],
	}

	for name, segment := range map[string]string{
		"database_id":   info.DatabaseID,
		"collection_id": info.CollectionID,
		"document_id":   info.DocumentID,
	} {
		if segment != "" && !IsValidID(segment) {
			return nil, errors.NewValidationError("invalid link segment").
				WithCause(errors.ErrInvalidLink).
				WithDetail(name, segment)
		}
	}

	return info, nil
}

// ParseDocument parses a link and requires it to address a document.
func ParseDocument(link string) (*LinkInfo, error) {
	info, err := Parse(link)
	if err != nil {
		return nil, err
	}
	if !info.IsDocument() {
		return nil, errors.NewValidationError("link does not address a document").
			WithCause(errors.ErrInvalidLink).
			WithDetail("provided_link", link)
	}
	return info, nil
}

// IsValidID checks if an id can be used as a link segment.
func IsValidID(id string) bool {
	if id == "" || len(id) > 255 {
		return false
	}
	return validIDPattern.MatchString(id)
}
