package types

import (
	"encoding/json"
	"fmt"
)

// Element is a hierarchical text unit of one artifact collection.
//
// Granularity 0 marks the root of a hierarchy (an artifact); every other
// element points at a parent whose granularity is exactly one less.
// Elements are immutable once linked: the only mutation is resolving the
// parent reference after deserialization (see Arena).
type Element struct {
	Identifier  string
	Type        string
	Content     string
	Granularity int
	ParentID    string
	Compare     bool

	parent *Element
}

// NewElement creates an element below parent. A nil parent creates a root
// element with granularity 0.
func NewElement(identifier, elementType, content string, parent *Element, compare bool) *Element {
	e := &Element{
		Identifier: identifier,
		Type:       elementType,
		Content:    content,
		Compare:    compare,
	}
	if parent != nil {
		e.parent = parent
		e.ParentID = parent.Identifier
		e.Granularity = parent.Granularity + 1
	}
	return e
}

// NewArtifact creates the root element of one input document.
// Artifacts never take part in similarity search.
func NewArtifact(identifier, artifactType, content string) *Element {
	return NewElement(identifier, artifactType, content, nil, false)
}

// Parent returns the resolved parent element, or nil for roots and for
// elements whose parent has not been linked yet.
func (e *Element) Parent() *Element {
	return e.parent
}

// IsArtifact reports whether e is a root element.
func (e *Element) IsArtifact() bool {
	return e.Granularity == 0
}

// Artifact follows parent references up to the granularity 0 root.
func (e *Element) Artifact() *Element {
	return e.Ancestor(0)
}

// Ancestor walks up the parent chain while the current granularity is larger
// than granularity. The walk stops at the root (or at an unlinked parent)
// even when the requested granularity was never reached.
func (e *Element) Ancestor(granularity int) *Element {
	current := e
	for current.Granularity > granularity && current.parent != nil {
		current = current.parent
	}
	return current
}

// elementRecord is the serialized form of an Element. Parents are referred to
// by identifier and are null for roots.
type elementRecord struct {
	Identifier  string  `json:"identifier"`
	Type        string  `json:"type"`
	Content     string  `json:"content"`
	Granularity int     `json:"granularity"`
	Parent      *string `json:"parent"`
	Compare     bool    `json:"compare"`
}

// MarshalJSON implements json.Marshaler.
func (e *Element) MarshalJSON() ([]byte, error) {
	rec := elementRecord{
		Identifier:  e.Identifier,
		Type:        e.Type,
		Content:     e.Content,
		Granularity: e.Granularity,
		Compare:     e.Compare,
	}
	if e.Granularity != 0 {
		parentID := e.ParentID
		rec.Parent = &parentID
	}
	return json.Marshal(rec)
}

// UnmarshalJSON implements json.Unmarshaler. The parent stays unresolved
// until the element is linked through an Arena.
func (e *Element) UnmarshalJSON(data []byte) error {
	var rec elementRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.Identifier == "" {
		return fmt.Errorf("element without identifier")
	}
	*e = Element{
		Identifier:  rec.Identifier,
		Type:        rec.Type,
		Content:     rec.Content,
		Granularity: rec.Granularity,
		Compare:     rec.Compare,
	}
	if rec.Parent != nil {
		e.ParentID = *rec.Parent
	}
	return nil
}

// String returns the element identifier.
func (e *Element) String() string {
	return e.Identifier
}
