// Package types defines the core data structures for trace link recovery.
// Artifacts are segmented into hierarchical elements, elements are paired with
// embeddings, classification produces per-element results and aggregation
// rolls those results up into trace links between identifiers.
package types

import "errors"

var (
	// ErrDuplicateElement is returned when an identifier is added to an Arena twice.
	ErrDuplicateElement = errors.New("duplicate element identifier")

	// ErrUnknownParent is returned when a parent identifier cannot be resolved.
	ErrUnknownParent = errors.New("unknown parent identifier")

	// ErrInvalidHierarchy is returned when a parent's granularity is not exactly
	// one less than its child's.
	ErrInvalidHierarchy = errors.New("invalid element hierarchy")
)
