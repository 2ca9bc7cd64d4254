package types

import "sort"

// ClassificationResult holds one source element and the targets accepted as
// related to it.
type ClassificationResult struct {
	Source  *Element
	Related []*Element
}

// TraceLink is an accepted relatedness pair of identifiers. Two links are
// equal when both identifiers are equal.
type TraceLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// TraceLinkSet is a set of trace links.
type TraceLinkSet map[TraceLink]struct{}

// NewTraceLinkSet creates a set containing links.
func NewTraceLinkSet(links ...TraceLink) TraceLinkSet {
	s := make(TraceLinkSet, len(links))
	for _, l := range links {
		s.Add(l)
	}
	return s
}

// Add inserts a link. Adding an existing link is a no-op.
func (s TraceLinkSet) Add(link TraceLink) {
	s[link] = struct{}{}
}

// Contains reports whether link is in the set.
func (s TraceLinkSet) Contains(link TraceLink) bool {
	_, ok := s[link]
	return ok
}

// Links returns the links ordered by source, then target.
func (s TraceLinkSet) Links() []TraceLink {
	out := make([]TraceLink, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}
