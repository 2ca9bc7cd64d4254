package storage

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// CollectionKey derives the storage key of a collection from the store's
// identity, its direction, its metric and the fingerprint of the stages that
// produced the entries.
func CollectionKey(storeName, direction string, metric Metric, stageFingerprint string) string {
	h := sha256.New()
	for _, part := range []string{storeName, direction, string(metric), stageFingerprint} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Collection is the in-memory view of one ingested collection with resolved
// parent references. It is immutable after construction and safe for
// concurrent reads.
type Collection struct {
	entries    []types.EmbeddedElement
	index      map[string]int
	children   map[string][]int
	comparable int
}

// NewCollection indexes entries and links parent identifiers. Entries keep
// their order; every parent must be part of the collection unless it was
// already resolved.
func NewCollection(entries []types.EmbeddedElement) (*Collection, error) {
	arena := types.NewArena()
	for i, e := range entries {
		if e.Element == nil {
			return nil, fmt.Errorf("%w: entry %d has no element", ErrInvalidInput, i)
		}
		if err := arena.Add(e.Element); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if err := arena.Link(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	c := &Collection{
		entries:  entries,
		index:    make(map[string]int, len(entries)),
		children: make(map[string][]int),
	}
	for i, e := range entries {
		c.index[e.Element.Identifier] = i
		if e.Element.Granularity > 0 {
			c.children[e.Element.ParentID] = append(c.children[e.Element.ParentID], i)
		}
		if e.Element.Compare {
			c.comparable++
		}
	}
	for _, idx := range c.children {
		slices.SortFunc(idx, func(a, b int) int {
			return strings.Compare(entries[a].Element.Identifier, entries[b].Element.Identifier)
		})
	}
	return c, nil
}

// Len returns the number of elements.
func (c *Collection) Len() int { return len(c.entries) }

// Comparable returns the number of elements taking part in similarity search.
func (c *Collection) Comparable() int { return c.comparable }

// Get returns the entry with the given identifier.
func (c *Collection) Get(identifier string) (types.EmbeddedElement, bool) {
	i, ok := c.index[identifier]
	if !ok {
		return types.EmbeddedElement{}, false
	}
	return c.entries[i], true
}

// Children returns the entries whose parent is parentID, sorted by identifier.
func (c *Collection) Children(parentID string) []types.EmbeddedElement {
	idx := c.children[parentID]
	out := make([]types.EmbeddedElement, len(idx))
	for i, j := range idx {
		out[i] = c.entries[j]
	}
	return out
}

// All returns the entries in ingestion order.
func (c *Collection) All(compareOnly bool) []types.EmbeddedElement {
	out := make([]types.EmbeddedElement, 0, len(c.entries))
	for _, e := range c.entries {
		if compareOnly && !e.Element.Compare {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Rank scores every comparable element against query.
func (c *Collection) Rank(query types.Embedding, metric Metric) ([]Match, error) {
	matches := make([]Match, 0, c.comparable)
	for _, e := range c.entries {
		if !e.Element.Compare {
			continue
		}
		d, err := metric.Distance(query, e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", e.Element.Identifier, err)
		}
		matches = append(matches, Match{Element: e.Element, Distance: d})
	}
	SortMatches(matches)
	return matches, nil
}

// Verify compares the collection with entries. Embedding components may
// differ by at most tolerance.
func (c *Collection) Verify(entries []types.EmbeddedElement, tolerance float64) error {
	if len(entries) != len(c.entries) {
		return fmt.Errorf("%w: %d stored elements, %d supplied", ErrStorageConsistency, len(c.entries), len(entries))
	}
	for _, want := range entries {
		got, ok := c.Get(want.Element.Identifier)
		if !ok {
			return fmt.Errorf("%w: element %q is not stored", ErrStorageConsistency, want.Element.Identifier)
		}
		g, w := got.Element, want.Element
		if g.Type != w.Type || g.Content != w.Content || g.Granularity != w.Granularity ||
			g.ParentID != w.ParentID || g.Compare != w.Compare {
			return fmt.Errorf("%w: element %q differs", ErrStorageConsistency, w.Identifier)
		}
		if len(got.Embedding) != len(want.Embedding) {
			return fmt.Errorf("%w: embedding of %q differs in dimension", ErrStorageConsistency, w.Identifier)
		}
		for i := range want.Embedding {
			if math.Abs(got.Embedding[i]-want.Embedding[i]) > tolerance {
				return fmt.Errorf("%w: embedding of %q differs", ErrStorageConsistency, w.Identifier)
			}
		}
	}
	return nil
}

// SortMatches orders matches by ascending distance, then by identifier.
func SortMatches(matches []Match) {
	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return strings.Compare(a.Element.Identifier, b.Element.Identifier)
	})
}

// Select applies the threshold and the truncation policy to ranked matches.
// Matches within the threshold form a prefix of the ranking, so filtering
// before or after truncation yields the same result.
func Select(ranked []Match, results ResultCount, threshold float64) []Match {
	out := make([]Match, 0, len(ranked))
	for _, m := range ranked {
		if m.Distance > threshold {
			continue
		}
		out = append(out, m)
	}
	if !results.All && len(out) > results.K {
		out = out[:results.K]
	}
	return out
}

// Elements extracts the elements of matches.
func Elements(matches []Match) []*types.Element {
	out := make([]*types.Element, len(matches))
	for i, m := range matches {
		out[i] = m.Element
	}
	return out
}
