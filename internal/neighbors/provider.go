// Package neighbors supplies the text surrounding an element: the content of
// the siblings before and after it under the same parent.
package neighbors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/storage"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Side selects the collection an element belongs to.
type Side int

const (
	Source Side = iota
	Target
)

func (s Side) String() string {
	if s == Source {
		return "source"
	}
	return "target"
}

// Provider reads sibling windows from the source and target stores.
type Provider struct {
	source storage.ElementReader
	target storage.ElementReader
}

// NewProvider creates a provider over the stores of both collections.
func NewProvider(source, target storage.ElementReader) *Provider {
	return &Provider{source: source, target: target}
}

// SiblingContext returns the content of up to pre siblings preceding element
// and up to post siblings following it, each group joined with newlines.
// Siblings are ordered naturally by identifier. When both counts are zero
// the stores are not consulted. Root elements have no siblings and get
// empty context.
func (p *Provider) SiblingContext(ctx context.Context, element *types.Element, side Side, pre, post int) (string, string, error) {
	if pre < 0 || post < 0 {
		return "", "", fmt.Errorf("%w: negative context window (%d, %d)", storage.ErrInvalidInput, pre, post)
	}
	if pre == 0 && post == 0 {
		return "", "", nil
	}
	if element.Granularity == 0 {
		return "", "", nil
	}

	store := p.source
	if side == Target {
		store = p.target
	}
	entries, err := store.GetByParentID(ctx, element.ParentID)
	if err != nil {
		return "", "", fmt.Errorf("siblings of %q: %w", element.Identifier, err)
	}

	siblings := make([]*types.Element, len(entries))
	for i, e := range entries {
		siblings[i] = e.Element
	}
	slices.SortFunc(siblings, func(a, b *types.Element) int {
		return NaturalCompare(a.Identifier, b.Identifier)
	})

	index := slices.IndexFunc(siblings, func(e *types.Element) bool {
		return e.Identifier == element.Identifier
	})
	if index < 0 {
		return "", "", fmt.Errorf("%w: %q is not among the children of %q in the %s store",
			storage.ErrNotFound, element.Identifier, element.ParentID, side)
	}

	before := siblings[max(index-pre, 0):index]
	after := siblings[index+1 : min(index+1+post, len(siblings))]
	return join(before), join(after), nil
}

func join(elements []*types.Element) string {
	parts := make([]string, len(elements))
	for i, e := range elements {
		parts[i] = e.Content
	}
	return strings.Join(parts, "\n")
}
