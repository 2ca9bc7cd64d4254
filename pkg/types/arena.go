package types

import "fmt"

// Arena owns a batch of elements indexed by identifier and resolves parent
// identifiers to element references once the whole batch is known.
//
// Loading is two-phase: Add every element, then call Link. Elements added
// with an already resolved parent keep it.
type Arena struct {
	byID  map[string]*Element
	order []*Element
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{byID: make(map[string]*Element)}
}

// Add registers an element. Identifiers must be unique within the arena.
func (a *Arena) Add(e *Element) error {
	if _, exists := a.byID[e.Identifier]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateElement, e.Identifier)
	}
	a.byID[e.Identifier] = e
	a.order = append(a.order, e)
	return nil
}

// Link resolves every pending parent identifier. It fails when a parent is
// missing from the arena or when the granularity invariant is violated.
func (a *Arena) Link() error {
	for _, e := range a.order {
		if e.Granularity == 0 {
			e.parent = nil
			continue
		}
		if e.parent == nil {
			parent, ok := a.byID[e.ParentID]
			if !ok {
				return fmt.Errorf("%w: %q (child %q)", ErrUnknownParent, e.ParentID, e.Identifier)
			}
			e.parent = parent
		}
		if e.parent.Granularity != e.Granularity-1 {
			return fmt.Errorf("%w: %q has granularity %d but parent %q has %d",
				ErrInvalidHierarchy, e.Identifier, e.Granularity, e.parent.Identifier, e.parent.Granularity)
		}
	}
	return nil
}

// Get returns the element with the given identifier.
func (a *Arena) Get(identifier string) (*Element, bool) {
	e, ok := a.byID[identifier]
	return e, ok
}

// Elements returns all elements in insertion order.
func (a *Arena) Elements() []*Element {
	out := make([]*Element, len(a.order))
	copy(out, a.order)
	return out
}

// Len returns the number of elements in the arena.
func (a *Arena) Len() int {
	return len(a.order)
}
