package instrument

import "fmt"

// Selector addresses one item of a repeated capability collection either by
// its exact name or by its 0-based position. Construct with ByIndex or
// ByName; the zero value selects index 0.
type Selector struct {
	name   string
	index  int
	isName bool
}

// ByIndex selects a collection item by 0-based position.
func ByIndex(i int) Selector {
	return Selector{index: i}
}

// ByName selects a collection item by exact name. No partial or fuzzy
// matching is performed.
func ByName(name string) Selector {
	return Selector{name: name, isName: true}
}

// String renders the selector for error messages.
func (s Selector) String() string {
	if s.isName {
		return fmt.Sprintf("%q", s.name)
	}
	return fmt.Sprintf("%d", s.index)
}

// Collection is an ordered, fixed-size group of named sub-resources on one
// instrument (channels, traces, memory ranges). Names are unique within the
// collection. The current selection is the slot addressed by non-indexed
// operations; it defaults to 0.
type Collection struct {
	name    string
	items   []string
	current int
}

// Name returns the collection identifier.
func (c *Collection) Name() string { return c.name }

// Count returns the number of items.
func (c *Collection) Count() int { return len(c.items) }

// Names returns a copy of the item names in order.
func (c *Collection) Names() []string {
	out := make([]string, len(c.items))
	copy(out, c.items)
	return out
}

// Collections holds every repeated capability collection of one driver
// instance together with its current selection.
//
// Collections is not safe for concurrent use.
type Collections struct {
	m map[string]*Collection
}

// NewCollections returns an empty collection set.
func NewCollections() *Collections {
	return &Collections{m: make(map[string]*Collection)}
}

// Define creates a collection with the given ordered item names. The size is
// fixed for the life of the driver; items can be renamed but never added or
// removed.
func (cs *Collections) Define(name string, items []string) error {
	if _, exists := cs.m[name]; exists {
		return fmt.Errorf("%w: collection %q defined twice", ErrDuplicateName, name)
	}
	copied := make([]string, len(items))
	copy(copied, items)
	cs.m[name] = &Collection{name: name, items: copied}
	return nil
}

// Get returns a defined collection.
func (cs *Collections) Get(name string) (*Collection, error) {
	col, ok := cs.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return col, nil
}

// Resolve maps a selector to a 0-based index within the named collection.
// An index outside [0, count) or a name not present fails with
// ErrSelectorRange.
func (cs *Collections) Resolve(name string, sel Selector) (int, error) {
	col, err := cs.Get(name)
	if err != nil {
		return 0, err
	}
	if sel.isName {
		for i, item := range col.items {
			if item == sel.name {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: no item %q in collection %q", ErrSelectorRange, sel.name, name)
	}
	if sel.index < 0 || sel.index >= len(col.items) {
		return 0, fmt.Errorf("%w: index %d outside [0,%d) in collection %q",
			ErrSelectorRange, sel.index, len(col.items), name)
	}
	return sel.index, nil
}

// Rename changes the name of one item. The new name must not collide with
// any other item in the same collection.
func (cs *Collections) Rename(name string, sel Selector, newName string) error {
	col, err := cs.Get(name)
	if err != nil {
		return err
	}
	idx, err := cs.Resolve(name, sel)
	if err != nil {
		return err
	}
	for i, item := range col.items {
		if i != idx && item == newName {
			return fmt.Errorf("%w: %q already names item %d of collection %q",
				ErrDuplicateName, newName, i, name)
		}
	}
	col.items[idx] = newName
	return nil
}

// NameOf returns the name of the item a selector resolves to.
func (cs *Collections) NameOf(name string, sel Selector) (string, error) {
	col, err := cs.Get(name)
	if err != nil {
		return "", err
	}
	idx, err := cs.Resolve(name, sel)
	if err != nil {
		return "", err
	}
	return col.items[idx], nil
}

// Current returns the current selection of the named collection.
func (cs *Collections) Current(name string) (int, error) {
	col, err := cs.Get(name)
	if err != nil {
		return 0, err
	}
	return col.current, nil
}

// Select changes the current selection. Selection only decides which slot
// subsequent non-indexed operations address; it does not touch cache state.
func (cs *Collections) Select(name string, sel Selector) error {
	col, err := cs.Get(name)
	if err != nil {
		return err
	}
	idx, err := cs.Resolve(name, sel)
	if err != nil {
		return err
	}
	col.current = idx
	return nil
}
