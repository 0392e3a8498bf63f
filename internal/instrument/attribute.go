package instrument

import "fmt"

// Path is a dotted attribute key, optionally carrying a repeated capability
// marker: "voltage.range", "channels[].name". Paths are unique within a
// driver instance.
type Path string

// Getter produces the semantic value of an attribute. For indexed
// attributes index is the resolved 0-based item; for scalar attributes it
// is always ScalarKey's index.
type Getter func(index int) (any, error)

// Setter stores a new semantic value. A nil Setter makes the attribute
// read-only.
type Setter func(index int, value any) error

// Descriptor declares one attribute at registration time. Descriptors are
// created once at driver construction and are immutable afterwards.
type Descriptor struct {
	// Path is the unique dotted key.
	Path Path

	// Group names the capability group the attribute belongs to,
	// e.g. "load.base", "specan.frequency". Used for introspection.
	Group string

	// Collection names the owning repeated capability collection for
	// indexed attributes. Empty for scalar attributes.
	Collection string

	// Doc is the user-facing documentation string.
	Doc string

	// Local marks attributes with no hardware backing. Their cache entry
	// is seeded valid with Default and survives InvalidateAll.
	Local bool

	// Default seeds the cache for local attributes and is the value
	// simulate-mode getters fall back to.
	Default any

	// Get is required.
	Get Getter

	// Set is optional; nil means read-only.
	Set Setter
}

// Indexed reports whether the attribute addresses a repeated capability.
func (d Descriptor) Indexed() bool { return d.Collection != "" }

// Info is the introspection view of one registered attribute.
type Info struct {
	Path     Path   `json:"path"`
	Group    string `json:"group"`
	Indexed  bool   `json:"indexed"`
	Writable bool   `json:"writable"`
	Doc      string `json:"doc"`
}

// Registry maps attribute paths to their accessors and metadata, owns the
// value cache and the repeated capability collections, and fires the
// invalidation graph after successful sets.
//
// Registry is not safe for concurrent use; callers serialize access to one
// driver instance.
type Registry struct {
	order []Path
	attrs map[Path]*Descriptor

	// affects lists the paths whose cache entries a successful set of the
	// key path invalidates.
	affects map[Path][]Path

	cache *Cache
	cols  *Collections
}

// NewRegistry returns a registry with an empty cache and no collections.
func NewRegistry() *Registry {
	return &Registry{
		attrs:   make(map[Path]*Descriptor),
		affects: make(map[Path][]Path),
		cache:   NewCache(),
		cols:    NewCollections(),
	}
}

// Cache exposes the registry's value cache to the owning driver.
func (r *Registry) Cache() *Cache { return r.cache }

// Collections exposes the repeated capability collections.
func (r *Registry) Collections() *Collections { return r.cols }

// Register adds an attribute. Registering the same path twice is an error.
// Local attributes get their cache entry seeded valid with Default.
func (r *Registry) Register(d Descriptor) error {
	if d.Get == nil {
		return fmt.Errorf("instrument: attribute %q registered without getter", d.Path)
	}
	if _, exists := r.attrs[d.Path]; exists {
		return fmt.Errorf("%w: %q", ErrAttributeExists, d.Path)
	}
	desc := d
	r.attrs[d.Path] = &desc
	r.order = append(r.order, d.Path)
	if d.Local && !d.Indexed() {
		r.cache.Seed(ScalarKey(d.Path), d.Default)
	}
	return nil
}

// MustRegister is Register for driver construction paths where a failure is
// a programming error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// SeedLocalIndexed seeds local cache entries for every item of an indexed
// local attribute. Called by drivers after the owning collection is defined.
func (r *Registry) SeedLocalIndexed(path Path) error {
	d, ok := r.attrs[path]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, path)
	}
	if !d.Local || !d.Indexed() {
		return fmt.Errorf("instrument: attribute %q is not an indexed local attribute", path)
	}
	col, err := r.cols.Get(d.Collection)
	if err != nil {
		return err
	}
	for i := 0; i < col.Count(); i++ {
		r.cache.Seed(Key{Path: path, Index: i}, d.Default)
	}
	return nil
}

// Affects declares invalidation edges: after any successful set of path,
// the cache entries of every affected path are marked invalid before the
// set returns. The edges form the static invalidation graph built at
// driver construction.
func (r *Registry) Affects(path Path, affected ...Path) {
	r.affects[path] = append(r.affects[path], affected...)
}

// Lookup returns the descriptor for a path.
func (r *Registry) Lookup(path Path) (*Descriptor, error) {
	d, ok := r.attrs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, path)
	}
	return d, nil
}

// resolve maps (descriptor, selector) to the cache index the accessors
// receive. Scalar attributes ignore the selector. Indexed attributes called
// without an explicit selector address the collection's current selection.
func (r *Registry) resolve(d *Descriptor, sel *Selector) (int, error) {
	if !d.Indexed() {
		return scalarIndex, nil
	}
	if sel == nil {
		return r.cols.Current(d.Collection)
	}
	return r.cols.Resolve(d.Collection, *sel)
}

// Get reads an attribute. Indexed attributes address the current selection
// of their collection.
func (r *Registry) Get(path Path) (any, error) {
	return r.get(path, nil)
}

// GetAt reads an indexed attribute at an explicit selector.
func (r *Registry) GetAt(path Path, sel Selector) (any, error) {
	return r.get(path, &sel)
}

func (r *Registry) get(path Path, sel *Selector) (any, error) {
	d, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	idx, err := r.resolve(d, sel)
	if err != nil {
		return nil, err
	}
	return d.Get(idx)
}

// Set writes an attribute. Indexed attributes address the current selection
// of their collection. On success the invalidation edges declared for the
// path fire before Set returns; on failure the cache entry keeps its prior
// value and validity.
func (r *Registry) Set(path Path, value any) error {
	return r.set(path, nil, value)
}

// SetAt writes an indexed attribute at an explicit selector.
func (r *Registry) SetAt(path Path, sel Selector, value any) error {
	return r.set(path, &sel, value)
}

func (r *Registry) set(path Path, sel *Selector, value any) error {
	d, err := r.Lookup(path)
	if err != nil {
		return err
	}
	if d.Set == nil {
		return fmt.Errorf("%w: %q", ErrReadOnlyAttribute, path)
	}
	idx, err := r.resolve(d, sel)
	if err != nil {
		return err
	}
	if err := d.Set(idx, value); err != nil {
		return err
	}
	for _, affected := range r.affects[path] {
		r.cache.InvalidatePath(affected)
	}
	return nil
}

// GetFloat reads an attribute and coerces the result to float64.
func (r *Registry) GetFloat(path Path) (float64, error) {
	v, err := r.Get(path)
	if err != nil {
		return 0, err
	}
	return coerceFloat(path, v)
}

// GetBool reads an attribute and coerces the result to bool.
func (r *Registry) GetBool(path Path) (bool, error) {
	v, err := r.Get(path)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: attribute %q holds %T, want bool", ErrProtocol, path, v)
	}
	return b, nil
}

// GetString reads an attribute and coerces the result to string.
func (r *Registry) GetString(path Path) (string, error) {
	v, err := r.Get(path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: attribute %q holds %T, want string", ErrProtocol, path, v)
	}
	return s, nil
}

func coerceFloat(path Path, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: attribute %q holds %T, want float", ErrProtocol, path, v)
	}
}

// Describe enumerates every registered attribute in registration order.
func (r *Registry) Describe() []Info {
	out := make([]Info, 0, len(r.order))
	for _, p := range r.order {
		d := r.attrs[p]
		out = append(out, Info{
			Path:     d.Path,
			Group:    d.Group,
			Indexed:  d.Indexed(),
			Writable: d.Set != nil,
			Doc:      d.Doc,
		})
	}
	return out
}

// Len reports the number of registered attributes.
func (r *Registry) Len() int {
	return len(r.order)
}
