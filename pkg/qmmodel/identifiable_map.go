package qmmodel

// Identifiable is implemented by anything that can live inside an
// IdentifiableMap — ColumnExpression and Namespace both satisfy it.
type Identifiable interface {
	EffectiveIdentifier() (Identifier, bool)
}

// IdentifiableMap is an insertion-ordered collection keyed by each
// element's identifier, with upsert semantics: Put replaces the value at
// an existing key in place (preserving its original position) or appends
// a new key at the end. Grounded on the infrakit DatabaseClient/registry
// map-plus-order idiom (pkg/cydb's sqlFuncMap-style registries), adapted
// here to an ordered, generic, immutable-on-copy container.
type IdentifiableMap[T Identifiable] struct {
	order  []Identifier
	values map[Identifier]T
}

// NewIdentifiableMap returns an empty map.
func NewIdentifiableMap[T Identifiable]() *IdentifiableMap[T] {
	return &IdentifiableMap[T]{values: map[Identifier]T{}}
}

// Put inserts or replaces v under its effective identifier. Returns false
// (no-op) if v has no identifier.
func (m *IdentifiableMap[T]) Put(v T) bool {
	id, ok := v.EffectiveIdentifier()
	if !ok {
		return false
	}
	if _, exists := m.values[id]; !exists {
		m.order = append(m.order, id)
	}
	m.values[id] = v
	return true
}

// PutAs inserts or replaces v under an explicit key, independent of its
// own effective identifier — used when registering under a manually-set
// alias.
func (m *IdentifiableMap[T]) PutAs(id Identifier, v T) {
	if _, exists := m.values[id]; !exists {
		m.order = append(m.order, id)
	}
	m.values[id] = v
}

// Get looks up by identifier.
func (m *IdentifiableMap[T]) Get(id Identifier) (T, bool) {
	v, ok := m.values[id]
	return v, ok
}

// Delete removes an entry, preserving the remaining order.
func (m *IdentifiableMap[T]) Delete(id Identifier) {
	if _, ok := m.values[id]; !ok {
		return
	}
	delete(m.values, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len reports the number of entries.
func (m *IdentifiableMap[T]) Len() int { return len(m.order) }

// Keys returns the identifiers in insertion order.
func (m *IdentifiableMap[T]) Keys() []Identifier {
	out := make([]Identifier, len(m.order))
	copy(out, m.order)
	return out
}

// Values returns the elements in insertion order.
func (m *IdentifiableMap[T]) Values() []T {
	out := make([]T, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.values[k])
	}
	return out
}

// Clone performs a shallow copy: a fresh backing map/order slice holding
// the same element values. Builder methods on Model rely on this to
// return copies without mutating the source map they started from.
func (m *IdentifiableMap[T]) Clone() *IdentifiableMap[T] {
	out := &IdentifiableMap[T]{
		order:  make([]Identifier, len(m.order)),
		values: make(map[Identifier]T, len(m.values)),
	}
	copy(out.order, m.order)
	for k, v := range m.values {
		out.values[k] = v
	}
	return out
}
