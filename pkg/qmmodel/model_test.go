package qmmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExpr struct {
	id Identifier
}

func (f fakeExpr) EffectiveIdentifier() (Identifier, bool) { return f.id, f.id != "" }
func (f fakeExpr) Kind() string                            { return "fake" }
func (f fakeExpr) ManualIdentifier() (Identifier, bool)    { return f.id, f.id != "" }
func (f fakeExpr) DefaultIdentifier() (Identifier, bool)   { return "", false }
func (f fakeExpr) Disambiguated(ns string) Expression      { return f }
func (f fakeExpr) Fields() []string                        { return []string{string(f.id)} }

type fakeSource struct{ base SourceNode }

func (f fakeSource) Kind() string     { return "fake" }
func (f fakeSource) Base() SourceNode { return f.base }

func TestIdentifierReserved(t *testing.T) {
	assert.True(t, Identifier("__step_hash_id__").IsReserved())
	assert.False(t, Identifier("count").IsReserved())
}

func TestIdentifiableMapUpsertPreservesOrder(t *testing.T) {
	m := NewIdentifiableMap[Expression]()
	m.Put(fakeExpr{id: "a"})
	m.Put(fakeExpr{id: "b"})
	m.Put(fakeExpr{id: "a"}) // upsert, should not move position
	keys := m.Keys()
	assert.Equal(t, []Identifier{"a", "b"}, keys)
}

func TestModelCloneIsIndependent(t *testing.T) {
	src := fakeSource{}
	m := NewModel(NewConnectionHandle(nil), src)
	m.Attributes.Put(fakeExpr{id: "x"})

	clone := m.Clone()
	clone.Attributes.Put(fakeExpr{id: "y"})

	assert.Equal(t, 1, m.Attributes.Len(), "mutating the clone's attributes must not affect the original")
	assert.Equal(t, 2, clone.Attributes.Len())
}
