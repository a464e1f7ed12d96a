package qmkeypath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoot struct {
	props map[string]any
}

func (r *fakeRoot) ApplyProperty(name string) (any, error) {
	if v, ok := r.props[name]; ok {
		return v, nil
	}
	return nil, errors.New("no such property: " + name)
}

func (r *fakeRoot) ApplySubscript(key any) (any, error) {
	k, _ := key.(string)
	return r.ApplyProperty(k)
}

func (r *fakeRoot) ApplyCall(args []any, kwargs map[string]any, ctx *Ctx) (any, error) {
	return "called", nil
}

func TestResolveProperty(t *testing.T) {
	root := &fakeRoot{props: map[string]any{"name": "alice"}}
	kp := Root().Prop("name")
	v, err := Resolve(root, kp)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
}

func TestResolveChainedAndCall(t *testing.T) {
	root := &fakeRoot{props: map[string]any{"greet": &fakeRoot{}}}
	kp := Root().Prop("greet").Call(nil, nil, false)
	v, err := Resolve(root, kp)
	require.NoError(t, err)
	assert.Equal(t, "called", v)
}

func TestResolveNonKeyPathPassesThrough(t *testing.T) {
	v, err := Resolve(nil, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestResolveAllNestedExpandsIterItem(t *testing.T) {
	root := &fakeRoot{props: map[string]any{"names": []any{"a", "b"}}}
	kp := Root().Prop("names")
	iik := IterItemKeyPath{Source: kp}
	v, err := ResolveAllNested(root, []any{iik, "literal"})
	require.NoError(t, err)
	list, ok := v.([]any)
	require.True(t, ok)
	assert.Len(t, list, 3)
}

func TestDeferKeypathArgs(t *testing.T) {
	kp := Root().Prop("x")
	bound, deferred := DeferKeypathArgs(func() {}, []any{kp}, nil)
	require.True(t, deferred, "expected deferral when a KeyPath argument is present")
	_, ok := bound.(BoundKeyPath)
	assert.True(t, ok, "expected BoundKeyPath, got %T", bound)

	_, deferred2 := DeferKeypathArgs(func() {}, []any{1, "x"}, nil)
	assert.False(t, deferred2, "did not expect deferral without KeyPath arguments")
}
