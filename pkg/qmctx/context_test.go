package qmctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmconf"
)

func TestNextAliasNameAvoidsCollisionsAndReservedSubstrings(t *testing.T) {
	ctx := New(nil, qmconf.DefaultSettings(), nil)
	ctx.AddReservedName("secret", true)

	first := ctx.NextAliasName("users")
	second := ctx.NextAliasName("users")
	assert.NotEqual(t, first, second, "expected distinct aliases")

	got := ctx.NextAliasName("has_secret_inside")
	assert.NotEqual(t, "has_secret_inside", got, "expected a reserved-substring collision to be avoided")
}

func TestAliasCheckpointRoundTrip(t *testing.T) {
	ctx := New(nil, qmconf.DefaultSettings(), nil)
	key := StableHash([]byte("some-canonical-source-bytes"))

	_, _, ok := ctx.GetAliasCheckpoint(key)
	require.False(t, ok, "expected no checkpoint before registration")

	ctx.AddAliasCheckpoint(key, "cte_1", map[string]string{"id": "int"})

	ref, cols, ok := ctx.GetAliasCheckpoint(key)
	require.True(t, ok)
	assert.Equal(t, "cte_1", ref)
	assert.Equal(t, "int", cols["id"])
}

func TestForkCTENamesPrefixesChildButNotParent(t *testing.T) {
	parent := New(nil, qmconf.DefaultSettings(), nil)
	child := parent.ForkCTENames("join_orders")

	childName := child.NextCTEName()
	parentName := parent.NextCTEName()

	assert.NotEqual(t, childName, parentName, "expected forked context to produce differently-prefixed names")
}

func TestExecutionErrorHandlersTriedNewestFirst(t *testing.T) {
	ctx := New(nil, qmconf.DefaultSettings(), nil)
	ctx.RegisterExecutionErrorHandler(func(err error) (string, bool) { return "older", true })
	ctx.RegisterExecutionErrorHandler(func(err error) (string, bool) { return "newer", true })

	msg, ok := ctx.ExplainExecutionError(nil)
	require.True(t, ok)
	assert.Equal(t, "newer", msg, "expected the most recently registered handler to win")
}

func TestLayerDerivedRules(t *testing.T) {
	ctx := New(nil, qmconf.DefaultSettings(), nil)
	l := NewLayer(ctx, "orders", 1)

	assert.True(t, l.CanAggregate())
	assert.True(t, l.CanSetSelections())
	assert.False(t, l.NeedsColumnDisambiguation())

	l.HasSelections = true
	assert.False(t, l.CanAggregate())
	assert.False(t, l.CanSetSelections())

	l.IsJoined = true
	l.HasSelections = false
	assert.True(t, l.NeedsColumnDisambiguation(), "expected a joined, non-aggregated layer to need disambiguation")
}

func TestFinalizeHandlersRunOnceInFIFOOrder(t *testing.T) {
	ctx := New(nil, qmconf.DefaultSettings(), nil)
	l := NewLayer(ctx, "orders", 1)

	var order []int
	l.AddFinalizeHandler(func(*QueryLayer) error { order = append(order, 1); return nil })
	l.AddFinalizeHandler(func(*QueryLayer) error { order = append(order, 2); return nil })

	require.NoError(t, l.Finalized())
	require.NoError(t, l.Finalized())
	assert.Equal(t, []int{1, 2}, order, "expected handlers to run exactly once each in order")
}

func TestReflectionCacheBackendSelection(t *testing.T) {
	settings := qmconf.DefaultSettings()
	settings.ReflectionCache = qmconf.CacheBackendTTL
	ctx := New(nil, settings, nil)

	_, ok := ctx.reflectionCache.(*ttlReflectionCache)
	assert.True(t, ok, "expected CacheBackendTTL to select the TTL-backed reflection cache")

	ctx.reflectionCache.Store("select 1", map[string]string{"one": "int"})
	cols, ok := ctx.reflectionCache.Load("select 1")
	require.True(t, ok)
	assert.Equal(t, "int", cols["one"])
}
