package qmsource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
)

func TestChainBaseWalksBackToLeaf(t *testing.T) {
	leaf := Table("orders")
	filtered := NewFilter(leaf, qmexpr.Eq(qmexpr.Column("status"), qmexpr.Value(qmexpr.StrLiteral("paid"))))
	limited := NewLimit(filtered, 10)

	assert.Equal(t, "filter", limited.Base().Kind())
	assert.Equal(t, "tableName", limited.Base().Base().Kind())
	assert.Nil(t, leaf.Base(), "expected leaf source to have a nil base")
}

func TestMatchStepsBuilderChaining(t *testing.T) {
	schema := qmmodel.ActivitySchema{Group: "user_id", Timestamp: "occurred_at", EventKey: "event_name"}
	m := NewMatchSteps(Table("events"), schema, "signup", "purchase").
		WithinWindow(3600).
		StartingWith("signup")

	require.True(t, m.HasWithin)
	assert.Equal(t, int64(3600), m.WithinSeconds)
	require.True(t, m.HasStartsWith)
	assert.Equal(t, "signup", m.StartsWith)
	assert.Len(t, m.Steps, 2)
}

func TestAggregateWithHaving(t *testing.T) {
	agg := NewAggregate(Table("orders"), nil, []qmmodel.Expression{
		qmexpr.Func("count", qmexpr.Column("id")),
	}).WithHaving(qmexpr.Gt(qmexpr.Func("count", qmexpr.Column("id")), qmexpr.Value(qmexpr.IntLiteral(5))))

	assert.True(t, agg.HasHaving)
}
