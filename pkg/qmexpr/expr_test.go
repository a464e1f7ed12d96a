package qmexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmmodel"
)

func TestColumnDefaultIdentifier(t *testing.T) {
	c := Column("user_id")
	id, ok := c.EffectiveIdentifier()
	require.True(t, ok)
	assert.Equal(t, qmmodel.Identifier("user_id"), id)

	named := c.Named("uid")
	id, ok = named.EffectiveIdentifier()
	require.True(t, ok)
	assert.Equal(t, qmmodel.Identifier("uid"), id)
}

func TestSqlTextHasNoDefaultIdentifier(t *testing.T) {
	s := Sql("count(*)")
	_, ok := s.EffectiveIdentifier()
	assert.False(t, ok, "raw sql text should have no identifier unless named")

	named := s.Named("total")
	id, ok := named.EffectiveIdentifier()
	require.True(t, ok)
	assert.Equal(t, qmmodel.Identifier("total"), id)
}

func TestNotPushdown(t *testing.T) {
	e := Eq(Column("a"), Column("b"))
	negated := Not(e)
	bo, ok := negated.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, OpNeq, bo.Operator)

	and := And(Eq(Column("a"), Column("b")), Lt(Column("c"), Column("d")))
	negatedAnd := Not(and)
	orNode, ok := negatedAnd.(BinaryOp)
	require.True(t, ok)
	assert.Equal(t, OpOr, orNode.Operator, "expected De Morgan's to turn NOT(AND) into OR")
}

func TestPreprocessFoldsDatetimePlusInterval(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	expr := Add(Value(DateTimeLiteral(base)), Value(TimeIntervalLiteral(UnitDays, 3)))

	folded := Preprocess(expr)
	pv, ok := folded.(PyValue)
	require.True(t, ok)
	want := base.AddDate(0, 0, 3)
	assert.True(t, pv.Value.DateTime.Equal(want), "expected %v, got %v", want, pv.Value.DateTime)
}

func TestPreprocessFoldsGranularityOfLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)
	expr := TruncateTo(Value(DateTimeLiteral(ts)), GranMonth)

	folded := Preprocess(expr)
	pv, ok := folded.(PyValue)
	require.True(t, ok)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, pv.Value.DateTime.Equal(want), "expected %v, got %v", want, pv.Value.DateTime)
}

func TestFunctionDefaultIdentifierDerivesFromArgument(t *testing.T) {
	f := Func("sum", Column("revenue"))
	id, ok := f.EffectiveIdentifier()
	require.True(t, ok)
	assert.Equal(t, qmmodel.Identifier("sum_revenue"), id)
}

func TestBinaryOpFieldsCollectsLeafColumns(t *testing.T) {
	expr := And(Eq(Column("a"), Column("b")), Gt(Column("c"), Value(IntLiteral(5))))
	fields := expr.Fields()
	want := map[string]bool{"a": true, "b": true, "c": true}
	require.Len(t, fields, 3)
	for _, f := range fields {
		assert.True(t, want[f], "unexpected field %q", f)
	}
}

func TestDisambiguatedPropagatesIntoNestedExpressions(t *testing.T) {
	var e qmmodel.Expression = Eq(Column("id"), Column("parent_id"))
	qualified := e.Disambiguated("orders")
	bo := qualified.(BinaryOp)
	assert.Equal(t, "orders", bo.Left.(ColumnName).Namespace)
	assert.Equal(t, "orders", bo.Right.(ColumnName).Namespace)
}
