package qm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmconf"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/postgres"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmsource"
)

func postgresDialect(t *testing.T) qmdialect.Dialect {
	t.Helper()
	d, ok := qmdialect.Get(qmdialect.Postgres)
	require.True(t, ok, "postgres dialect not registered")
	return d
}

func TestTableFilterSortLimitCompiles(t *testing.T) {
	m := Table("events").
		Filter(qmexpr.Eq(qmexpr.Column("status"), qmexpr.Value(qmexpr.StrLiteral("active")))).
		Sort(qmsource.SortKey{Expr: qmexpr.Column("created_at"), Direction: qmsource.Desc}).
		Limit(10)

	result, err := m.Sql(postgresDialect(t), qmconf.Settings{}, nil)
	require.NoError(t, err)
	assert.True(t, result.Compile.OK)
	assert.Contains(t, result.Compile.QueryText, "events")
	assert.Contains(t, result.Compile.QueryText, "LIMIT 10")
	assert.Empty(t, result.Compile.Errors)
}

func TestHavingWithoutAggregatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Table("events").Having(qmexpr.Eq(qmexpr.Column("x"), qmexpr.Value(qmexpr.IntLiteral(1))))
	})
}

func TestFunnelWithoutActivitySchemaPanics(t *testing.T) {
	assert.Panics(t, func() {
		Table("events").Funnel("signup", "activate")
	})
}

func TestWithAttributeRejectsReservedIdentifier(t *testing.T) {
	assert.Panics(t, func() {
		Table("events").WithAttribute("__internal__", qmexpr.Column("x"))
	})
}

func TestRefResolverResolvesPlainColumnAttribute(t *testing.T) {
	m := Table("users").WithAttribute("display_name", qmexpr.Column("full_name"))
	resolve := buildRefResolver(m.core)

	got, ok := resolve("display_name")
	require.True(t, ok)
	assert.Equal(t, "full_name", got)

	_, ok = resolve("missing")
	assert.False(t, ok, "expected an unknown attribute to be unresolved")
}

func TestRefResolverResolvesNamespaceQualifiedAttribute(t *testing.T) {
	account := Table("accounts").WithAttribute("name", qmexpr.Column("account_name"))
	m := Table("users").WithJoinOne("account", account, qmexpr.Eq(qmexpr.Column("account_id"), qmexpr.Column("id")))

	resolve := buildRefResolver(m.core)
	got, ok := resolve("account.name")
	require.True(t, ok)
	assert.Equal(t, "account_name", got)
}

func funnelSchema() qmmodel.ActivitySchema {
	return qmmodel.ActivitySchema{Group: "user_id", Timestamp: "occurred_at", EventKey: "event_name"}
}

func TestFunnelRegistersDerivedAttributesAndMeasures(t *testing.T) {
	m := Table("events").WithActivitySchema(funnelSchema()).Funnel("signup", "activate", "purchase")

	_, ok := m.core.Attributes.Get("last_matched_step_name")
	assert.True(t, ok, "expected last_matched_step_name to be registered")
	_, ok = m.core.Attributes.Get("last_matched_step_index")
	assert.True(t, ok, "expected last_matched_step_index to be registered")

	_, ok = m.core.Measures.Get("count")
	assert.True(t, ok, "expected a total count measure")
	for _, step := range []string{"signup", "activate", "purchase"} {
		_, ok := m.core.Measures.Get(qmmodel.Identifier("count_if_" + step))
		assert.True(t, ok, "expected a count_if measure for step %q", step)
	}
}

func TestWithinWindowWithoutFunnelPanics(t *testing.T) {
	assert.Panics(t, func() {
		Table("events").WithinWindow(3600)
	})
}

func TestStartingWithAndPartitionedByCompile(t *testing.T) {
	m := Table("events").WithActivitySchema(funnelSchema()).
		Funnel("signup", "activate").
		StartingWith("signup").
		PartitionedBy(qmexpr.Column("campaign_id")).
		WithinWindow(3600)

	result, err := m.Sql(postgresDialect(t), qmconf.Settings{}, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Compile.QueryText, "start_floor")
	assert.Contains(t, result.Compile.QueryText, "EXTRACT(EPOCH")
}
