package qmfunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/fj1981/modelsql/pkg/qmdialect/clickhouse"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/postgres"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/redshift"

	"github.com/fj1981/modelsql/pkg/qmconf"
	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmsource"
)

func newContext(t *testing.T, dialect qmdialect.Name) *qmctx.QueryContext {
	t.Helper()
	d, ok := qmdialect.Get(dialect)
	require.True(t, ok, "dialect %q not registered", dialect)
	return qmctx.New(d, qmconf.Settings{}, nil)
}

func sampleSchema() qmmodel.ActivitySchema {
	return qmmodel.ActivitySchema{Group: "user_id", Timestamp: "occurred_at", EventKey: "event_name"}
}

func sampleMatchSteps() qmsource.MatchSteps {
	return qmsource.NewMatchSteps(qmsource.Table("events"), sampleSchema(), "signup", "activate", "purchase")
}

func TestExpandRejectsTooManySteps(t *testing.T) {
	steps := make([]string, MaxSteps+1)
	for i := range steps {
		steps[i] = "step"
	}
	ms := qmsource.NewMatchSteps(qmsource.Table("events"), sampleSchema(), steps...)

	cc := newContext(t, qmdialect.Postgres)
	_, err := Expand(cc, ms)
	assert.Error(t, err, "expected an error for a funnel exceeding MaxSteps")
}

func TestExpandRejectsNonTableBase(t *testing.T) {
	ms := qmsource.NewMatchSteps(qmsource.Raw("SELECT * FROM events"), sampleSchema(), "signup")

	cc := newContext(t, qmdialect.Postgres)
	_, err := Expand(cc, ms)
	assert.Error(t, err, "expected an error when the funnel base isn't a direct table reference")
}

func TestExpandProducesRawSourceWithPerStepColumns(t *testing.T) {
	cc := newContext(t, qmdialect.Postgres)
	node, err := Expand(cc, sampleMatchSteps())
	require.NoError(t, err)

	raw, ok := node.(qmsource.SqlText)
	require.True(t, ok, "expected a SqlText source, got %T", node)

	assert.Contains(t, raw.Text, "step_0_event_index")
	assert.Contains(t, raw.Text, "step_2_event_index")
	assert.Contains(t, raw.Text, "STRING_AGG")
}

func TestExpandRegistersRedshiftListAggHandler(t *testing.T) {
	cc := newContext(t, qmdialect.Redshift)
	_, err := Expand(cc, sampleMatchSteps())
	require.NoError(t, err)

	msg, ok := cc.ExplainExecutionError(errListAggOverflow{})
	require.True(t, ok, "expected the redshift LISTAGG overflow handler to be registered")
	assert.Contains(t, msg, "65535")
}

type errListAggOverflow struct{}

func (errListAggOverflow) Error() string { return "Result size exceeds LISTAGG limit" }

func TestExpandWithinWindowEnforcesTimeLimitInFinalSelect(t *testing.T) {
	cc := newContext(t, qmdialect.Postgres)
	ms := sampleMatchSteps().WithinWindow(3600)

	node, err := Expand(cc, ms)
	require.NoError(t, err)
	raw, ok := node.(qmsource.SqlText)
	require.True(t, ok)

	assert.Contains(t, raw.Text, "EXTRACT(EPOCH")
	assert.Contains(t, raw.Text, "> 3600 THEN NULL")
}

func TestExpandWithinWindowOnClickHouseUsesDedicatedCheckedCTE(t *testing.T) {
	cc := newContext(t, qmdialect.ClickHouse)
	ms := sampleMatchSteps().WithinWindow(60)

	node, err := Expand(cc, ms)
	require.NoError(t, err)
	raw, ok := node.(qmsource.SqlText)
	require.True(t, ok)

	assert.Contains(t, raw.Text, "step_1_checked AS")
	assert.Contains(t, raw.Text, "step_2_checked AS")
	assert.Contains(t, raw.Text, "LEFT JOIN step_1_checked")
}

func TestExpandPartitionedByAddsStartFloorCTE(t *testing.T) {
	cc := newContext(t, qmdialect.Postgres)
	ms := sampleMatchSteps().
		StartingWith("signup").
		PartitionedBy(qmexpr.Column("campaign_id"))

	node, err := Expand(cc, ms)
	require.NoError(t, err)
	raw, ok := node.(qmsource.SqlText)
	require.True(t, ok)

	assert.Contains(t, raw.Text, "start_floor AS")
	assert.Contains(t, raw.Text, "campaign_id")
	assert.Contains(t, raw.Text, "JOIN start_floor f")
}

func TestExpandPartitionedByRejectsComputedExpression(t *testing.T) {
	cc := newContext(t, qmdialect.Postgres)
	ms := sampleMatchSteps().PartitionedBy(qmexpr.Value(qmexpr.StrLiteral("x")))

	_, err := Expand(cc, ms)
	assert.Error(t, err, "expected a non-column partition expression to be rejected")
}
