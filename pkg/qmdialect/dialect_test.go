package qmdialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/athena"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/bigquery"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/clickhouse"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/databricks"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/duckdb"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/mysql"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/postgres"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/redshift"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/snowflake"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

func TestAllNineDialectsRegister(t *testing.T) {
	want := []qmdialect.Name{
		qmdialect.BigQuery, qmdialect.Snowflake, qmdialect.Redshift, qmdialect.Postgres,
		qmdialect.DuckDB, qmdialect.MySQL, qmdialect.ClickHouse, qmdialect.Databricks, qmdialect.Athena,
	}
	for _, n := range want {
		_, ok := qmdialect.Get(n)
		assert.True(t, ok, "expected dialect %q to be registered", n)
	}
	assert.Len(t, qmdialect.Supported(), len(want))
}

func TestTruncateTimestampPerDialect(t *testing.T) {
	cases := []struct {
		name qmdialect.Name
		want string
	}{
		{qmdialect.Postgres, "date_trunc('month', ts)"},
		{qmdialect.BigQuery, "TIMESTAMP_TRUNC(ts, MONTH)"},
		{qmdialect.MySQL, "DATE_FORMAT(ts, '%Y-%m-01')"},
		{qmdialect.ClickHouse, "toStartOfMonth(ts)"},
	}
	for _, c := range cases {
		d := qmdialect.MustGet(c.name)
		got, err := d.TruncateTimestamp("ts", qmexpr.GranMonth)
		require.NoError(t, err, c.name)
		assert.Equal(t, c.want, got, c.name)
	}
}

func TestRedshiftListAggCapability(t *testing.T) {
	d := qmdialect.MustGet(qmdialect.Redshift)
	caps := d.Capabilities()
	assert.Equal(t, 65535, caps.ListAggMaxLen)
}

func TestIntervalLiteralUnsupportedUnit(t *testing.T) {
	d := qmdialect.MustGet(qmdialect.Postgres)
	_, err := d.IntervalLiteral("fortnight", 1)
	assert.Error(t, err, "expected an error for an unrecognized interval unit")
}
