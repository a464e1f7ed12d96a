// Package qmdialect holds the per-target-warehouse lowering tables: how
// to truncate a timestamp to a calendar granularity, how to format one as
// text, how to express an interval literal, and what capabilities a given
// SQL dialect supports. Concrete dialects register themselves from an
// init() function, mirroring the registry pattern the base client uses
// for its own per-database SQL variants.
package qmdialect

import (
	"fmt"
	"sync"

	"github.com/fj1981/modelsql/pkg/qmexpr"
)

// Name identifies a supported target dialect.
type Name string

const (
	BigQuery   Name = "bigquery"
	Snowflake  Name = "snowflake"
	Redshift   Name = "redshift"
	Postgres   Name = "postgres"
	DuckDB     Name = "duckdb"
	MySQL      Name = "mysql"
	ClickHouse Name = "clickhouse"
	Databricks Name = "databricks"
	Athena     Name = "athena"
)

// Capabilities describes what a dialect can and cannot do. Of these
// fields only ListAggMaxLen is read by the compiler (qmfunnel uses it
// for its LISTAGG overflow handler); the others are informational.
type Capabilities struct {
	SupportsFullOuterJoin bool
	SupportsListAgg       bool
	// ListAggMaxLen is the maximum character length the dialect's
	// string-aggregation function can return, 0 meaning unbounded.
	// Redshift's LISTAGG caps at 65535; most others are unbounded.
	ListAggMaxLen     int
	SupportsRegexExtract bool
	QuoteChar         string
}

// Dialect is the interface a concrete per-warehouse package implements
// and registers via Register.
type Dialect interface {
	Name() Name
	Capabilities() Capabilities
	// TruncateTimestamp lowers a Granularity node: given a SQL fragment
	// that evaluates to a timestamp, return the SQL fragment that
	// truncates it to unit.
	TruncateTimestamp(operandSQL string, unit qmexpr.GranularityUnit) (string, error)
	// FormatTimestamp lowers a FormatTimestamp node: given a SQL
	// fragment evaluating to a timestamp and a strftime-style layout,
	// return the dialect's native formatting expression.
	FormatTimestamp(operandSQL string, layout string) (string, error)
	// IntervalLiteral renders a (unit, num) interval as a SQL fragment
	// usable in `<datetime> + <interval>` arithmetic.
	IntervalLiteral(unit qmexpr.IntervalUnit, num int) (string, error)
	// QuoteIdentifier quotes a bare identifier for safe use in generated
	// SQL text.
	QuoteIdentifier(id string) string
}

var (
	mu       sync.RWMutex
	registry = map[Name]Dialect{}
)

// Register adds d to the registry, keyed by d.Name(). Called from each
// concrete dialect package's init().
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name()] = d
}

// Get looks up a registered dialect by name.
func Get(name Name) (Dialect, bool) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

// MustGet panics if name isn't registered — used by tests and by call
// sites that have already validated the name came from a Supported()
// list.
func MustGet(name Name) Dialect {
	d, ok := Get(name)
	if !ok {
		panic(fmt.Sprintf("qmdialect: dialect %q not registered", name))
	}
	return d
}

// Supported lists every registered dialect name.
func Supported() []Name {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Name, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}
