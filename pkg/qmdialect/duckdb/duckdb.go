// Package duckdb registers the DuckDB lowering table: date_trunc for
// granularity, strftime for formatting, and the standard
// `INTERVAL n unit` literal syntax.
package duckdb

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.DuckDB }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: true,
		SupportsListAgg:       true,
		SupportsRegexExtract:  true,
		QuoteChar:             `"`,
	}
}

var granularityKeyword = map[qmexpr.GranularityUnit]string{
	qmexpr.GranSecond:  "second",
	qmexpr.GranMinute:  "minute",
	qmexpr.GranHour:    "hour",
	qmexpr.GranDay:     "day",
	qmexpr.GranWeek:    "week",
	qmexpr.GranMonth:   "month",
	qmexpr.GranQuarter: "quarter",
	qmexpr.GranYear:    "year",
}

func (dialect) TruncateTimestamp(operandSQL string, unit qmexpr.GranularityUnit) (string, error) {
	kw, ok := granularityKeyword[unit]
	if !ok {
		return "", fmt.Errorf("duckdb: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("date_trunc('%s', %s)", kw, operandSQL), nil
}

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	// DuckDB's strftime already uses strftime-style tokens natively.
	return fmt.Sprintf("strftime(%s, '%s')", operandSQL, layout), nil
}

var intervalUnitWord = map[qmexpr.IntervalUnit]string{
	qmexpr.UnitSeconds: "SECOND",
	qmexpr.UnitMinutes: "MINUTE",
	qmexpr.UnitHours:   "HOUR",
	qmexpr.UnitDays:    "DAY",
	qmexpr.UnitWeeks:   "WEEK",
	qmexpr.UnitMonths:  "MONTH",
	qmexpr.UnitYears:   "YEAR",
}

func (dialect) IntervalLiteral(unit qmexpr.IntervalUnit, num int) (string, error) {
	word, ok := intervalUnitWord[unit]
	if !ok {
		return "", fmt.Errorf("duckdb: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL %d %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return `"` + id + `"`
}
