// Package redshift registers the Redshift lowering table. Redshift's SQL
// surface descends from PostgreSQL for date_trunc/to_char/interval
// syntax, but its LISTAGG caps output at 65,535 characters — callers of
// the funnel's journey-hash aggregation must register an execution-error
// handler for truncation past that limit.
package redshift

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

// ListAggMaxLen is Redshift's maximum LISTAGG result length, in
// characters.
const ListAggMaxLen = 65535

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.Redshift }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: true,
		SupportsListAgg:       true,
		ListAggMaxLen:         ListAggMaxLen,
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
		return "", fmt.Errorf("redshift: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("date_trunc('%s', %s)", kw, operandSQL), nil
}

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	native := qmdialect.TranslateStrftime(layout, qmdialect.DefaultStrftimeTokens)
	return fmt.Sprintf("to_char(%s, '%s')", operandSQL, native), nil
}

var intervalUnitWord = map[qmexpr.IntervalUnit]string{
	qmexpr.UnitSeconds: "seconds",
	qmexpr.UnitMinutes: "minutes",
	qmexpr.UnitHours:   "hours",
	qmexpr.UnitDays:    "days",
	qmexpr.UnitWeeks:   "weeks",
	qmexpr.UnitMonths:  "months",
	qmexpr.UnitYears:   "years",
}

func (dialect) IntervalLiteral(unit qmexpr.IntervalUnit, num int) (string, error) {
	word, ok := intervalUnitWord[unit]
	if !ok {
		return "", fmt.Errorf("redshift: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL '%d %s'", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return `"` + id + `"`
}
