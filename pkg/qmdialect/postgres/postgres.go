// Package postgres registers the PostgreSQL lowering table: date_trunc
// for granularity, to_char for timestamp formatting, and the standard
// `INTERVAL 'n unit'` literal syntax Redshift also inherits.
package postgres

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.Postgres }

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
		return "", fmt.Errorf("postgres: unsupported granularity unit %q", unit)
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
		return "", fmt.Errorf("postgres: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL '%d %s'", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return `"` + id + `"`
}
