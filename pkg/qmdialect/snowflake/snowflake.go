// Package snowflake registers the Snowflake lowering table: DATE_TRUNC
// for granularity, TO_CHAR for formatting, and Snowflake's
// `INTERVAL 'n unit'` literal syntax.
package snowflake

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.Snowflake }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: true,
		SupportsListAgg:       true,
		SupportsRegexExtract:  true,
		QuoteChar:             `"`,
	}
}

var granularityKeyword = map[qmexpr.GranularityUnit]string{
	qmexpr.GranSecond:  "SECOND",
	qmexpr.GranMinute:  "MINUTE",
	qmexpr.GranHour:    "HOUR",
	qmexpr.GranDay:     "DAY",
	qmexpr.GranWeek:    "WEEK",
	qmexpr.GranMonth:   "MONTH",
	qmexpr.GranQuarter: "QUARTER",
	qmexpr.GranYear:    "YEAR",
}

func (dialect) TruncateTimestamp(operandSQL string, unit qmexpr.GranularityUnit) (string, error) {
	kw, ok := granularityKeyword[unit]
	if !ok {
		return "", fmt.Errorf("snowflake: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("DATE_TRUNC('%s', %s)", kw, operandSQL), nil
}

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	native := qmdialect.TranslateStrftime(layout, qmdialect.DefaultStrftimeTokens)
	return fmt.Sprintf("TO_CHAR(%s, '%s')", operandSQL, native), nil
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
		return "", fmt.Errorf("snowflake: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL '%d %s'", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return `"` + id + `"`
}
