// Package athena registers the Athena (Trino/Presto SQL) lowering table:
// date_trunc for granularity, date_format for formatting with MySQL-style
// tokens, and Trino's `INTERVAL 'n' UNIT` literal syntax.
package athena

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.Athena }

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
		return "", fmt.Errorf("athena: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("date_trunc('%s', %s)", kw, operandSQL), nil
}

var strftimeTokens = qmdialect.MergeTokens(qmdialect.DefaultStrftimeTokens, map[string]string{
	"%Y": "%Y",
	"%m": "%m",
	"%d": "%d",
	"%H": "%H",
	"%M": "%i",
	"%S": "%s",
})

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	native := qmdialect.TranslateStrftime(layout, strftimeTokens)
	return fmt.Sprintf("date_format(%s, '%s')", operandSQL, native), nil
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
		return "", fmt.Errorf("athena: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL '%d' %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return `"` + id + `"`
}
