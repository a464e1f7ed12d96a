// Package clickhouse registers the ClickHouse lowering table. ClickHouse
// has no single date_trunc function; each granularity maps to its own
// toStartOf* builtin, and formatting goes through formatDateTime with
// MySQL-style tokens.
package clickhouse

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.ClickHouse }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: false,
		SupportsListAgg:       true,
		SupportsRegexExtract:  true,
		QuoteChar:             "`",
	}
}

var truncFunc = map[qmexpr.GranularityUnit]string{
	qmexpr.GranSecond:  "toStartOfSecond",
	qmexpr.GranMinute:  "toStartOfMinute",
	qmexpr.GranHour:    "toStartOfHour",
	qmexpr.GranDay:     "toStartOfDay",
	qmexpr.GranWeek:    "toStartOfWeek",
	qmexpr.GranMonth:   "toStartOfMonth",
	qmexpr.GranQuarter: "toStartOfQuarter",
	qmexpr.GranYear:    "toStartOfYear",
}

func (dialect) TruncateTimestamp(operandSQL string, unit qmexpr.GranularityUnit) (string, error) {
	fn, ok := truncFunc[unit]
	if !ok {
		return "", fmt.Errorf("clickhouse: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("%s(%s)", fn, operandSQL), nil
}

var strftimeTokens = qmdialect.MergeTokens(qmdialect.DefaultStrftimeTokens, map[string]string{
	"%Y": "%Y",
	"%m": "%m",
	"%d": "%d",
	"%H": "%H",
	"%M": "%i",
	"%S": "%S",
})

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	native := qmdialect.TranslateStrftime(layout, strftimeTokens)
	return fmt.Sprintf("formatDateTime(%s, '%s')", operandSQL, native), nil
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
		return "", fmt.Errorf("clickhouse: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL %d %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return "`" + id + "`"
}
