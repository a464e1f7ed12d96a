// Package mysql registers the MySQL lowering table. MySQL has no
// date_trunc function, so granularity is expressed per-unit via DATE_SUB
// and DATE_FORMAT combinations, the way hand-written MySQL reporting
// queries usually do it.
package mysql

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.MySQL }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: false,
		SupportsListAgg:       true,
		SupportsRegexExtract:  true,
		QuoteChar:             "`",
	}
}

func (dialect) TruncateTimestamp(operandSQL string, unit qmexpr.GranularityUnit) (string, error) {
	switch unit {
	case qmexpr.GranSecond:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:%%s')", operandSQL), nil
	case qmexpr.GranMinute:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:00')", operandSQL), nil
	case qmexpr.GranHour:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", operandSQL), nil
	case qmexpr.GranDay:
		return fmt.Sprintf("DATE(%s)", operandSQL), nil
	case qmexpr.GranWeek:
		return fmt.Sprintf("DATE_SUB(DATE(%s), INTERVAL WEEKDAY(%s) DAY)", operandSQL, operandSQL), nil
	case qmexpr.GranMonth:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-01')", operandSQL), nil
	case qmexpr.GranQuarter:
		return fmt.Sprintf("MAKEDATE(YEAR(%s), 1) + INTERVAL (QUARTER(%s) - 1) QUARTER", operandSQL, operandSQL), nil
	case qmexpr.GranYear:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-01-01')", operandSQL), nil
	}
	return "", fmt.Errorf("mysql: unsupported granularity unit %q", unit)
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
	return fmt.Sprintf("DATE_FORMAT(%s, '%s')", operandSQL, native), nil
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
		return "", fmt.Errorf("mysql: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL %d %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return "`" + id + "`"
}
