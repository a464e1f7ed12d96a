// Package databricks registers the Databricks SQL (Spark SQL) lowering
// table: date_trunc for granularity, date_format for formatting with
// Java-style pattern tokens, and the `INTERVAL n UNITS` literal syntax.
package databricks

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.Databricks }

func (dialect) Capabilities() qmdialect.Capabilities {
	return qmdialect.Capabilities{
		SupportsFullOuterJoin: true,
		SupportsListAgg:       true,
		SupportsRegexExtract:  true,
		QuoteChar:             "`",
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
		return "", fmt.Errorf("databricks: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("date_trunc('%s', %s)", kw, operandSQL), nil
}

// javaDateTokens translates strftime tokens into Spark SQL's
// Java-SimpleDateFormat-derived pattern letters.
var javaDateTokens = map[string]string{
	"%Y": "yyyy",
	"%m": "MM",
	"%d": "dd",
	"%H": "HH",
	"%M": "mm",
	"%S": "ss",
}

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	native := qmdialect.TranslateStrftime(layout, javaDateTokens)
	return fmt.Sprintf("date_format(%s, '%s')", operandSQL, native), nil
}

var intervalUnitWord = map[qmexpr.IntervalUnit]string{
	qmexpr.UnitSeconds: "SECONDS",
	qmexpr.UnitMinutes: "MINUTES",
	qmexpr.UnitHours:   "HOURS",
	qmexpr.UnitDays:    "DAYS",
	qmexpr.UnitWeeks:   "WEEKS",
	qmexpr.UnitMonths:  "MONTHS",
	qmexpr.UnitYears:   "YEARS",
}

func (dialect) IntervalLiteral(unit qmexpr.IntervalUnit, num int) (string, error) {
	word, ok := intervalUnitWord[unit]
	if !ok {
		return "", fmt.Errorf("databricks: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL %d %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return "`" + id + "`"
}
