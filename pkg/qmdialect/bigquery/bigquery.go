// Package bigquery registers the BigQuery lowering table: TIMESTAMP_TRUNC
// for granularity, FORMAT_TIMESTAMP for textual rendering, and BigQuery's
// `INTERVAL n UNIT` literal syntax.
package bigquery

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmexpr"
)

type dialect struct{}

func init() {
	qmdialect.Register(dialect{})
}

func (dialect) Name() qmdialect.Name { return qmdialect.BigQuery }

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
		return "", fmt.Errorf("bigquery: unsupported granularity unit %q", unit)
	}
	return fmt.Sprintf("TIMESTAMP_TRUNC(%s, %s)", operandSQL, kw), nil
}

func (dialect) FormatTimestamp(operandSQL string, layout string) (string, error) {
	// BigQuery's FORMAT_TIMESTAMP already uses strftime-style tokens.
	return fmt.Sprintf("FORMAT_TIMESTAMP('%s', %s)", layout, operandSQL), nil
}

var intervalUnitWord = map[qmexpr.IntervalUnit]string{
	qmexpr.UnitSeconds: "SECOND",
	qmexpr.UnitMinutes: "MINUTE",
	qmexpr.UnitHours:   "HOUR",
	qmexpr.UnitDays:    "DAY",
	qmexpr.UnitWeeks:   "WEEK", // BigQuery lacks a WEEK interval unit; folded to 7 DAY below
	qmexpr.UnitMonths:  "MONTH",
	qmexpr.UnitYears:   "YEAR",
}

func (dialect) IntervalLiteral(unit qmexpr.IntervalUnit, num int) (string, error) {
	if unit == qmexpr.UnitWeeks {
		return fmt.Sprintf("INTERVAL %d DAY", num*7), nil
	}
	word, ok := intervalUnitWord[unit]
	if !ok {
		return "", fmt.Errorf("bigquery: unsupported interval unit %q", unit)
	}
	return fmt.Sprintf("INTERVAL %d %s", num, word), nil
}

func (dialect) QuoteIdentifier(id string) string {
	return "`" + id + "`"
}
