// Package qmfunnel implements the match-steps (funnel) algorithm: given
// a base activity-schema source and an ordered list of named steps, it
// expands a qmsource.MatchSteps node into an ordinary source tree — a
// union of per-step labeled events, a journey-hash computation and one
// extraction CTE per step — that the column-expression/source compiler
// already knows how to render.
package qmfunnel

import (
	"fmt"
	"strings"

	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmerr"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmsource"
)

// stepAlphabet is the 62-character ordered alphabet A-Z a-z 0-9 used to
// label which step an event matched; it bounds a funnel to 62 steps.
const stepAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MaxSteps is the largest funnel this algorithm can express, one
// character of stepAlphabet per step.
const MaxSteps = len(stepAlphabet)

// Expand lowers ms into a plain source tree: one flat row per group
// carrying the event index each step matched at (step_0_event_index,
// step_1_event_index, ...), from which callers derive completion counts
// and the last-matched step via an ordinary Aggregate/Pick on top. Of
// must currently resolve to a physical table — a nested Pick/Filter/etc.
// chain as the funnel's base is not yet supported and reports a clear
// compilation error instead of emitting incorrect SQL. Joining each
// step's index back to its full event row is left to the caller, by
// wrapping the result in JoinOne per step it actually needs.
//
// When ms.HasWithin is set, a step's event index is discarded (treated
// as unmatched) once its timestamp lands more than ms.WithinSeconds
// after step 0's. When ms.PartitionBy/HasStartsWith is set, only events
// at or after the group's earliest start event (ms.StartsWith, else the
// first step) count toward the journey. The result is still one funnel
// per group: a group is not split into one funnel per partition window,
// and the partition columns do not change which events count (see
// buildStartFloorCTE).
func Expand(cc *qmctx.QueryContext, ms qmsource.MatchSteps) (qmmodel.SourceNode, error) {
	if len(ms.Steps) > MaxSteps {
		return nil, qmerr.NewUserCompilationError(qmerr.CodeTooManySteps,
			fmt.Sprintf("funnel has %d steps, at most %d are supported", len(ms.Steps), MaxSteps))
	}
	if len(ms.Steps) == 0 {
		return nil, qmerr.NewUserCompilationError(qmerr.CodeTooManySteps, "funnel requires at least one step")
	}

	table, ok := ms.Of.(qmsource.TableName)
	if !ok {
		return nil, qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken,
			"funnel base source must be a direct table reference")
	}
	tableRef := table.Table
	if table.Schema != "" {
		tableRef = table.Schema + "." + table.Table
	}

	if cc.Dialect == nil {
		return nil, qmerr.NewInternalCompilationError("no dialect configured for funnel compilation")
	}

	journeySQL, extraCTEs, err := buildJourneyHashSQL(cc.Dialect, tableRef, ms)
	if err != nil {
		return nil, err
	}

	registerListAggLimitHandler(cc, cc.Dialect)

	extractionSQL, err := buildStepExtractionSQL(cc.Dialect, ms, journeySQL, extraCTEs)
	if err != nil {
		return nil, err
	}

	return qmsource.Raw(extractionSQL), nil
}

// partitionColumnNames renders ms.PartitionBy as bare column names for
// splicing into raw SQL text: only a plain column reference is
// supported, since the partition floor computed from it is a window
// function PARTITION BY list, not a general expression context. A
// computed expression (a Cases, a SqlFunction) would need its own
// column-expression compilation pass, which the funnel algorithm's
// text-assembly approach does not have access to.
func partitionColumnNames(exprs []qmmodel.Expression) ([]string, error) {
	names := make([]string, len(exprs))
	for i, e := range exprs {
		col, ok := e.(qmexpr.ColumnName)
		if !ok {
			return nil, qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken,
				"funnel partition_by only supports plain column references")
		}
		names[i] = string(col.Column)
	}
	return names, nil
}

// buildStartFloorCTE computes, per group (and, with partitioning, per
// (group, partition) window), the earliest occurrence of the start
// event — ms.StartsWith if set, else the funnel's first step. Only the
// first window a group enters is kept: GROUP BY __group__ at the outer
// level collapses multiple partition windows for the same group down to
// the single earliest one, the scope limitation this implementation
// accepts rather than fanning a group out into one funnel per window.
func buildStartFloorCTE(tableRef string, ms qmsource.MatchSteps) (string, error) {
	startEvent := ms.StartsWith
	if !ms.HasStartsWith {
		startEvent = ms.Steps[0]
	}

	partitionCols, err := partitionColumnNames(ms.PartitionBy)
	if err != nil {
		return "", err
	}
	partitionKey := string(ms.Group)
	if len(partitionCols) > 0 {
		partitionKey = string(ms.Group) + ", " + strings.Join(partitionCols, ", ")
	}

	return fmt.Sprintf(
		`start_floor AS (
			SELECT __group__, MIN(__timestamp__) AS __floor_ts__
			FROM (
				SELECT %s AS __group__, %s AS __timestamp__,
					ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s ASC) AS __partition_rank__
				FROM %s
				WHERE %s = '%s'
			) ranked
			WHERE __partition_rank__ = 1
			GROUP BY __group__
		)`,
		ms.Group, ms.Timestamp, partitionKey, ms.Timestamp, tableRef, ms.EventKey, startEvent,
	), nil
}

// buildJourneyHashSQL renders the per-entity, time-ordered transcript of
// which step(s) each event matched: label each step's filtered rows,
// union them, assign a row-number-based event index (ties broken by
// step-hash-id descending), then aggregate into one journey_hash string
// per group via the dialect's string-aggregation function. When
// ms.PartitionBy/HasStartsWith requests partitioned start events, each
// branch is additionally restricted to events at or after that group's
// start_floor, an extra CTE returned alongside journeySQL for the
// caller to splice into its WITH clause.
func buildJourneyHashSQL(d qmdialect.Dialect, tableRef string, ms qmsource.MatchSteps) (journeySQL string, extraCTEs []string, err error) {
	partitioned := len(ms.PartitionBy) > 0 || ms.HasStartsWith
	if partitioned {
		floorCTE, ferr := buildStartFloorCTE(tableRef, ms)
		if ferr != nil {
			return "", nil, ferr
		}
		extraCTEs = append(extraCTEs, floorCTE)
	}

	var branches []string
	for i, step := range ms.Steps {
		hash := string(stepAlphabet[i])
		var branch string
		if partitioned {
			branch = fmt.Sprintf(
				"SELECT e.%s AS __group__, e.%s AS __timestamp__, '%s' AS __step_hash_id__ FROM %s e JOIN start_floor f ON f.__group__ = e.%s AND e.%s >= f.__floor_ts__ WHERE e.%s = '%s'",
				ms.Group, ms.Timestamp, hash, tableRef, ms.Group, ms.Timestamp, ms.EventKey, step,
			)
		} else {
			branch = fmt.Sprintf(
				"SELECT %s AS __group__, %s AS __timestamp__, '%s' AS __step_hash_id__ FROM %s WHERE %s = '%s'",
				ms.Group, ms.Timestamp, hash, tableRef, ms.EventKey, step,
			)
		}
		branches = append(branches, branch)
	}
	labeled := strings.Join(branches, " UNION ALL ")

	listAgg, err := stringAggExpr(d, "__step_hash_id__", "__timestamp__")
	if err != nil {
		return "", nil, err
	}

	journeySQL = fmt.Sprintf(
		`SELECT __group__, __timestamp__, __step_hash_id__,
			ROW_NUMBER() OVER (PARTITION BY __group__ ORDER BY __timestamp__ ASC, __step_hash_id__ DESC) AS __event_index__,
			%s OVER (PARTITION BY __group__) AS journey_hash
		FROM (%s) labeled_events`,
		listAgg, labeled,
	)
	return journeySQL, extraCTEs, nil
}

// stringAggExpr returns the dialect's ordered string-aggregation window
// expression over valueCol, ordered by orderCol ascending then valueCol
// descending (the tie-break rule step 3 of the algorithm relies on).
func stringAggExpr(d qmdialect.Dialect, valueCol, orderCol string) (string, error) {
	switch d.Name() {
	case qmdialect.Postgres, qmdialect.Redshift, qmdialect.DuckDB, qmdialect.Databricks:
		return fmt.Sprintf("STRING_AGG(%s, '' ORDER BY %s ASC, %s DESC)", valueCol, orderCol, valueCol), nil
	case qmdialect.Snowflake, qmdialect.BigQuery, qmdialect.Athena:
		return fmt.Sprintf("LISTAGG(%s, '') WITHIN GROUP (ORDER BY %s ASC, %s DESC)", valueCol, orderCol, valueCol), nil
	case qmdialect.MySQL:
		return fmt.Sprintf("GROUP_CONCAT(%s ORDER BY %s ASC, %s DESC SEPARATOR '')", valueCol, orderCol, valueCol), nil
	case qmdialect.ClickHouse:
		return fmt.Sprintf("arrayStringConcat(groupArray(%s))", valueCol), nil
	default:
		return "", fmt.Errorf("qmfunnel: no string-aggregation mapping for dialect %q", d.Name())
	}
}

// diffSecondsExpr renders laterSQL-minus-earlierSQL as seconds, mirroring
// the per-dialect formula the column-expression compiler uses for its
// own diff_seconds function. qmfunnel cannot import that compiler
// package directly (it already imports qmfunnel to expand MatchSteps),
// so the table is duplicated here rather than shared.
func diffSecondsExpr(d qmdialect.Dialect, laterSQL, earlierSQL string) string {
	switch d.Name() {
	case qmdialect.BigQuery:
		return fmt.Sprintf("TIMESTAMP_DIFF(%s, %s, SECOND)", laterSQL, earlierSQL)
	case qmdialect.Snowflake, qmdialect.Databricks:
		return fmt.Sprintf("DATEDIFF('second', %s, %s)", earlierSQL, laterSQL)
	case qmdialect.MySQL:
		return fmt.Sprintf("TIMESTAMPDIFF(SECOND, %s, %s)", earlierSQL, laterSQL)
	default:
		return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", laterSQL, earlierSQL)
	}
}

// buildStepExtractionSQL wraps journeySQL with one CTE per step,
// computing `step_i_event_index` via the dialect's regex-extraction
// function per the algorithm's recurrence, and enforcing the time limit
// when configured. On ClickHouse the time-limit check is materialized in
// a dedicated step_i_checked CTE per step, since the engine cannot apply
// it inline during the final join; every other dialect folds it into a
// CASE expression directly in the final SELECT's per-step column.
func buildStepExtractionSQL(d qmdialect.Dialect, ms qmsource.MatchSteps, journeySQL string, extraCTEs []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("WITH ")
	for _, cte := range extraCTEs {
		sb.WriteString(cte)
		sb.WriteString(", ")
	}
	sb.WriteString(fmt.Sprintf("journeyed AS (%s)", journeySQL))

	clickhouseChecked := make([]bool, len(ms.Steps))

	prevIndexExpr := ""
	for i := range ms.Steps {
		hash := string(stepAlphabet[i])
		regexExtract, err := regexExtractExpr(d, "journey_hash", hash+".*")
		if i > 0 {
			regexExtract, err = regexExtractExpr(d, fmt.Sprintf("substring(journey_hash, %s + 1)", prevIndexExpr), hash+".*")
		}
		if err != nil {
			return "", err
		}
		indexExpr := fmt.Sprintf("(length(journey_hash) - length(%s) + 1)", regexExtract)
		sb.WriteString(fmt.Sprintf(
			", step_%d AS (SELECT __group__, __event_index__, __timestamp__, %s AS step_%d_event_index FROM journeyed WHERE __event_index__ = %s)",
			i, indexExpr, i, indexExpr,
		))
		prevIndexExpr = indexExpr

		if i > 0 && ms.HasWithin && d.Name() == qmdialect.ClickHouse {
			diff := diffSecondsExpr(d, "s.__timestamp__", "z.__timestamp__")
			sb.WriteString(fmt.Sprintf(
				", step_%d_checked AS (SELECT s.__group__ AS __group__, "+
					"CASE WHEN z.__timestamp__ IS NULL OR s.__timestamp__ IS NULL THEN NULL "+
					"WHEN %s > %d THEN NULL ELSE s.step_%d_event_index END AS step_%d_event_index "+
					"FROM step_%d s LEFT JOIN step_0 z ON z.__group__ = s.__group__)",
				i, diff, ms.WithinSeconds, i, i, i,
			))
			clickhouseChecked[i] = true
		}
	}

	sb.WriteString(" SELECT j.__group__ AS __group__, j.__event_index__ AS __event_index__")
	for i := range ms.Steps {
		if clickhouseChecked[i] {
			sb.WriteString(fmt.Sprintf(", step_%d_checked.step_%d_event_index AS step_%d_event_index", i, i, i))
			continue
		}
		if i > 0 && ms.HasWithin {
			diff := diffSecondsExpr(d, fmt.Sprintf("step_%d.__timestamp__", i), "step_0.__timestamp__")
			sb.WriteString(fmt.Sprintf(
				", CASE WHEN step_0.__timestamp__ IS NULL OR step_%d.__timestamp__ IS NULL THEN NULL "+
					"WHEN %s > %d THEN NULL ELSE step_%d.step_%d_event_index END AS step_%d_event_index",
				i, diff, ms.WithinSeconds, i, i, i,
			))
			continue
		}
		sb.WriteString(fmt.Sprintf(", step_%d.step_%d_event_index AS step_%d_event_index", i, i, i))
	}
	sb.WriteString(" FROM journeyed j")
	for i := range ms.Steps {
		sb.WriteString(fmt.Sprintf(" LEFT JOIN step_%d ON step_%d.__group__ = j.__group__", i, i))
		if clickhouseChecked[i] {
			sb.WriteString(fmt.Sprintf(" LEFT JOIN step_%d_checked ON step_%d_checked.__group__ = j.__group__", i, i))
		}
	}
	// journeyed holds one row per event; keeping each group's first event
	// row leaves one row per group.
	sb.WriteString(" WHERE j.__event_index__ = 1")
	return sb.String(), nil
}

func regexExtractExpr(d qmdialect.Dialect, subject, pattern string) (string, error) {
	switch d.Name() {
	case qmdialect.Postgres, qmdialect.Redshift:
		return fmt.Sprintf("substring(%s from '%s')", subject, pattern), nil
	case qmdialect.Snowflake, qmdialect.BigQuery, qmdialect.Databricks, qmdialect.Athena:
		return fmt.Sprintf("REGEXP_EXTRACT(%s, '%s')", subject, pattern), nil
	case qmdialect.MySQL:
		return fmt.Sprintf("REGEXP_SUBSTR(%s, '%s')", subject, pattern), nil
	case qmdialect.ClickHouse:
		return fmt.Sprintf("extract(%s, '%s')", subject, pattern), nil
	case qmdialect.DuckDB:
		return fmt.Sprintf("regexp_extract(%s, '%s')", subject, pattern), nil
	default:
		return "", fmt.Errorf("qmfunnel: no regex-extraction mapping for dialect %q", d.Name())
	}
}

// registerListAggLimitHandler installs an execution-error handler that
// explains Redshift's 65,535-character LISTAGG truncation when the
// funnel's journey hash overflows it, instead of surfacing a raw
// driver error.
func registerListAggLimitHandler(cc *qmctx.QueryContext, d qmdialect.Dialect) {
	if d.Name() != qmdialect.Redshift {
		return
	}
	limit := d.Capabilities().ListAggMaxLen
	cc.RegisterExecutionErrorHandler(func(err error) (string, bool) {
		if err == nil {
			return "", false
		}
		if strings.Contains(err.Error(), "Result size exceeds LISTAGG limit") {
			return fmt.Sprintf(
				"the funnel's journey hash exceeded Redshift's %d-character LISTAGG limit; reduce the number of events per entity or the time window",
				limit), true
		}
		return "", false
	})
}
