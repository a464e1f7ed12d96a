// Package qmcompiler implements the source compiler and column-expression
// compiler: the pair of dispatch tables that fold a Model's Source/
// Expression trees down to dialect-specific SQL text.
package qmcompiler

import (
	"fmt"
	"strings"

	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmerr"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmmodel"
)

// CompileExpression lowers e to a SQL text fragment. labeled controls
// whether a non-star, identified expression gets wrapped with
// `AS <identifier>` — set for top-level SELECT-list entries, cleared
// for nested use inside another expression.
func CompileExpression(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, e qmmodel.Expression, labeled bool) (string, error) {
	e = qmexpr.Preprocess(e)
	sql, err := compileNode(cc, layer, e)
	if err != nil {
		return "", err
	}
	if labeled {
		if id, ok := e.EffectiveIdentifier(); ok {
			sql = fmt.Sprintf("%s AS %s", sql, id)
		}
	}
	return sql, nil
}

func compileNode(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, e qmmodel.Expression) (string, error) {
	switch n := e.(type) {
	case qmexpr.ColumnName:
		return compileColumnName(cc, layer, n)
	case qmexpr.SqlText:
		return compileSqlText(cc, layer, n)
	case qmexpr.PyValue:
		return compileLiteral(cc, n.Value)
	case qmexpr.BinaryOp:
		return compileBinaryOp(cc, layer, n)
	case qmexpr.Cases:
		return compileCases(cc, layer, n)
	case qmexpr.Granularity:
		return compileGranularity(cc, layer, n)
	case qmexpr.FormatTimestamp:
		return compileFormatTimestamp(cc, layer, n)
	case qmexpr.SqlFunction:
		return compileFunction(cc, layer, n)
	case qmexpr.Subquery:
		return compileSubquery(cc, layer, n)
	default:
		return "", qmerr.NewInternalCompilationError(fmt.Sprintf("unrecognized expression kind %q", e.Kind()))
	}
}

func compileColumnName(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, c qmexpr.ColumnName) (string, error) {
	namespace := c.Namespace
	needsQualifier := layer.NeedsColumnDisambiguation() || namespace != "" || isReservedKeyword(cc.Dialect, string(c.Column))
	if !needsQualifier {
		return string(c.Column), nil
	}
	ref := layer.Main.Ref
	if namespace != "" {
		if ns, ok := layer.Joined[namespace]; ok {
			ref = ns.Ref
			ns.MarkUsed(string(c.Column))
		}
	} else {
		layer.Main.MarkUsed(string(c.Column))
	}
	return fmt.Sprintf("%s.%s", ref, c.Column), nil
}

// isReservedKeyword flags identifiers that collide with a dialect
// keyword and must always be qualified, even outside a join — e.g.
// "timestamp" on Redshift/ClickHouse.
func isReservedKeyword(d qmdialect.Dialect, name string) bool {
	if d == nil {
		return false
	}
	lower := strings.ToLower(name)
	switch d.Name() {
	case qmdialect.Redshift, qmdialect.ClickHouse:
		return lower == "timestamp"
	default:
		return false
	}
}

func compileSqlText(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, s qmexpr.SqlText) (string, error) {
	if strings.TrimSpace(s.Text) == "*" {
		if layer.NeedsColumnDisambiguation() {
			return layer.Main.Ref + ".*", nil
		}
		return "*", nil
	}
	inlined, err := InlineReferences(cc, s.Text, RefResolver(cc.RefResolver))
	if err != nil {
		return "", err
	}
	return RewriteNamespaceQualifiers(layer, inlined), nil
}

func compileLiteral(cc *qmctx.QueryContext, lit qmexpr.Literal) (string, error) {
	switch lit.Kind {
	case qmexpr.LitNull:
		return "NULL", nil
	case qmexpr.LitBool:
		if lit.Bool {
			return "TRUE", nil
		}
		return "FALSE", nil
	case qmexpr.LitInt:
		return fmt.Sprintf("%d", lit.Int), nil
	case qmexpr.LitFloat:
		return fmt.Sprintf("%v", lit.Float), nil
	case qmexpr.LitStr:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(lit.Str, "'", "''")), nil
	case qmexpr.LitDate:
		return fmt.Sprintf("DATE '%s'", lit.Date.Format("2006-01-02")), nil
	case qmexpr.LitDateTime:
		return fmt.Sprintf("TIMESTAMP '%s'", lit.DateTime.Format("2006-01-02 15:04:05")), nil
	case qmexpr.LitTimedelta, qmexpr.LitTimeInterval:
		return compileIntervalLiteral(cc, lit)
	case qmexpr.LitList:
		parts := make([]string, len(lit.List))
		for i, item := range lit.List {
			s, err := compileLiteral(cc, item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", qmerr.NewInternalCompilationError("unrecognized literal kind")
	}
}

func compileIntervalLiteral(cc *qmctx.QueryContext, lit qmexpr.Literal) (string, error) {
	unit, num := lit.TimeInterval.Unit, lit.TimeInterval.Num
	if lit.Kind == qmexpr.LitTimedelta {
		unit, num = normalizeDuration(lit.Timedelta)
	}
	if cc.Dialect == nil {
		return "", qmerr.NewInternalCompilationError("no dialect configured")
	}
	return cc.Dialect.IntervalLiteral(unit, num)
}

// normalizeDuration promotes a second-denominated duration to the
// widest unit with an integer quantity (3600s -> 1 HOUR).
func normalizeDuration(seconds int64) (qmexpr.IntervalUnit, int) {
	switch {
	case seconds%(365*24*3600) == 0 && seconds != 0:
		return qmexpr.UnitYears, int(seconds / (365 * 24 * 3600))
	case seconds%(30*24*3600) == 0 && seconds != 0:
		return qmexpr.UnitMonths, int(seconds / (30 * 24 * 3600))
	case seconds%(7*24*3600) == 0 && seconds != 0:
		return qmexpr.UnitWeeks, int(seconds / (7 * 24 * 3600))
	case seconds%(24*3600) == 0:
		return qmexpr.UnitDays, int(seconds / (24 * 3600))
	case seconds%3600 == 0:
		return qmexpr.UnitHours, int(seconds / 3600)
	case seconds%60 == 0:
		return qmexpr.UnitMinutes, int(seconds / 60)
	default:
		return qmexpr.UnitSeconds, int(seconds)
	}
}

var opSQL = map[qmexpr.Op]string{
	qmexpr.OpEq:  "=",
	qmexpr.OpNeq: "!=",
	qmexpr.OpLt:  "<",
	qmexpr.OpLte: "<=",
	qmexpr.OpGt:  ">",
	qmexpr.OpGte: ">=",
	qmexpr.OpAnd: "AND",
	qmexpr.OpOr:  "OR",
	qmexpr.OpAdd: "+",
	qmexpr.OpSub: "-",
	qmexpr.OpMul: "*",
	qmexpr.OpMod: "%",
	qmexpr.OpLike:     "LIKE",
	qmexpr.OpNotLike:  "NOT LIKE",
	qmexpr.OpIn:       "IN",
	qmexpr.OpNotIn:    "NOT IN",
}

func compileBinaryOp(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, b qmexpr.BinaryOp) (string, error) {
	switch b.Operator {
	case qmexpr.OpIsNull:
		left, err := compileNode(cc, layer, b.Left)
		if err != nil {
			return "", err
		}
		return left + " IS NULL", nil
	case qmexpr.OpNotNull:
		left, err := compileNode(cc, layer, b.Left)
		if err != nil {
			return "", err
		}
		return left + " IS NOT NULL", nil
	}

	left, err := compileNode(cc, layer, b.Left)
	if err != nil {
		return "", err
	}
	if !b.HasRight {
		return "", qmerr.NewInternalCompilationError(fmt.Sprintf("binary operator %q missing right operand", b.Operator))
	}

	if isNullLiteral(b.Right) && (b.Operator == qmexpr.OpEq || b.Operator == qmexpr.OpNeq) {
		if b.Operator == qmexpr.OpEq {
			return left + " IS NULL", nil
		}
		return left + " IS NOT NULL", nil
	}

	right, err := compileNode(cc, layer, b.Right)
	if err != nil {
		return "", err
	}

	if b.Operator == qmexpr.OpDiv {
		return compileDivide(cc, left, right), nil
	}

	sym, ok := opSQL[b.Operator]
	if !ok {
		return "", qmerr.NewInternalCompilationError(fmt.Sprintf("unrecognized binary operator %q", b.Operator))
	}
	if b.Operator == qmexpr.OpIn || b.Operator == qmexpr.OpNotIn {
		return fmt.Sprintf("%s %s (%s)", left, sym, right), nil
	}
	return fmt.Sprintf("(%s %s %s)", left, sym, right), nil
}

func isNullLiteral(e qmmodel.Expression) bool {
	pv, ok := e.(qmexpr.PyValue)
	return ok && pv.Value.Kind == qmexpr.LitNull
}

// compileDivide applies the per-dialect decimal-lift workaround so
// integer division doesn't silently truncate.
func compileDivide(cc *qmctx.QueryContext, left, right string) string {
	if cc.Dialect == nil {
		return fmt.Sprintf("(%s / %s)", left, right)
	}
	switch cc.Dialect.Name() {
	case qmdialect.Postgres, qmdialect.Redshift:
		return fmt.Sprintf("(CAST(%s AS DECIMAL) / %s)", left, right)
	case qmdialect.Athena:
		return fmt.Sprintf("(CAST(%s AS DOUBLE) / %s)", left, right)
	case qmdialect.ClickHouse:
		return fmt.Sprintf("divide(%s, %s)", left, right)
	default:
		return fmt.Sprintf("(%s / %s)", left, right)
	}
}

func compileCases(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, c qmexpr.Cases) (string, error) {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, b := range c.Branches {
		when, err := compileNode(cc, layer, b.When)
		if err != nil {
			return "", err
		}
		then, err := compileNode(cc, layer, b.Then)
		if err != nil {
			return "", err
		}
		sb.WriteString(fmt.Sprintf(" WHEN %s THEN %s", when, then))
	}
	if c.HasElse {
		elseSQL, err := compileNode(cc, layer, c.Else)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ELSE " + elseSQL)
	}
	sb.WriteString(" END")
	return sb.String(), nil
}

func compileGranularity(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, g qmexpr.Granularity) (string, error) {
	operand, err := compileNode(cc, layer, g.Operand)
	if err != nil {
		return "", err
	}
	if cc.Dialect == nil {
		return "", qmerr.NewInternalCompilationError("no dialect configured")
	}
	return cc.Dialect.TruncateTimestamp(operand, g.Unit)
}

func compileFormatTimestamp(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, f qmexpr.FormatTimestamp) (string, error) {
	operand, err := compileNode(cc, layer, f.Operand)
	if err != nil {
		return "", err
	}
	if cc.Dialect == nil {
		return "", qmerr.NewInternalCompilationError("no dialect configured")
	}
	return cc.Dialect.FormatTimestamp(operand, f.Layout)
}

var directFunctions = map[string]bool{
	"max": true, "min": true, "avg": true, "sum": true, "floor": true, "ceiling": true,
}

func compileFunction(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, f qmexpr.SqlFunction) (string, error) {
	switch f.Name {
	case "count":
		if len(f.Args) == 0 {
			return "COUNT(*)", nil
		}
		arg, err := compileNode(cc, layer, f.Args[0])
		if err != nil {
			return "", err
		}
		if f.Distinct {
			return fmt.Sprintf("COUNT(DISTINCT %s)", arg), nil
		}
		return fmt.Sprintf("COUNT(%s)", arg), nil
	case "now":
		return compileLiteral(cc, qmexpr.DateTimeLiteral(compileTimeNow()))
	case "and":
		return compileVariadicBoolean(cc, layer, f.Args, "AND")
	case "or":
		return compileVariadicBoolean(cc, layer, f.Args, "OR")
	case "not":
		if len(f.Args) != 1 {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, "not() takes exactly one argument")
		}
		negated := qmexpr.Not(f.Args[0])
		return compileNode(cc, layer, negated)
	case "exists":
		if len(f.Args) != 1 {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, "exists() takes exactly one argument")
		}
		inner, err := compileNode(cc, layer, f.Args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS(%s)", inner), nil
	case "diffSeconds":
		if len(f.Args) != 2 {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, "diffSeconds() takes exactly two arguments")
		}
		return compileDiffSeconds(cc, layer, f.Args[0], f.Args[1])
	case "cast":
		if len(f.Args) != 2 {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, "cast() takes an expression and a type name")
		}
		expr, err := compileNode(cc, layer, f.Args[0])
		if err != nil {
			return "", err
		}
		typeName, ok := f.Args[1].(qmexpr.PyValue)
		if !ok || typeName.Value.Kind != qmexpr.LitStr {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, "cast() target type must be a string literal")
		}
		return fmt.Sprintf("CAST(%s AS %s)", expr, typeName.Value.Str), nil
	default:
		if !directFunctions[f.Name] && f.Name != "distinct" {
			return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, fmt.Sprintf("unsupported function %q", f.Name))
		}
		args := make([]string, len(f.Args))
		for i, a := range f.Args {
			s, err := compileNode(cc, layer, a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		name := strings.ToUpper(f.Name)
		if f.Distinct {
			return fmt.Sprintf("%s(DISTINCT %s)", name, strings.Join(args, ", ")), nil
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil
	}
}

func compileVariadicBoolean(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, args []qmmodel.Expression, joiner string) (string, error) {
	if len(args) == 0 {
		return "", qmerr.NewUserCompilationError(qmerr.CodeUnsupportedToken, fmt.Sprintf("%s() requires at least one argument", strings.ToLower(joiner)))
	}
	parts := make([]string, len(args))
	for i, a := range args {
		s, err := compileNode(cc, layer, a)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, " "+joiner+" ") + ")", nil
}

func compileDiffSeconds(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, a, b qmmodel.Expression) (string, error) {
	left, err := compileNode(cc, layer, a)
	if err != nil {
		return "", err
	}
	right, err := compileNode(cc, layer, b)
	if err != nil {
		return "", err
	}
	if cc.Dialect == nil {
		return "", qmerr.NewInternalCompilationError("no dialect configured")
	}
	switch cc.Dialect.Name() {
	case qmdialect.BigQuery:
		return fmt.Sprintf("TIMESTAMP_DIFF(%s, %s, SECOND)", left, right), nil
	case qmdialect.Snowflake, qmdialect.Databricks:
		return fmt.Sprintf("DATEDIFF('second', %s, %s)", right, left), nil
	case qmdialect.MySQL:
		return fmt.Sprintf("TIMESTAMPDIFF(SECOND, %s, %s)", right, left), nil
	default:
		return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", left, right), nil
	}
}

func compileSubquery(cc *qmctx.QueryContext, layer *qmctx.QueryLayer, s qmexpr.Subquery) (string, error) {
	forked := cc.ForkCTENames("sub")
	sql, err := CompileModel(forked, s.Nested)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)", sql), nil
}
