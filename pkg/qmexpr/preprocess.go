package qmexpr

import (
	"time"

	"github.com/fj1981/modelsql/pkg/qmmodel"
)

// Preprocess runs the two constant-folding passes the compiler applies to
// every expression before lowering it to SQL text: datetime+interval
// arithmetic is folded into a single literal, and a Granularity
// truncation applied to a literal datetime is folded the same way.
// Folding happens bottom-up so nested arithmetic collapses in one
// traversal.
func Preprocess(e qmmodel.Expression) qmmodel.Expression {
	switch n := e.(type) {
	case BinaryOp:
		n.Left = Preprocess(n.Left)
		if n.HasRight {
			n.Right = Preprocess(n.Right)
		}
		if folded, ok := foldDateArithmetic(n); ok {
			return folded
		}
		return n
	case Cases:
		branches := make([]WhenThen, len(n.Branches))
		for i, b := range n.Branches {
			branches[i] = WhenThen{When: Preprocess(b.When), Then: Preprocess(b.Then)}
		}
		n.Branches = branches
		if n.HasElse {
			n.Else = Preprocess(n.Else)
		}
		return n
	case Granularity:
		n.Operand = Preprocess(n.Operand)
		if folded, ok := foldGranularity(n); ok {
			return folded
		}
		return n
	case FormatTimestamp:
		n.Operand = Preprocess(n.Operand)
		return n
	case SqlFunction:
		args := make([]qmmodel.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = Preprocess(a)
		}
		n.Args = args
		return n
	default:
		return e
	}
}

// foldDateArithmetic folds `datetimeLiteral +/- intervalLiteral` (in
// either operand order for addition) into a single PyValue literal,
// preserving whatever manual identifier was set on the BinaryOp node.
func foldDateArithmetic(b BinaryOp) (qmmodel.Expression, bool) {
	if b.Operator != OpAdd && b.Operator != OpSub {
		return nil, false
	}
	if !b.HasRight {
		return nil, false
	}
	leftLit, leftOK := asLiteral(b.Left)
	rightLit, rightOK := asLiteral(b.Right)
	if !leftOK || !rightOK {
		return nil, false
	}

	switch {
	case leftLit.IsDateTimeConstant() && rightLit.IsIntervalConstant():
		t := dateTimeValue(leftLit)
		folded, ok := rightLit.AddToTime(t, b.Operator == OpSub)
		if !ok {
			return nil, false
		}
		return withManualID(Value(reassemble(leftLit.Kind, folded)), b), true
	case b.Operator == OpAdd && leftLit.IsIntervalConstant() && rightLit.IsDateTimeConstant():
		t := dateTimeValue(rightLit)
		folded, ok := leftLit.AddToTime(t, false)
		if !ok {
			return nil, false
		}
		return withManualID(Value(reassemble(rightLit.Kind, folded)), b), true
	}
	return nil, false
}

// foldGranularity folds truncation of a literal datetime into a literal
// at compile time, skipping a round trip through the dialect's
// truncation function for a value already known.
func foldGranularity(g Granularity) (qmmodel.Expression, bool) {
	lit, ok := asLiteral(g.Operand)
	if !ok || !lit.IsDateTimeConstant() {
		return nil, false
	}
	truncated, ok := truncateToUnit(dateTimeValue(lit), g.Unit)
	if !ok {
		return nil, false
	}
	return withManualID(Value(reassemble(lit.Kind, truncated)), g), true
}

func asLiteral(e qmmodel.Expression) (Literal, bool) {
	pv, ok := e.(PyValue)
	if !ok {
		return Literal{}, false
	}
	return pv.Value, true
}

func dateTimeValue(l Literal) time.Time {
	if l.Kind == LitDateTime {
		return l.DateTime
	}
	return l.Date
}

func reassemble(kind LiteralKind, t time.Time) Literal {
	if kind == LitDate {
		return DateLiteral(t)
	}
	return DateTimeLiteral(t)
}

func withManualID(folded PyValue, original interface{ ManualIdentifier() (qmmodel.Identifier, bool) }) PyValue {
	if id, ok := original.ManualIdentifier(); ok {
		folded.named = folded.named.withID(id)
	}
	return folded
}

// truncateToUnit truncates t to the start of the given calendar bucket
// in t's own location, matching the semantics the granularity lowering tables
// produce at each dialect.
func truncateToUnit(t time.Time, unit GranularityUnit) (time.Time, bool) {
	switch unit {
	case GranSecond:
		return t.Truncate(time.Second), true
	case GranMinute:
		return t.Truncate(time.Minute), true
	case GranHour:
		return t.Truncate(time.Hour), true
	case GranDay:
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location()), true
	case GranWeek:
		y, m, d := t.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		offset := (int(day.Weekday()) + 6) % 7 // Monday-start week
		return day.AddDate(0, 0, -offset), true
	case GranMonth:
		y, m, _ := t.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location()), true
	case GranQuarter:
		y, m, _ := t.Date()
		qStartMonth := time.Month(((int(m)-1)/3)*3 + 1)
		return time.Date(y, qStartMonth, 1, 0, 0, 0, 0, t.Location()), true
	case GranYear:
		y, _, _ := t.Date()
		return time.Date(y, time.January, 1, 0, 0, 0, 0, t.Location()), true
	}
	return t, false
}
