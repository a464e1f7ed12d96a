// Package qmexpr implements the column-expression sum type: a closed set
// of node kinds (column reference, raw SQL text, constant literal, binary
// operator, case expression, date/time granularity, timestamp formatting,
// function call, and scalar subquery), each satisfying qmmodel.Expression
// so the compiler can dispatch on Kind() without a cross-package type
// assertion chain.
package qmexpr

import (
	"fmt"

	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmutil"
)

// named is embedded by every node to carry an optional manually-assigned
// identifier (the `.named("x")` builder call).
type named struct {
	id    qmmodel.Identifier
	hasID bool
}

func (n named) ManualIdentifier() (qmmodel.Identifier, bool) {
	if !n.hasID {
		return "", false
	}
	return n.id, true
}

func (n named) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return n.ManualIdentifier()
}

func (n named) withID(id qmmodel.Identifier) named {
	return named{id: id, hasID: true}
}

// ColumnName references a column on the enclosing source (or, when
// Namespace is set, a column reached through a join).
type ColumnName struct {
	named
	Column    qmmodel.Identifier
	Namespace string // empty when unqualified
}

func Column(name qmmodel.Identifier) ColumnName { return ColumnName{Column: name} }

func (c ColumnName) Kind() string { return "columnName" }

func (c ColumnName) DefaultIdentifier() (qmmodel.Identifier, bool) {
	return c.Column, c.Column != ""
}

func (c ColumnName) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	if id, ok := c.ManualIdentifier(); ok {
		return id, true
	}
	return c.DefaultIdentifier()
}

func (c ColumnName) Disambiguated(namespace string) qmmodel.Expression {
	c.Namespace = namespace
	return c
}

func (c ColumnName) Fields() []string { return []string{string(c.Column)} }

func (c ColumnName) Named(id qmmodel.Identifier) ColumnName {
	c.named = c.named.withID(id)
	return c
}

// SqlText wraps a hand-written SQL fragment with `{{ref}}` placeholders
// resolved by the compiler's reference-inlining pass. Its default
// identifier, notoriously, is empty: raw SQL carries no column name
// unless the author supplies one with Named.
type SqlText struct {
	named
	Text string
	Refs []string // identifiers referenced via {{ref "x"}} inside Text
}

func Sql(text string, refs ...string) SqlText { return SqlText{Text: text, Refs: refs} }

func (s SqlText) Kind() string { return "sqlText" }

func (s SqlText) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (s SqlText) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return s.ManualIdentifier()
}

func (s SqlText) Disambiguated(namespace string) qmmodel.Expression {
	// Raw SQL text is rewritten by the compiler's namespace-qualifier
	// scanner, not here — Disambiguated on SqlText is a structural no-op.
	return s
}

func (s SqlText) Fields() []string { return nil }

func (s SqlText) Named(id qmmodel.Identifier) SqlText {
	s.named = s.named.withID(id)
	return s
}

// PyValue is a constant scalar or list literal.
type PyValue struct {
	named
	Value Literal
}

func Value(l Literal) PyValue { return PyValue{Value: l} }

func (p PyValue) Kind() string { return "pyValue" }

func (p PyValue) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (p PyValue) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return p.ManualIdentifier()
}

func (p PyValue) Disambiguated(namespace string) qmmodel.Expression { return p }

func (p PyValue) Fields() []string { return nil }

func (p PyValue) Named(id qmmodel.Identifier) PyValue {
	p.named = p.named.withID(id)
	return p
}

// Op is the operator half of a BinaryOp node.
type Op string

const (
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpAnd      Op = "and"
	OpOr       Op = "or"
	OpAdd      Op = "add"
	OpSub      Op = "sub"
	OpMul      Op = "mul"
	OpDiv      Op = "div"
	OpMod      Op = "mod"
	OpIn       Op = "in"
	OpNotIn    Op = "notIn"
	OpLike     Op = "like"
	OpNotLike  Op = "notLike"
	OpIsNull   Op = "isNull"
	OpNotNull  Op = "isNotNull"
)

// BinaryOp applies Operator to Left and (for non-unary operators) Right.
// IsNull/NotNull are modeled as BinaryOp with Right unset rather than a
// separate unary node, mirroring the closed-union shape of the source
// grammar.
type BinaryOp struct {
	named
	Operator Op
	Left     qmmodel.Expression
	Right    qmmodel.Expression
	HasRight bool
}

func Binary(op Op, left, right qmmodel.Expression) BinaryOp {
	return BinaryOp{Operator: op, Left: left, Right: right, HasRight: true}
}

func Unary(op Op, operand qmmodel.Expression) BinaryOp {
	return BinaryOp{Operator: op, Left: operand}
}

func (b BinaryOp) Kind() string { return "binaryOp" }

func (b BinaryOp) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (b BinaryOp) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return b.ManualIdentifier()
}

func (b BinaryOp) Disambiguated(namespace string) qmmodel.Expression {
	b.Left = b.Left.Disambiguated(namespace)
	if b.HasRight {
		b.Right = b.Right.Disambiguated(namespace)
	}
	return b
}

func (b BinaryOp) Fields() []string {
	out := append([]string{}, b.Left.Fields()...)
	if b.HasRight {
		out = append(out, b.Right.Fields()...)
	}
	return qmutil.DedupStrings(out)
}

func (b BinaryOp) Named(id qmmodel.Identifier) BinaryOp {
	b.named = b.named.withID(id)
	return b
}

// WhenThen is one branch of a Cases expression.
type WhenThen struct {
	When qmmodel.Expression
	Then qmmodel.Expression
}

// Cases is a CASE WHEN ... THEN ... ELSE ... END expression. Branches are
// evaluated in order; Else is optional.
type Cases struct {
	named
	Branches []WhenThen
	Else     qmmodel.Expression
	HasElse  bool
}

func NewCases(branches []WhenThen) Cases { return Cases{Branches: branches} }

func (c Cases) WithElse(e qmmodel.Expression) Cases {
	c.Else = e
	c.HasElse = true
	return c
}

func (c Cases) Kind() string { return "cases" }

func (c Cases) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (c Cases) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return c.ManualIdentifier()
}

func (c Cases) Disambiguated(namespace string) qmmodel.Expression {
	out := make([]WhenThen, len(c.Branches))
	for i, b := range c.Branches {
		out[i] = WhenThen{When: b.When.Disambiguated(namespace), Then: b.Then.Disambiguated(namespace)}
	}
	c.Branches = out
	if c.HasElse {
		c.Else = c.Else.Disambiguated(namespace)
	}
	return c
}

func (c Cases) Fields() []string {
	var out []string
	for _, b := range c.Branches {
		out = append(out, b.When.Fields()...)
		out = append(out, b.Then.Fields()...)
	}
	if c.HasElse {
		out = append(out, c.Else.Fields()...)
	}
	return qmutil.DedupStrings(out)
}

func (c Cases) Named(id qmmodel.Identifier) Cases {
	c.named = c.named.withID(id)
	return c
}

// GranularityUnit names a date/time truncation bucket.
type GranularityUnit string

const (
	GranSecond  GranularityUnit = "second"
	GranMinute  GranularityUnit = "minute"
	GranHour    GranularityUnit = "hour"
	GranDay     GranularityUnit = "day"
	GranWeek    GranularityUnit = "week"
	GranMonth   GranularityUnit = "month"
	GranQuarter GranularityUnit = "quarter"
	GranYear    GranularityUnit = "year"
)

// Granularity truncates Operand to a calendar bucket, dialect-dependent
// in its lowering but uniform in this IR.
type Granularity struct {
	named
	Operand qmmodel.Expression
	Unit    GranularityUnit
}

func TruncateTo(operand qmmodel.Expression, unit GranularityUnit) Granularity {
	return Granularity{Operand: operand, Unit: unit}
}

func (g Granularity) Kind() string { return "granularity" }

func (g Granularity) DefaultIdentifier() (qmmodel.Identifier, bool) {
	return g.Operand.DefaultIdentifier()
}

func (g Granularity) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	if id, ok := g.ManualIdentifier(); ok {
		return id, true
	}
	return g.DefaultIdentifier()
}

func (g Granularity) Disambiguated(namespace string) qmmodel.Expression {
	g.Operand = g.Operand.Disambiguated(namespace)
	return g
}

func (g Granularity) Fields() []string { return g.Operand.Fields() }

func (g Granularity) Named(id qmmodel.Identifier) Granularity {
	g.named = g.named.withID(id)
	return g
}

// FormatTimestamp renders Operand as text using a strftime-style Layout,
// lowered per-dialect by the format table.
type FormatTimestamp struct {
	named
	Operand qmmodel.Expression
	Layout  string
}

func FormatTime(operand qmmodel.Expression, layout string) FormatTimestamp {
	return FormatTimestamp{Operand: operand, Layout: layout}
}

func (f FormatTimestamp) Kind() string { return "formatTimestamp" }

func (f FormatTimestamp) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (f FormatTimestamp) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return f.ManualIdentifier()
}

func (f FormatTimestamp) Disambiguated(namespace string) qmmodel.Expression {
	f.Operand = f.Operand.Disambiguated(namespace)
	return f
}

func (f FormatTimestamp) Fields() []string { return f.Operand.Fields() }

func (f FormatTimestamp) Named(id qmmodel.Identifier) FormatTimestamp {
	f.named = f.named.withID(id)
	return f
}

// SqlFunction applies a named function (count, sum, avg, coalesce, ...)
// to Args. Distinct marks an aggregate as DISTINCT.
type SqlFunction struct {
	named
	Name     string
	Args     []qmmodel.Expression
	Distinct bool
}

func Func(name string, args ...qmmodel.Expression) SqlFunction {
	return SqlFunction{Name: name, Args: args}
}

func (f SqlFunction) WithDistinct() SqlFunction {
	f.Distinct = true
	return f
}

func (f SqlFunction) Kind() string { return "sqlFunction" }

func (f SqlFunction) DefaultIdentifier() (qmmodel.Identifier, bool) {
	if len(f.Args) == 1 {
		if id, ok := f.Args[0].DefaultIdentifier(); ok {
			return qmmodel.Identifier(fmt.Sprintf("%s_%s", f.Name, id)), true
		}
	}
	return qmmodel.Identifier(f.Name), true
}

func (f SqlFunction) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	if id, ok := f.ManualIdentifier(); ok {
		return id, true
	}
	return f.DefaultIdentifier()
}

func (f SqlFunction) Disambiguated(namespace string) qmmodel.Expression {
	out := make([]qmmodel.Expression, len(f.Args))
	for i, a := range f.Args {
		out[i] = a.Disambiguated(namespace)
	}
	f.Args = out
	return f
}

func (f SqlFunction) Fields() []string {
	var out []string
	for _, a := range f.Args {
		out = append(out, a.Fields()...)
	}
	return qmutil.DedupStrings(out)
}

func (f SqlFunction) Named(id qmmodel.Identifier) SqlFunction {
	f.named = f.named.withID(id)
	return f
}

// Subquery embeds a nested model as a scalar column expression. It
// imports qmmodel.Model directly rather than through an interface,
// because qmexpr already imports qmmodel one-directionally — qmmodel
// never imports qmexpr back.
type Subquery struct {
	named
	Nested *qmmodel.Model
}

func SubqueryOf(m *qmmodel.Model) Subquery { return Subquery{Nested: m} }

func (s Subquery) Kind() string { return "subquery" }

func (s Subquery) DefaultIdentifier() (qmmodel.Identifier, bool) { return "", false }

func (s Subquery) EffectiveIdentifier() (qmmodel.Identifier, bool) {
	return s.ManualIdentifier()
}

func (s Subquery) Disambiguated(namespace string) qmmodel.Expression { return s }

func (s Subquery) Fields() []string { return nil }

func (s Subquery) Named(id qmmodel.Identifier) Subquery {
	s.named = s.named.withID(id)
	return s
}
