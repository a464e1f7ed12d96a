// Package qmsource implements the source-plan sum type: a closed set of
// node kinds (base table, raw SQL, projection, filter, sort, limit,
// aggregate, single join, union, and the match-steps funnel plan), each
// wrapping a qmmodel.SourceNode so the source compiler can fold the chain
// from the leaf outward without a cross-package type assertion chain.
package qmsource

import "github.com/fj1981/modelsql/pkg/qmmodel"

// TableName is a leaf source naming a physical table, optionally
// qualified by schema.
type TableName struct {
	Schema string
	Table  string
}

func Table(name string) TableName                { return TableName{Table: name} }
func SchemaTable(schema, name string) TableName   { return TableName{Schema: schema, Table: name} }
func (t TableName) Kind() string                  { return "tableName" }
func (t TableName) Base() qmmodel.SourceNode       { return nil }

// SqlText is a leaf source backed by a hand-written SELECT statement.
type SqlText struct {
	Text string
	Refs []string
}

func Raw(text string, refs ...string) SqlText { return SqlText{Text: text, Refs: refs} }
func (s SqlText) Kind() string                { return "sqlText" }
func (s SqlText) Base() qmmodel.SourceNode    { return nil }

// Pick projects a fixed set of expression identifiers from Base,
// optionally renaming them via Aliases.
type Pick struct {
	Of       qmmodel.SourceNode
	Columns  []qmmodel.Identifier
	Aliases  map[qmmodel.Identifier]qmmodel.Identifier
}

func NewPick(of qmmodel.SourceNode, columns ...qmmodel.Identifier) Pick {
	return Pick{Of: of, Columns: columns}
}
func (p Pick) Kind() string               { return "pick" }
func (p Pick) Base() qmmodel.SourceNode   { return p.Of }

// Filter restricts Base's rows to those matching Condition.
type Filter struct {
	Of        qmmodel.SourceNode
	Condition qmmodel.Expression
}

func NewFilter(of qmmodel.SourceNode, condition qmmodel.Expression) Filter {
	return Filter{Of: of, Condition: condition}
}
func (f Filter) Kind() string             { return "filter" }
func (f Filter) Base() qmmodel.SourceNode { return f.Of }

// SortDirection names ascending/descending ordering.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SortKey is one ORDER BY term.
type SortKey struct {
	Expr      qmmodel.Expression
	Direction SortDirection
}

// Sort orders Base's rows by Keys in priority order.
type Sort struct {
	Of   qmmodel.SourceNode
	Keys []SortKey
}

func NewSort(of qmmodel.SourceNode, keys ...SortKey) Sort {
	return Sort{Of: of, Keys: keys}
}
func (s Sort) Kind() string             { return "sort" }
func (s Sort) Base() qmmodel.SourceNode { return s.Of }

// Limit caps Base's row count, with an optional OFFSET.
type Limit struct {
	Of     qmmodel.SourceNode
	Count  int
	Offset int
}

func NewLimit(of qmmodel.SourceNode, count int) Limit {
	return Limit{Of: of, Count: count}
}
func (l Limit) WithOffset(offset int) Limit {
	l.Offset = offset
	return l
}
func (l Limit) Kind() string             { return "limit" }
func (l Limit) Base() qmmodel.SourceNode { return l.Of }

// Aggregate groups Base by GroupBy expressions and projects Measures
// alongside them.
type Aggregate struct {
	Of       qmmodel.SourceNode
	GroupBy  []qmmodel.Expression
	Measures []qmmodel.Expression
	Having   qmmodel.Expression
	HasHaving bool
}

func NewAggregate(of qmmodel.SourceNode, groupBy, measures []qmmodel.Expression) Aggregate {
	return Aggregate{Of: of, GroupBy: groupBy, Measures: measures}
}
func (a Aggregate) WithHaving(h qmmodel.Expression) Aggregate {
	a.Having = h
	a.HasHaving = true
	return a
}
func (a Aggregate) Kind() string             { return "aggregate" }
func (a Aggregate) Base() qmmodel.SourceNode { return a.Of }

// JoinType names the supported single-join kinds.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// JoinOne joins Base to exactly one related namespace through a foreign
// key condition — the only join shape the model exposes; arbitrary
// multi-way joins are expressed by chaining JoinOne nodes.
type JoinOne struct {
	Of        qmmodel.SourceNode
	Namespace qmmodel.Identifier
	Nested    *qmmodel.Model
	On        qmmodel.Expression
	Type      JoinType
}

func NewJoinOne(of qmmodel.SourceNode, namespace qmmodel.Identifier, nested *qmmodel.Model, on qmmodel.Expression) JoinOne {
	return JoinOne{Of: of, Namespace: namespace, Nested: nested, On: on, Type: JoinInner}
}
func (j JoinOne) WithType(t JoinType) JoinOne {
	j.Type = t
	return j
}
func (j JoinOne) Kind() string             { return "joinOne" }
func (j JoinOne) Base() qmmodel.SourceNode { return j.Of }

// Union stacks Others beneath Of with UNION ALL semantics (duplicates
// preserved; callers wrap in a dedup Aggregate for UNION DISTINCT).
type Union struct {
	Of     qmmodel.SourceNode
	Others []qmmodel.SourceNode
}

func NewUnion(of qmmodel.SourceNode, others ...qmmodel.SourceNode) Union {
	return Union{Of: of, Others: others}
}
func (u Union) Kind() string             { return "union" }
func (u Union) Base() qmmodel.SourceNode { return u.Of }

// MatchSteps is the funnel plan: given Base's activity-schema rows, find
// journeys whose event sequence matches Steps (event key values, in
// order), subject to WithinSeconds and an optional partition. Group/
// Timestamp/EventKey are captured from the enclosing model's activity
// schema at construction time so the node is self-contained once built.
type MatchSteps struct {
	Of            qmmodel.SourceNode
	Group         qmmodel.Identifier
	Timestamp     qmmodel.Identifier
	EventKey      qmmodel.Identifier
	Steps         []string
	WithinSeconds int64
	HasWithin     bool
	PartitionBy   []qmmodel.Expression
	StartsWith    string
	HasStartsWith bool
}

func NewMatchSteps(of qmmodel.SourceNode, schema qmmodel.ActivitySchema, steps ...string) MatchSteps {
	return MatchSteps{
		Of:        of,
		Group:     schema.Group,
		Timestamp: schema.Timestamp,
		EventKey:  schema.EventKey,
		Steps:     steps,
	}
}
func (m MatchSteps) WithinWindow(seconds int64) MatchSteps {
	m.WithinSeconds = seconds
	m.HasWithin = true
	return m
}
func (m MatchSteps) StartingWith(event string) MatchSteps {
	m.StartsWith = event
	m.HasStartsWith = true
	return m
}
func (m MatchSteps) PartitionedBy(exprs ...qmmodel.Expression) MatchSteps {
	m.PartitionBy = exprs
	return m
}
func (m MatchSteps) Kind() string             { return "matchSteps" }
func (m MatchSteps) Base() qmmodel.SourceNode { return m.Of }
