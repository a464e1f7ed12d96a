// Package qm is the public builder facade: a fluent Model wrapper over
// qmmodel.Model/qmsource/qmexpr, plus the Sql()/Run() entry points that
// drive qmcompiler and qmdriver. This is the only package callers are
// meant to import directly — everything else is compiler internals.
package qm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fj1981/modelsql/pkg/qmcompiler"
	"github.com/fj1981/modelsql/pkg/qmconf"
	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmdriver"
	"github.com/fj1981/modelsql/pkg/qmerr"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmlog"
	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmsource"
)

// defaultPrimaryKey is applied by Sql/Run when a Model was never given
// one explicitly via WithPrimaryKey.
var defaultPrimaryKey = qmexpr.Column("id")

// Model is the fluent builder wrapping the immutable qmmodel.Model.
// Every method returns a new *Model (qmmodel.Model.Clone() underneath)
// rather than mutating the receiver, so a Model can be safely reused as
// the base of several branching queries.
type Model struct {
	core *qmmodel.Model
}

// Core returns the wrapped immutable container, for callers (tests,
// lower-level tooling) that need direct access to Attributes/Measures/
// Namespaces.
func (m *Model) Core() *qmmodel.Model { return m.core }

func wrap(core *qmmodel.Model) *Model { return &Model{core: core} }

// Table starts a Model rooted at a physical table.
func Table(name string) *Model {
	return wrap(qmmodel.NewModel(qmmodel.ConnectionHandle{}, qmsource.Table(name)))
}

// SchemaTable starts a Model rooted at a schema-qualified table.
func SchemaTable(schema, name string) *Model {
	return wrap(qmmodel.NewModel(qmmodel.ConnectionHandle{}, qmsource.SchemaTable(schema, name)))
}

// RawSource starts a Model rooted at a hand-written SELECT statement.
func RawSource(text string, refs ...string) *Model {
	return wrap(qmmodel.NewModel(qmmodel.ConnectionHandle{}, qmsource.Raw(text, refs...)))
}

// WithConnection binds the Model to an execution driver's connection
// handle (opaque to the core — see qmmodel.ConnectionHandle).
func (m *Model) WithConnection(handle qmmodel.ConnectionHandle) *Model {
	next := m.core.Clone()
	next.Connection = handle
	return wrap(next)
}

// WithActivitySchema records how the base table encodes an event
// sequence, required before Funnel can be called.
func (m *Model) WithActivitySchema(schema qmmodel.ActivitySchema) *Model {
	next := m.core.Clone()
	cp := schema
	next.ActivitySchema = &cp
	return wrap(next)
}

// WithPrimaryKey overrides the default `column("id")` primary key.
func (m *Model) WithPrimaryKey(e qmmodel.Expression) *Model {
	next := m.core.Clone()
	next.PrimaryKey = e
	return wrap(next)
}

// mustValidIdentifier panics if id fails validation — every builder
// method that takes a user-chosen name calls this before registering
// it, matching the panic-on-misuse style Having/WithOffset/WithJoinType
// already use for chain-order mistakes.
func mustValidIdentifier(id qmmodel.Identifier) {
	if err := id.Validate(false); err != nil {
		panic("qm: " + err.Error())
	}
}

// WithAttribute adds or replaces a named attribute expression.
func (m *Model) WithAttribute(id qmmodel.Identifier, e qmmodel.Expression) *Model {
	mustValidIdentifier(id)
	next := m.core.Clone()
	next.Attributes.PutAs(id, e)
	return wrap(next)
}

// WithMeasure adds or replaces a named measure expression (an
// aggregate-shaped expression meant to be selected after Aggregate).
func (m *Model) WithMeasure(id qmmodel.Identifier, e qmmodel.Expression) *Model {
	mustValidIdentifier(id)
	next := m.core.Clone()
	next.Measures.PutAs(id, e)
	return wrap(next)
}

// WithNamespace registers a relation reachable by name, for raw SQL
// text that qualifies a column as `namespace.column`.
func (m *Model) WithNamespace(id qmmodel.Identifier, nested *Model) *Model {
	mustValidIdentifier(id)
	next := m.core.Clone()
	next.Namespaces.PutAs(id, qmmodel.NewNamespace(id, nested.core))
	return wrap(next)
}

// Filter restricts the Model's rows to those matching cond.
func (m *Model) Filter(cond qmmodel.Expression) *Model {
	next := m.core.Clone()
	next.Source = qmsource.NewFilter(next.Source, cond)
	return wrap(next)
}

// Aggregate groups by groupBy and projects measures alongside it.
func (m *Model) Aggregate(groupBy, measures []qmmodel.Expression) *Model {
	next := m.core.Clone()
	next.Source = qmsource.NewAggregate(next.Source, groupBy, measures)
	return wrap(next)
}

// Having attaches a HAVING condition to the most recent Aggregate
// stage. Panics if the current source isn't an Aggregate — callers
// always chain it directly after Aggregate(...).
func (m *Model) Having(cond qmmodel.Expression) *Model {
	next := m.core.Clone()
	agg, ok := next.Source.(qmsource.Aggregate)
	if !ok {
		panic("qm: Having must immediately follow Aggregate")
	}
	next.Source = agg.WithHaving(cond)
	return wrap(next)
}

// Sort orders rows by keys in priority order.
func (m *Model) Sort(keys ...qmsource.SortKey) *Model {
	next := m.core.Clone()
	next.Source = qmsource.NewSort(next.Source, keys...)
	return wrap(next)
}

// Limit caps the row count, with an optional offset via WithOffset
// chained directly afterward.
func (m *Model) Limit(count int) *Model {
	next := m.core.Clone()
	next.Source = qmsource.NewLimit(next.Source, count)
	return wrap(next)
}

// WithOffset attaches an OFFSET to the most recent Limit stage.
// Panics if the current source isn't a Limit.
func (m *Model) WithOffset(offset int) *Model {
	next := m.core.Clone()
	lim, ok := next.Source.(qmsource.Limit)
	if !ok {
		panic("qm: WithOffset must immediately follow Limit")
	}
	next.Source = lim.WithOffset(offset)
	return wrap(next)
}

// Pick projects a fixed set of attribute identifiers.
func (m *Model) Pick(columns ...qmmodel.Identifier) *Model {
	next := m.core.Clone()
	next.Source = qmsource.NewPick(next.Source, columns...)
	return wrap(next)
}

// WithJoinOne joins nested to the Model through an equality/foreign-key
// condition, reachable afterward as namespace.attr.
func (m *Model) WithJoinOne(namespace qmmodel.Identifier, nested *Model, on qmmodel.Expression) *Model {
	mustValidIdentifier(namespace)
	next := m.core.Clone()
	next.Source = qmsource.NewJoinOne(next.Source, namespace, nested.core, on)
	next.Namespaces.PutAs(namespace, qmmodel.NewNamespace(namespace, nested.core))
	return wrap(next)
}

// WithJoinType overrides the most recent WithJoinOne's join kind
// (inner by default). Panics if the current source isn't a JoinOne.
func (m *Model) WithJoinType(t qmsource.JoinType) *Model {
	next := m.core.Clone()
	j, ok := next.Source.(qmsource.JoinOne)
	if !ok {
		panic("qm: WithJoinType must immediately follow WithJoinOne")
	}
	next.Source = j.WithType(t)
	return wrap(next)
}

// Union stacks others beneath the Model with UNION ALL semantics.
func (m *Model) Union(others ...*Model) *Model {
	next := m.core.Clone()
	sources := make([]qmmodel.SourceNode, len(others))
	for i, o := range others {
		sources[i] = o.core.Source
	}
	next.Source = qmsource.NewUnion(next.Source, sources...)
	return wrap(next)
}

// Funnel expands the Model into a match-steps/funnel query over the
// given ordered event keys. Requires WithActivitySchema to have been
// called first.
func (m *Model) Funnel(steps ...string) *Model {
	if m.core.ActivitySchema == nil {
		panic("qm: Funnel requires WithActivitySchema")
	}
	next := m.core.Clone()
	next.Source = qmsource.NewMatchSteps(next.Source, *next.ActivitySchema, steps...)
	addFunnelDerivedFields(next, steps)
	return wrap(next)
}

// WithinWindow narrows the most recent Funnel stage to journeys whose
// steps land within the given number of seconds of each other. Panics
// if the current source isn't a MatchSteps.
func (m *Model) WithinWindow(seconds int64) *Model {
	next := m.core.Clone()
	ms, ok := next.Source.(qmsource.MatchSteps)
	if !ok {
		panic("qm: WithinWindow must immediately follow Funnel")
	}
	next.Source = ms.WithinWindow(seconds)
	return wrap(next)
}

// StartingWith narrows the most recent Funnel stage to journeys whose
// partition window (see PartitionedBy) starts at this event, rather
// than at the funnel's own first step. Panics if the current source
// isn't a MatchSteps.
func (m *Model) StartingWith(event string) *Model {
	next := m.core.Clone()
	ms, ok := next.Source.(qmsource.MatchSteps)
	if !ok {
		panic("qm: StartingWith must immediately follow Funnel")
	}
	next.Source = ms.StartingWith(event)
	return wrap(next)
}

// PartitionedBy sets partition columns on the most recent Funnel stage.
// The funnel still yields one row per group: only events at or after the
// group's earliest start event count, and the partition columns do not
// split a group into one funnel per window (see qmfunnel.Expand). Panics
// if the current source isn't a MatchSteps.
func (m *Model) PartitionedBy(exprs ...qmmodel.Expression) *Model {
	next := m.core.Clone()
	ms, ok := next.Source.(qmsource.MatchSteps)
	if !ok {
		panic("qm: PartitionedBy must immediately follow Funnel")
	}
	next.Source = ms.PartitionedBy(exprs...)
	return wrap(next)
}

// addFunnelDerivedFields registers the derived attributes and measures
// a completed funnel always carries: which step each group last
// matched (by name and by index, highest index wins since CASE returns
// its first matching branch and branches are built highest-index
// first), a total row count, and one count_if measure per step counting
// only groups that matched it.
func addFunnelDerivedFields(m *qmmodel.Model, steps []string) {
	n := len(steps)
	nameBranches := make([]qmexpr.WhenThen, 0, n)
	indexBranches := make([]qmexpr.WhenThen, 0, n)
	for i := n - 1; i >= 0; i-- {
		cond := qmexpr.IsNotNull(stepEventIndexColumn(i))
		nameBranches = append(nameBranches, qmexpr.WhenThen{When: cond, Then: qmexpr.Value(qmexpr.StrLiteral(steps[i]))})
		indexBranches = append(indexBranches, qmexpr.WhenThen{When: cond, Then: qmexpr.Value(qmexpr.IntLiteral(int64(i)))})
	}
	m.Attributes.PutAs("last_matched_step_name", qmexpr.NewCases(nameBranches))
	m.Attributes.PutAs("last_matched_step_index", qmexpr.NewCases(indexBranches))

	m.Measures.PutAs("count", qmexpr.Func("count"))
	for i, step := range steps {
		id := qmmodel.Identifier(fmt.Sprintf("count_if_%s", step))
		m.Measures.PutAs(id, qmexpr.Func("count", qmexpr.NewCases([]qmexpr.WhenThen{
			{When: qmexpr.IsNotNull(stepEventIndexColumn(i)), Then: qmexpr.Value(qmexpr.IntLiteral(1))},
		})))
	}
}

func stepEventIndexColumn(i int) qmexpr.ColumnName {
	return qmexpr.Column(qmmodel.Identifier(fmt.Sprintf("step_%d_event_index", i)))
}

func (m *Model) effectivePrimaryKey() qmmodel.Expression {
	if m.core.PrimaryKey != nil {
		return m.core.PrimaryKey
	}
	return defaultPrimaryKey
}

// Sql compiles the Model against dialect/settings and returns a Result
// whose Compile section carries the SQL text, any compiler warnings and
// compilation errors. reflector may be nil when no live connection is
// available (column metadata is then left unreflected, which only
// matters for dialects/features that need it, e.g. SELECT * column
// disambiguation). The returned error is the same as Result.Compile's
// failure, duplicated on the Go error return so callers that only care
// about success/failure don't need to inspect the envelope.
func (m *Model) Sql(dialect qmdialect.Dialect, settings qmconf.Settings, reflector qmctx.ColumnReflector) (*Result, error) {
	withKey := m.core.Clone()
	withKey.PrimaryKey = m.effectivePrimaryKey()

	cc := qmctx.New(dialect, settings, reflector)
	cc.RefResolver = buildRefResolver(withKey)

	queryText, err := qmcompiler.CompileModel(cc, withKey)

	if settings.PrintWarnings {
		for _, w := range cc.Warnings {
			qmlog.Warn("compile warning", "warning", w)
		}
	}

	result := &Result{
		Compile: CompileResult{
			OK:        err == nil,
			QueryText: queryText,
			Warnings:  cc.Warnings,
		},
		Freshness: settings.Freshness,
	}
	if err != nil {
		result.Compile.Errors = []string{err.Error()}
		return result, err
	}
	return result, nil
}

// Run compiles the Model and executes it against client, scanning rows
// into dest (a pointer to a slice, per sqlx.SelectContext's contract).
// The returned Result's Data section is populated only once execution
// was attempted — it stays nil if compilation itself failed.
func (m *Model) Run(ctx context.Context, client *qmdriver.Client, dest interface{}, settings qmconf.Settings, args ...interface{}) (*Result, error) {
	dialect, ok := qmdialect.Get(client.Dialect())
	if !ok {
		err := qmerr.NewInternalCompilationError("qm: no dialect registered for " + string(client.Dialect()))
		return &Result{Compile: CompileResult{Errors: []string{err.Error()}}}, err
	}

	result, err := m.Sql(dialect, settings, client)
	if err != nil {
		return result, err
	}
	if settings.SQLOnly {
		return result, nil
	}

	start := time.Now()
	execErr := client.Execute(ctx, dest, result.Compile.QueryText, args...)
	duration := time.Since(start)

	data := &DataResult{
		OK:         execErr == nil,
		DurationMS: duration.Milliseconds(),
	}
	if execErr != nil {
		data.Errors = []string{execErr.Error()}
	}
	if settings.PrintExecStats {
		qmlog.Info("query executed", "duration_ms", data.DurationMS, "ok", data.OK)
	}
	result.Data = data
	if execErr != nil {
		return result, qmerr.NewExecutionError(data.Errors[0], execErr)
	}
	return result, nil
}

// buildRefResolver resolves a `{{ ref }}` / `{{ namespace.ref }}`
// placeholder in raw SQL text against m's own Attributes/Measures (and,
// for a qualified reference, the named Namespace's nested model). Only
// plain column references, nested raw SQL and simple literals resolve
// without a compiled layer to qualify them against — a BinaryOp/Cases/
// SqlFunction attribute referenced by name falls through unresolved,
// since giving it a qualified rendering would require the layer the
// reference is encountered in, which InlineReferences does not thread
// through. Callers that need a computed attribute inlined should
// reference its parts directly rather than the computed name.
func buildRefResolver(m *qmmodel.Model) func(ref string) (string, bool) {
	return func(ref string) (string, bool) {
		if dot := strings.Index(ref, "."); dot >= 0 {
			nsName, attr := qmmodel.Identifier(ref[:dot]), qmmodel.Identifier(ref[dot+1:])
			ns, ok := m.Namespaces.Get(nsName)
			if !ok {
				return "", false
			}
			return resolveFrom(ns.NestedModel(), attr)
		}
		return resolveFrom(m, qmmodel.Identifier(ref))
	}
}

func resolveFrom(m *qmmodel.Model, id qmmodel.Identifier) (string, bool) {
	if e, ok := m.Attributes.Get(id); ok {
		return renderSimple(e)
	}
	if e, ok := m.Measures.Get(id); ok {
		return renderSimple(e)
	}
	return "", false
}

func renderSimple(e qmmodel.Expression) (string, bool) {
	switch v := e.(type) {
	case qmexpr.ColumnName:
		return string(v.Column), true
	case qmexpr.SqlText:
		return v.Text, true
	case qmexpr.PyValue:
		return v.Value.String(), true
	default:
		return "", false
	}
}
