package qmctx

import "fmt"

// ColumnMeta is the minimal type information the compiler tracks per
// projected column — enough to drive dialect-specific cast workarounds
// without a full type system.
type ColumnMeta struct {
	SQLType string
}

// Namespace tracks one relation reachable from the layer currently
// being built: its runtime alias and which columns have been reflected.
// UsedNames records which columns were actually referenced, letting a
// JoinOne elide a join nobody's expression touched.
type Namespace struct {
	Ref            string
	ColumnMetadata map[string]ColumnMeta
	UsedNames      map[string]bool
}

func newNamespace(ref string) *Namespace {
	return &Namespace{Ref: ref, ColumnMetadata: map[string]ColumnMeta{}, UsedNames: map[string]bool{}}
}

// MarkUsed records that column was referenced from this namespace, for
// later join-elision / disambiguation decisions.
func (n *Namespace) MarkUsed(column string) {
	if n.UsedNames == nil {
		n.UsedNames = map[string]bool{}
	}
	n.UsedNames[column] = true
}

// FinalizeHandler is queued on a layer and run once, in FIFO order,
// when the layer is finalized — used by JoinOne to decide whether its
// join namespace was ever referenced and, if so, compile and emit the
// ON-clause against the layer's settled namespace set.
type FinalizeHandler func(l *QueryLayer) error

// QueryLayer represents one SELECT scope under construction.
type QueryLayer struct {
	ctx *QueryContext

	// SelectList holds the rendered `<expr> AS <alias>` fragments, in
	// projection order. Empty means "SELECT *" (no explicit selections
	// yet).
	SelectList []string
	FromClause string
	WhereExprs []string
	HavingExprs []string
	GroupBy    []string
	OrderBy    []string
	Limit      int
	HasLimit   bool
	Offset     int

	HasSelections    bool
	IsAggregated     bool
	IsJoined         bool
	IsOrderDependent bool

	Main   *Namespace
	Joined map[string]*Namespace

	// SourceKey is the stable hash of the source this layer represents,
	// used to register an alias checkpoint on Chained().
	SourceKey uint64

	onFinalize []FinalizeHandler
	finalized  bool
}

// NewLayer starts a fresh layer selecting from a base relation named ref
// (a table name or a previously chained CTE name).
func NewLayer(ctx *QueryContext, ref string, sourceKey uint64) *QueryLayer {
	return &QueryLayer{
		ctx:        ctx,
		FromClause: ref,
		Main:       newNamespace(ref),
		Joined:     map[string]*Namespace{},
		SourceKey:  sourceKey,
	}
}

// CanAggregate reports whether an Aggregate source can fold into this
// layer rather than forcing a new CTE.
func (l *QueryLayer) CanAggregate() bool {
	return !l.HasSelections && !l.IsAggregated && !l.IsOrderDependent
}

// CanSetSelections reports whether a Pick/JoinOne can still install a
// projection on this layer.
func (l *QueryLayer) CanSetSelections() bool {
	return !l.HasSelections && !l.IsAggregated
}

// NeedsColumnDisambiguation reports whether bare column references must
// be qualified by namespace to stay unambiguous.
func (l *QueryLayer) NeedsColumnDisambiguation() bool {
	return l.IsJoined && !l.IsAggregated
}

// AddFinalizeHandler queues h to run once, in registration order, when
// the layer is finalized.
func (l *QueryLayer) AddFinalizeHandler(h FinalizeHandler) {
	l.onFinalize = append(l.onFinalize, h)
}

// Finalized drains the FIFO on-finalize handler queue exactly once; a
// second call is a silent no-op, matching the at-most-once semantics
// callers rely on.
func (l *QueryLayer) Finalized() error {
	if l.finalized {
		return nil
	}
	l.finalized = true
	for _, h := range l.onFinalize {
		if err := h(l); err != nil {
			return err
		}
	}
	return nil
}

// Render assembles the layer's evolving SELECT into SQL text. Called
// both for the final result and, from Chained, to wrap this layer in a
// CTE body.
func (l *QueryLayer) Render() string {
	selectList := "*"
	if l.HasSelections && len(l.SelectList) > 0 {
		selectList = joinWithComma(l.SelectList)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", selectList, l.FromClause)
	for name, ns := range l.Joined {
		if len(ns.UsedNames) == 0 {
			continue // elided: nothing referenced this join's namespace
		}
		sql += fmt.Sprintf(" /* joins %s */", name)
	}
	if len(l.WhereExprs) > 0 {
		sql += " WHERE " + joinWithAnd(l.WhereExprs)
	}
	if len(l.GroupBy) > 0 {
		sql += " GROUP BY " + joinWithComma(l.GroupBy)
	}
	if len(l.HavingExprs) > 0 {
		sql += " HAVING " + joinWithAnd(l.HavingExprs)
	}
	if len(l.OrderBy) > 0 {
		sql += " ORDER BY " + joinWithComma(l.OrderBy)
	}
	if l.HasLimit {
		sql += fmt.Sprintf(" LIMIT %d", l.Limit)
		if l.Offset > 0 {
			sql += fmt.Sprintf(" OFFSET %d", l.Offset)
		}
	}
	return sql
}

// Chained finalizes this layer, emits it as a CTE, and returns a fresh
// layer selecting `SELECT * FROM <cte>`. An alias checkpoint is
// registered against l.SourceKey so a later occurrence of the same
// source reuses this CTE instead of recompiling it.
func (l *QueryLayer) Chained() (cteName, cteBody string, next *QueryLayer, err error) {
	if err := l.Finalized(); err != nil {
		return "", "", nil, err
	}
	cteName = l.ctx.NextCTEName()
	cteBody = l.Render()

	columns := l.Main.ColumnMetadata
	if l.HasSelections {
		columns = projectedColumnMetadata(l)
	}
	l.ctx.AddAliasCheckpoint(l.SourceKey, cteName, columns)

	next = NewLayer(l.ctx, cteName, l.SourceKey)
	next.Main.ColumnMetadata = columns
	return cteName, cteBody, next, nil
}

func projectedColumnMetadata(l *QueryLayer) map[string]ColumnMeta {
	// No column types are derived from an explicit selection list: the
	// base relation's Main.ColumnMetadata is carried over unchanged, so
	// renamed or computed projections have no metadata entry.
	return l.Main.ColumnMetadata
}

func joinWithComma(items []string) string { return joinWith(items, ", ") }
func joinWithAnd(items []string) string   { return joinWith(items, " AND ") }

func joinWith(items []string, sep string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += sep
		}
		out += it
	}
	return out
}
