package qmmodel

// Expression is the minimal surface the Model container needs from a
// column-expression IR node. The concrete sum type lives in package
// qmexpr, which implements this interface — qmmodel never imports qmexpr,
// keeping Model/Source/Expression a tree of packages rather than an
// import cycle even though subqueries can reference their own enclosing
// model.
type Expression interface {
	Identifiable
	// Kind names the concrete variant ("columnName", "sqlText", "pyValue",
	// "binaryOp", "cases", "granularity", "formatTimestamp",
	// "sqlFunction", "subquery") for dispatch without a type-assertion
	// chain crossing package boundaries.
	Kind() string
	// ManualIdentifier returns the manually-set identifier, if any.
	ManualIdentifier() (Identifier, bool)
	// DefaultIdentifier returns the variant's inferred identifier, if any.
	DefaultIdentifier() (Identifier, bool)
	// Disambiguated returns a copy of the expression qualified to the
	// given namespace.
	Disambiguated(namespace string) Expression
	// Fields returns the column names this expression reads, used for
	// join-elision analysis and GROUP BY position inference.
	Fields() []string
}

// SourceNode is the minimal surface the Model container needs from a
// Source IR node. The concrete sum type lives in package qmsource.
type SourceNode interface {
	// Kind names the concrete variant ("tableName", "sqlText", "pick",
	// "filter", "sort", "limit", "aggregate", "joinOne", "union",
	// "matchSteps").
	Kind() string
	// Base returns the wrapped source, or nil for a leaf (tableName,
	// sqlText).
	Base() SourceNode
}

// Namespace is an aliased relation reachable through a join: attribute
// access on it returns the attribute from NestedModel, disambiguated to
// Identifier.
type Namespace struct {
	identifier         Identifier
	nestedModel        *Model
	throughForeignKey  Expression
	hasThroughForeignK bool
}

func NewNamespace(id Identifier, nested *Model) Namespace {
	return Namespace{identifier: id, nestedModel: nested}
}

func (n Namespace) Identifier() Identifier { return n.identifier }
func (n Namespace) NestedModel() *Model    { return n.nestedModel }

func (n Namespace) ThroughForeignKey() (Expression, bool) {
	return n.throughForeignKey, n.hasThroughForeignK
}

func (n Namespace) WithThroughForeignKey(fk Expression) Namespace {
	n.throughForeignKey = fk
	n.hasThroughForeignK = true
	return n
}

// EffectiveIdentifier lets Namespace live inside an IdentifiableMap keyed
// by its own identifier.
func (n Namespace) EffectiveIdentifier() (Identifier, bool) {
	if n.identifier == "" {
		return "", false
	}
	return n.identifier, true
}

// ActivitySchema describes how a base table encodes a sequence of events
// for the match-steps/funnel algorithm: which column groups rows into a
// journey, which orders events within it, and which names the event.
type ActivitySchema struct {
	Group     Identifier
	Timestamp Identifier
	EventKey  Identifier
}

// ConnectionHandle is an opaque reference to the execution driver's
// connection; the core never inspects it beyond holding and forwarding
// it.
type ConnectionHandle struct {
	driverRef any
}

func NewConnectionHandle(driverRef any) ConnectionHandle {
	return ConnectionHandle{driverRef: driverRef}
}

func (c ConnectionHandle) DriverRef() any { return c.driverRef }

// Model is the immutable container: a connection handle, a source plan,
// attribute/measure maps, relation namespaces, a primary key, an
// optional activity schema, and free-form metadata. Every "with_*"
// builder method on Model (defined in package qm, which also knows how
// to construct qmsource.Source/qmexpr.Expression nodes) returns a deep
// copy — Model itself is never mutated.
type Model struct {
	Connection     ConnectionHandle
	Source         SourceNode
	Attributes     *IdentifiableMap[Expression]
	Measures       *IdentifiableMap[Expression]
	Namespaces     *IdentifiableMap[Namespace]
	PrimaryKey     Expression
	ActivitySchema *ActivitySchema
	CustomMeta     map[string]any
}

// NewModel returns an empty Model bound to the given source and
// connection. PrimaryKey defaults to nil; callers set it via
// qm.Model.WithPrimaryKey (defaulting to column("id") when unset).
func NewModel(conn ConnectionHandle, source SourceNode) *Model {
	return &Model{
		Connection: conn,
		Source:     source,
		Attributes: NewIdentifiableMap[Expression](),
		Measures:   NewIdentifiableMap[Expression](),
		Namespaces: NewIdentifiableMap[Namespace](),
		CustomMeta: map[string]any{},
	}
}

// Clone performs the deep copy every builder method must return:
// shallow-cloning the maps (IdentifiableMap.Clone) and copying CustomMeta.
// Source/Expression/PrimaryKey values are themselves immutable once
// constructed, so copying the reference is sufficient — callers that
// change the source plan replace m.Source wholesale rather than mutating
// it in place.
func (m *Model) Clone() *Model {
	meta := make(map[string]any, len(m.CustomMeta))
	for k, v := range m.CustomMeta {
		meta[k] = v
	}
	var schema *ActivitySchema
	if m.ActivitySchema != nil {
		cp := *m.ActivitySchema
		schema = &cp
	}
	return &Model{
		Connection:     m.Connection,
		Source:         m.Source,
		Attributes:     m.Attributes.Clone(),
		Measures:       m.Measures.Clone(),
		Namespaces:     m.Namespaces.Clone(),
		PrimaryKey:     m.PrimaryKey,
		ActivitySchema: schema,
		CustomMeta:     meta,
	}
}
