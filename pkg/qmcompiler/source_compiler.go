package qmcompiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	"github.com/fj1981/modelsql/pkg/qmerr"
	"github.com/fj1981/modelsql/pkg/qmfunnel"
	"github.com/fj1981/modelsql/pkg/qmmodel"
	"github.com/fj1981/modelsql/pkg/qmsource"
	"github.com/fj1981/modelsql/pkg/qmwire"
)

// compileResult threads both the finished layer and any emitted CTEs
// (in declaration order) back up the recursive source compiler.
type compileResult struct {
	Layer *qmctx.QueryLayer
	CTEs  []cte
}

type cte struct {
	Name string
	Body string
}

// CompileModel compiles m's full source chain and renders the final
// SQL text, including any WITH clause needed for emitted CTEs.
func CompileModel(cc *qmctx.QueryContext, m *qmmodel.Model) (string, error) {
	result, err := compileSource(cc, m.Source)
	if err != nil {
		return "", err
	}
	if err := result.Layer.Finalized(); err != nil {
		return "", err
	}
	body := result.Layer.Render()
	if len(result.CTEs) == 0 {
		return body, nil
	}
	var sb strings.Builder
	sb.WriteString("WITH ")
	for i, c := range result.CTEs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s AS (%s)", c.Name, c.Body))
	}
	sb.WriteString(" ")
	sb.WriteString(body)
	return sb.String(), nil
}

func compileSource(cc *qmctx.QueryContext, node qmmodel.SourceNode) (compileResult, error) {
	// MatchSteps is expanded into an equivalent plain source tree before
	// any other variant ever sees it.
	if ms, ok := node.(qmsource.MatchSteps); ok {
		expanded, err := qmfunnel.Expand(cc, ms)
		if err != nil {
			return compileResult{}, err
		}
		node = expanded
	}

	switch n := node.(type) {
	case qmsource.TableName:
		return compileTableName(cc, n)
	case qmsource.SqlText:
		return compileRawSource(cc, n)
	case qmsource.Pick:
		return compilePick(cc, n)
	case qmsource.Filter:
		return compileFilter(cc, n)
	case qmsource.Sort:
		return compileSort(cc, n)
	case qmsource.Limit:
		return compileLimit(cc, n)
	case qmsource.Aggregate:
		return compileAggregate(cc, n)
	case qmsource.JoinOne:
		return compileJoinOne(cc, n)
	case qmsource.Union:
		return compileUnion(cc, n)
	default:
		return compileResult{}, qmerr.NewInternalCompilationError(fmt.Sprintf("unrecognized source kind %q", node.Kind()))
	}
}

func sourceKeyOf(node qmmodel.SourceNode) uint64 {
	canonical, err := qmwire.CanonicalSourceBytes(node)
	if err != nil {
		// A node that can't round-trip through JSON (a raw func value
		// smuggled in somewhere) still needs a key; fall back to its
		// kind tag plus pointer identity rather than failing the
		// compile outright.
		return qmctx.StableHash([]byte(fmt.Sprintf("%p:%s", node, node.Kind())))
	}
	return qmctx.StableHash(canonical)
}

func compileTableName(cc *qmctx.QueryContext, t qmsource.TableName) (compileResult, error) {
	key := sourceKeyOf(t)
	if ref, cols, ok := cc.GetAliasCheckpoint(key); ok {
		layer := qmctx.NewLayer(cc, ref, key)
		for name, sqlType := range cols {
			layer.Main.ColumnMetadata[name] = qmctx.ColumnMeta{SQLType: sqlType}
		}
		return compileResult{Layer: layer}, nil
	}

	ref := t.Table
	if t.Schema != "" {
		ref = t.Schema + "." + t.Table
	}
	layer := qmctx.NewLayer(cc, ref, key)
	cols, err := cc.ReflectColumns(ref)
	if err == nil {
		for name, sqlType := range cols {
			layer.Main.ColumnMetadata[name] = qmctx.ColumnMeta{SQLType: sqlType}
		}
	}
	return compileResult{Layer: layer}, nil
}

func compileRawSource(cc *qmctx.QueryContext, s qmsource.SqlText) (compileResult, error) {
	cc.AddReservedName(s.Text, true)
	key := sourceKeyOf(s)
	layer := qmctx.NewLayer(cc, "", key)
	layer.FromClause = fmt.Sprintf("(%s)", s.Text)
	name, body, next, err := layer.Chained()
	if err != nil {
		return compileResult{}, err
	}
	return compileResult{Layer: next, CTEs: []cte{{Name: name, Body: body}}}, nil
}

func compileAtLeaf(cc *qmctx.QueryContext, base qmmodel.SourceNode) (compileResult, error) {
	if base == nil {
		return compileResult{}, qmerr.NewInternalCompilationError("source node has nil base")
	}
	return compileSource(cc, base)
}

func compilePick(cc *qmctx.QueryContext, p qmsource.Pick) (compileResult, error) {
	base, err := compileAtLeaf(cc, p.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	if !layer.CanSetSelections() {
		name, body, next, err := layer.Chained()
		if err != nil {
			return compileResult{}, err
		}
		base.CTEs = append(base.CTEs, cte{Name: name, Body: body})
		layer = next
	}

	selections := make([]string, 0, len(p.Columns))
	for _, col := range p.Columns {
		alias := col
		if renamed, ok := p.Aliases[col]; ok {
			alias = renamed
		}
		qualifier := layer.Main.Ref
		frag := string(col)
		if layer.NeedsColumnDisambiguation() {
			frag = qualifier + "." + string(col)
		}
		if alias != col {
			frag = fmt.Sprintf("%s AS %s", frag, alias)
		}
		selections = append(selections, frag)
	}
	layer.SelectList = selections
	layer.HasSelections = true
	base.Layer = layer
	return base, nil
}

func compileFilter(cc *qmctx.QueryContext, f qmsource.Filter) (compileResult, error) {
	base, err := compileAtLeaf(cc, f.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	cond, err := CompileExpression(cc, layer, f.Condition, false)
	if err != nil {
		return compileResult{}, err
	}
	if layer.IsAggregated {
		layer.HavingExprs = append(layer.HavingExprs, cond)
	} else {
		layer.WhereExprs = append(layer.WhereExprs, cond)
	}
	base.Layer = layer
	return base, nil
}

func compileSort(cc *qmctx.QueryContext, s qmsource.Sort) (compileResult, error) {
	base, err := compileAtLeaf(cc, s.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	for _, key := range s.Keys {
		frag, err := CompileExpression(cc, layer, key.Expr, false)
		if err != nil {
			return compileResult{}, err
		}
		if key.Direction == qmsource.Desc {
			frag += " DESC"
		}
		layer.OrderBy = append(layer.OrderBy, frag)
	}
	layer.IsOrderDependent = true
	base.Layer = layer
	return base, nil
}

func compileLimit(cc *qmctx.QueryContext, l qmsource.Limit) (compileResult, error) {
	base, err := compileAtLeaf(cc, l.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	layer.HasLimit = true
	layer.Limit = l.Count
	layer.Offset = l.Offset
	layer.IsOrderDependent = true
	base.Layer = layer
	return base, nil
}

func compileAggregate(cc *qmctx.QueryContext, a qmsource.Aggregate) (compileResult, error) {
	base, err := compileAtLeaf(cc, a.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	if !layer.CanAggregate() {
		name, body, next, err := layer.Chained()
		if err != nil {
			return compileResult{}, err
		}
		base.CTEs = append(base.CTEs, cte{Name: name, Body: body})
		layer = next
	}

	useNamedGroupBy := cc.Dialect != nil && cc.Dialect.Name() == qmdialect.ClickHouse

	var selections []string
	var groupBy []string
	for i, g := range a.GroupBy {
		sql, err := CompileExpression(cc, layer, g, true)
		if err != nil {
			return compileResult{}, err
		}
		selections = append(selections, sql)
		if useNamedGroupBy {
			if id, ok := g.EffectiveIdentifier(); ok {
				groupBy = append(groupBy, string(id))
				continue
			}
		}
		groupBy = append(groupBy, strconv.Itoa(i+1))
	}
	for _, m := range a.Measures {
		sql, err := CompileExpression(cc, layer, m, true)
		if err != nil {
			return compileResult{}, err
		}
		selections = append(selections, sql)
	}
	if a.HasHaving {
		cond, err := CompileExpression(cc, layer, a.Having, false)
		if err != nil {
			return compileResult{}, err
		}
		layer.HavingExprs = append(layer.HavingExprs, cond)
	}

	layer.SelectList = selections
	layer.HasSelections = true
	layer.IsAggregated = true
	layer.GroupBy = groupBy
	base.Layer = layer
	return base, nil
}

func compileJoinOne(cc *qmctx.QueryContext, j qmsource.JoinOne) (compileResult, error) {
	base, err := compileAtLeaf(cc, j.Of)
	if err != nil {
		return compileResult{}, err
	}
	layer := base.Layer
	if !layer.CanSetSelections() {
		name, body, next, err := layer.Chained()
		if err != nil {
			return compileResult{}, err
		}
		base.CTEs = append(base.CTEs, cte{Name: name, Body: body})
		layer = next
	}

	forked := cc.ForkCTENames(string(j.Namespace))
	nestedResult, err := compileSource(forked, j.Nested.Source)
	if err != nil {
		return compileResult{}, err
	}
	if err := nestedResult.Layer.Finalized(); err != nil {
		return compileResult{}, err
	}
	nestedName := forked.NextCTEName()
	base.CTEs = append(base.CTEs, nestedResult.CTEs...)
	base.CTEs = append(base.CTEs, cte{Name: nestedName, Body: nestedResult.Layer.Render()})

	ns := &qmctx.Namespace{Ref: nestedName, ColumnMetadata: nestedResult.Layer.Main.ColumnMetadata, UsedNames: map[string]bool{}}
	layer.Joined[string(j.Namespace)] = ns
	layer.IsJoined = true

	onCondition := j.On
	joinType := j.Type
	layer.AddFinalizeHandler(func(l *qmctx.QueryLayer) error {
		if len(ns.UsedNames) == 0 {
			delete(l.Joined, string(j.Namespace))
			return nil
		}
		onSQL, err := CompileExpression(cc, l, onCondition, false)
		if err != nil {
			return err
		}
		verb := "JOIN"
		if joinType == qmsource.JoinLeft {
			verb = "LEFT JOIN"
		}
		l.FromClause = fmt.Sprintf("%s %s %s ON %s", l.FromClause, verb, ns.Ref, onSQL)
		return nil
	})

	base.Layer = layer
	return base, nil
}

func compileUnion(cc *qmctx.QueryContext, u qmsource.Union) (compileResult, error) {
	branches := append([]qmmodel.SourceNode{u.Of}, u.Others...)
	var bodies []string
	var allCTEs []cte
	for _, b := range branches {
		result, err := compileSource(cc, b)
		if err != nil {
			return compileResult{}, err
		}
		if err := result.Layer.Finalized(); err != nil {
			return compileResult{}, err
		}
		bodies = append(bodies, result.Layer.Render())
		allCTEs = append(allCTEs, result.CTEs...)
	}
	combined := strings.Join(bodies, " UNION ALL ")

	key := sourceKeyOf(u)
	layer := qmctx.NewLayer(cc, "", key)
	layer.FromClause = fmt.Sprintf("(%s)", combined)
	name, body, next, err := layer.Chained()
	if err != nil {
		return compileResult{}, err
	}
	allCTEs = append(allCTEs, cte{Name: name, Body: body})
	return compileResult{Layer: next, CTEs: allCTEs}, nil
}
