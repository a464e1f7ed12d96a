package qmcompiler

import (
	"regexp"
	"strings"

	"github.com/fj1981/modelsql/pkg/qmctx"
	"github.com/fj1981/modelsql/pkg/qmerr"
)

// maxRefExpansions bounds recursive {{ref}} inlining so a cyclic
// reference chain fails fast with a clear error instead of looping
// forever.
const maxRefExpansions = 10000

var refPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// RefResolver looks up the compiled SQL text for an identifier or
// `namespace.attr` reference found inside a SqlText body.
type RefResolver func(ref string) (string, bool)

// InlineReferences repeatedly substitutes `{{ id }}` / `{{ ns.attr }}`
// placeholders in text with the fully compiled SQL of the referenced
// expression, recursing into the substituted text until no placeholders
// remain. With a nil resolver the text is returned unchanged, placeholders
// included (the qm facade package wires a resolver that looks references
// up against the enclosing model).
func InlineReferences(cc *qmctx.QueryContext, text string, resolve RefResolver) (string, error) {
	if resolve == nil {
		// No resolver configured: references are left as literal text.
		// Callers that need resolution (compiling against a live model)
		// always pass one.
		return text, nil
	}
	current := text
	for i := 0; i < maxRefExpansions; i++ {
		if !refPattern.MatchString(current) {
			return current, nil
		}
		var expandErr error
		next := refPattern.ReplaceAllStringFunc(current, func(match string) string {
			ref := strings.TrimSpace(refPattern.FindStringSubmatch(match)[1])
			sql, ok := resolve(ref)
			if !ok {
				expandErr = qmerr.NewUserCompilationError(qmerr.CodeUnknownReference,
					"unknown reference \""+ref+"\" in SQL text").WithDetails(match)
				return match
			}
			return sql
		})
		if expandErr != nil {
			return "", expandErr
		}
		current = next
	}
	return "", qmerr.NewUserCompilationError(qmerr.CodeReferenceCycle,
		"reference expansion exceeded 10000 substitutions, likely a cycle")
}

// selfTableAlias is the qualifier user SQL text uses to mean "the
// layer's own main relation", rewritten to the runtime alias during
// namespace resolution.
const selfTableAlias = "self"

var qualifiedColumnPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)

// RewriteNamespaceQualifiers is a best-effort scanner (not a full SQL
// parser) that rewrites `table.column` references inside raw SQL text:
// "self" and any known join-namespace are replaced with the runtime
// CTE/alias name, and the qualifier is dropped entirely when the layer
// doesn't need column disambiguation.
func RewriteNamespaceQualifiers(layer *qmctx.QueryLayer, text string) string {
	return qualifiedColumnPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := qualifiedColumnPattern.FindStringSubmatch(match)
		table, column := groups[1], groups[2]

		if table == selfTableAlias {
			if !layer.NeedsColumnDisambiguation() {
				return column
			}
			layer.Main.MarkUsed(column)
			return layer.Main.Ref + "." + column
		}
		if ns, ok := layer.Joined[table]; ok {
			ns.MarkUsed(column)
			if !layer.NeedsColumnDisambiguation() {
				return column
			}
			return ns.Ref + "." + column
		}
		return match
	})
}
