package qmdialect

import "strings"

// TranslateStrftime rewrites a strftime-style layout (%Y-%m-%d) into a
// dialect's native format-string dialect by substituting each %-token
// found in tokens. Unrecognized tokens pass through unchanged, so an
// author mixing a token no table below handles gets a literal (and
// likely wrong) fragment rather than a panic — the compiler surfaces
// that as a runtime SQL error from the warehouse, not a compile error
// here.
func TranslateStrftime(layout string, tokens map[string]string) string {
	var sb strings.Builder
	for i := 0; i < len(layout); i++ {
		if layout[i] == '%' && i+1 < len(layout) {
			key := layout[i : i+2]
			if repl, ok := tokens[key]; ok {
				sb.WriteString(repl)
				i++
				continue
			}
		}
		sb.WriteByte(layout[i])
	}
	return sb.String()
}

// DefaultStrftimeTokens is the common %Y/%m/%d/%H/%M/%S vocabulary most
// dialects share in an Oracle-style (YYYY/MM/DD/HH24/MI/SS) target
// format; dialect packages call MergeTokens to override or extend it.
var DefaultStrftimeTokens = map[string]string{
	"%Y": "YYYY",
	"%m": "MM",
	"%d": "DD",
	"%H": "HH24",
	"%M": "MI",
	"%S": "SS",
}

// MergeTokens returns a copy of base with overrides applied, so a
// dialect package can start from DefaultStrftimeTokens without mutating
// the shared map.
func MergeTokens(base map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
