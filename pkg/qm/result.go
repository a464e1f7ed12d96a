package qm

import "github.com/fj1981/modelsql/pkg/qmconf"

// CompileResult reports whether compilation succeeded, the SQL text it
// produced (empty on failure), and any warnings/errors accumulated
// along the way.
type CompileResult struct {
	OK        bool
	QueryText string
	Warnings  []string
	Errors    []string
}

// DataResult reports the outcome of actually running the compiled SQL.
// Run does not fill CSV: rows are scanned into the caller's dest
// instead, and no columnar encoding (arrow_ipc) is produced — see
// DESIGN.md.
type DataResult struct {
	OK         bool
	CSV        string
	DurationMS int64
	Warnings   []string
	Errors     []string
}

// Result is what Sql/Run hand back to callers: the compile outcome
// always, the data outcome only once Run has actually executed, plus
// whatever freshness/expiration markers the configured settings and
// driver produced.
type Result struct {
	Compile    CompileResult
	Data       *DataResult
	Freshness  *qmconf.Freshness
	Expiration *string // RFC3339; nil until a driver reports one
}
