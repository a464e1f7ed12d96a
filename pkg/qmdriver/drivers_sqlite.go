package qmdriver

// Blank-imports logoove/sqlite, a pure-Go sqlite driver (picked over
// mattn/go-sqlite3 to avoid a cgo dependency), registering itself
// under the "sqlite" name.
import _ "github.com/logoove/sqlite"
