package qmdriver

// Blank-imports lib/pq so its driver registers itself under the
// "postgres" name with database/sql. A separate file per driver keeps
// each backend's import isolated and easy to drop.
import _ "github.com/lib/pq"
