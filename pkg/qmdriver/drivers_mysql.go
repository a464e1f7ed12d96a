package qmdriver

// Blank-imports go-sql-driver/mysql so it registers itself under the
// "mysql" name with database/sql.
import _ "github.com/go-sql-driver/mysql"
