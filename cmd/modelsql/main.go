// Command modelsql is a small end-to-end demo of the qm builder
// facade: it builds a query against a connection named on the command
// line, compiles it and either prints the SQL (-sql-only) or runs it
// and prints the rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/fj1981/modelsql/pkg/qm"
	"github.com/fj1981/modelsql/pkg/qmconf"
	"github.com/fj1981/modelsql/pkg/qmdialect"
	_ "github.com/fj1981/modelsql/pkg/qmdialect/postgres"
	"github.com/fj1981/modelsql/pkg/qmdriver"
	"github.com/fj1981/modelsql/pkg/qmexpr"
	"github.com/fj1981/modelsql/pkg/qmlog"
)

func main() {
	host := flag.String("host", "localhost", "database host")
	port := flag.Int("port", 5432, "database port")
	user := flag.String("user", "postgres", "database user")
	password := flag.String("password", "", "database password")
	database := flag.String("database", "postgres", "database name")
	table := flag.String("table", "events", "table to query")
	key := flag.String("key", "", "connection key; a fresh one is generated if empty")
	sqlOnly := flag.Bool("sql-only", false, "print the compiled SQL instead of running it")
	flag.Parse()

	qmlog.InitDefault(qmlog.WithLevelStr("info"))

	connKey := *key
	if connKey == "" {
		// A human-chosen -key lets repeated runs reuse the same pooled
		// connection via Manager; a generated one (a uuid, or an xid when
		// uuid generation fails)
		// still gives every anonymous run a stable, collision-free
		// identity to log and to key the connection pool on.
		if id, err := uuid.NewRandom(); err == nil {
			connKey = id.String()
		} else {
			connKey = xid.New().String()
		}
	}

	spec := qmdriver.ConnectionSpec{
		Key:      connKey,
		Dialect:  qmdialect.Postgres,
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Database: *database,
	}

	var manager qmdriver.Manager
	client, err := manager.GetOrConnect(spec)
	if err != nil {
		qmlog.Error("connect failed", "key", connKey, "err", err)
		os.Exit(1)
	}
	defer manager.CloseAll()

	dialect, ok := qmdialect.Get(qmdialect.Postgres)
	if !ok {
		qmlog.Error("postgres dialect not registered")
		os.Exit(1)
	}

	model := qm.Table(*table).
		Filter(qmexpr.Eq(qmexpr.Column("status"), qmexpr.Value(qmexpr.StrLiteral("active")))).
		Limit(100)

	settings := qmconf.DefaultSettings()
	settings.SQLOnly = *sqlOnly

	if settings.SQLOnly {
		result, err := model.Sql(dialect, settings, client)
		if err != nil {
			qmlog.Error("compile failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(result.Compile.QueryText)
		for _, w := range result.Compile.Warnings {
			qmlog.Warn("compile warning", "warning", w)
		}
		return
	}

	var rows []eventRow
	result, err := model.Run(context.Background(), client, &rows, settings)
	if err != nil {
		qmlog.Error("run failed", "err", err)
		os.Exit(1)
	}
	if result.Data != nil {
		qmlog.Info("query finished", "duration_ms", result.Data.DurationMS)
	}
	for _, row := range rows {
		fmt.Printf("%+v\n", row)
	}
}

// eventRow is the demo's expected shape for -table's rows; a real
// caller replaces this with whatever struct matches its own schema.
type eventRow struct {
	ID     int64  `db:"id"`
	Status string `db:"status"`
}
