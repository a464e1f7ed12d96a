// Package qmdriver implements the opaque ExecutionDriver the compiled
// query is eventually handed to: given a DSN it opens a pooled
// connection, reflects a compiled source's column names/types (feeding
// qmctx.QueryContext's reflection cache) and runs the final SQL text.
package qmdriver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"

	"github.com/fj1981/modelsql/pkg/qmdialect"
)

// reflectionCacheExpiry/reflectionCacheSweep bound a short-TTL cache so
// repeated ReflectColumns calls across many compilations against the
// same connection don't keep round-tripping to the database.
const (
	reflectionCacheExpiry = 2 * time.Minute
	reflectionCacheSweep  = 5 * time.Minute
)

// ConnectionSpec names a target database: one struct wide enough for
// every backend this package drives, unused fields left zero.
type ConnectionSpec struct {
	Key      string
	Dialect  qmdialect.Name
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Path     string // sqlite only
	SSLMode  string // postgres only
}

// driverNames maps a dialect to the database/sql driver name registered
// by that dialect's blank import (see drivers_*.go).
var driverNames = map[qmdialect.Name]string{
	qmdialect.Postgres: "postgres",
	qmdialect.Redshift: "postgres", // wire-compatible with lib/pq
	qmdialect.MySQL:    "mysql",
	qmdialect.DuckDB:   "sqlite", // logoove/sqlite driver, DuckDB's embedded mode is out of scope
}

func connectString(spec ConnectionSpec) (driverName, dsn string, err error) {
	driverName, ok := driverNames[spec.Dialect]
	if !ok {
		return "", "", fmt.Errorf("qmdriver: no driver registered for dialect %q", spec.Dialect)
	}
	switch spec.Dialect {
	case qmdialect.Postgres, qmdialect.Redshift:
		sslmode := spec.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return driverName, fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			spec.Host, spec.Port, spec.User, spec.Password, spec.Database, sslmode), nil
	case qmdialect.MySQL:
		return driverName, fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			spec.User, spec.Password, spec.Host, spec.Port, spec.Database), nil
	case qmdialect.DuckDB:
		return driverName, spec.Path, nil
	default:
		return "", "", fmt.Errorf("qmdriver: dialect %q has no connection-string builder", spec.Dialect)
	}
}

// Client wraps a pooled *sqlx.DB for one named connection.
type Client struct {
	db       *sqlx.DB
	key      string
	dialect  qmdialect.Name
	colCache *cache.Cache
}

// Connect opens and pings a pooled connection for spec, with
// conservative pool-tuning defaults (5 idle / 10 open / 10 minute max
// lifetime).
func Connect(spec ConnectionSpec) (*Client, error) {
	driverName, dsn, err := connectString(spec)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Client{
		db:       db,
		key:      spec.Key,
		dialect:  spec.Dialect,
		colCache: cache.New(reflectionCacheExpiry, reflectionCacheSweep),
	}, nil
}

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) Dialect() qmdialect.Name { return c.dialect }

// ReflectColumns satisfies qmctx.ColumnReflector: it runs the compiled
// source as a zero-row query and reports the driver-reported column
// names and database types, an "ask the driver, don't parse SQL"
// approach to schema introspection. Results are cached per connection
// for reflectionCacheExpiry, since the same physical table is
// reflected once per compilation and the schema rarely changes between
// them.
func (c *Client) ReflectColumns(sourceSQL string) (map[string]string, error) {
	if cached, ok := c.colCache.Get(sourceSQL); ok {
		return cached.(map[string]string), nil
	}
	rows, err := c.db.Queryx(fmt.Sprintf("SELECT * FROM (%s) qm_reflect LIMIT 0", sourceSQL))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(types))
	for _, t := range types {
		out[t.Name()] = t.DatabaseTypeName()
	}
	c.colCache.SetDefault(sourceSQL, out)
	return out, nil
}

// Execute runs the compiled SQL text and scans every row into dest
// (a pointer to a slice) via sqlx's SelectContext.
func (c *Client) Execute(ctx context.Context, dest interface{}, sql string, args ...interface{}) error {
	return c.db.SelectContext(ctx, dest, sql, args...)
}

// Manager keeps one Client per connection key alive: a sync.Map keyed
// by a stable identity, closed on replacement or CloseAll.
type Manager struct {
	clients sync.Map
}

func (m *Manager) Get(key string) (*Client, bool) {
	v, ok := m.clients.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

func (m *Manager) Set(key string, c *Client) {
	if old, loaded := m.clients.LoadAndDelete(key); loaded {
		if oldClient, ok := old.(*Client); ok {
			_ = oldClient.Close()
		}
	}
	m.clients.Store(key, c)
}

func (m *Manager) GetOrConnect(spec ConnectionSpec) (*Client, error) {
	if spec.Key == "" {
		return nil, errors.New("qmdriver: connection spec requires a non-empty Key")
	}
	if c, ok := m.Get(spec.Key); ok {
		return c, nil
	}
	c, err := Connect(spec)
	if err != nil {
		return nil, err
	}
	m.Set(spec.Key, c)
	return c, nil
}

func (m *Manager) CloseAll() {
	m.clients.Range(func(_, v interface{}) bool {
		if c, ok := v.(*Client); ok {
			_ = c.Close()
		}
		return true
	})
}
