// Package pgdialect implements internal/dialect's Database and Dialect
// capability interfaces against a real PostgreSQL server via pgx. It is
// the one adapter in this module that knows SQL: identifier quoting,
// value normalization, MD5/XOR checksum rendering, and
// information_schema-based schema introspection all live here so the
// diff engine itself stays dialect-agnostic.
package pgdialect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
)

// Database is a Postgres-backed implementation of dialect.Database. A
// single Database wraps one pgxpool.Pool and is safe for concurrent use
// by the differ's worker pool.
type Database struct {
	name string
	pool *pgxpool.Pool
	log  *zap.Logger

	mu         sync.RWMutex
	rawSchemas map[string]dialect.RawSchema // path.String() -> cached raw schema
}

// Option configures a Database at construction.
type Option func(*Database)

func WithLogger(l *zap.Logger) Option { return func(d *Database) { d.log = l } }

// New wraps an already-connected pool. name identifies this side of the
// diff in logs (e.g. "source" / "target").
func New(name string, pool *pgxpool.Pool, opts ...Option) *Database {
	d := &Database{name: name, pool: pool, log: zap.L(), rawSchemas: map[string]dialect.RawSchema{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Connect opens a pgxpool.Pool against connString and wraps it.
func Connect(ctx context.Context, name, connString string, opts ...Option) (*Database, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, errs.NewAdapterError("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.NewAdapterError("ping", err)
	}
	return New(name, pool, opts...), nil
}

func (d *Database) Close() { d.pool.Close() }

func (d *Database) Name() string           { return d.name }
func (d *Database) Dialect() dialect.Dialect { return Dialect{} }

// QueryTableSchema introspects column name/native-type pairs from
// information_schema, the same source pkg/richcatalog's introspector
// uses, scoped down to a single table.
func (d *Database) QueryTableSchema(ctx context.Context, path dialect.TablePath) (dialect.RawSchema, error) {
	key := path.String()
	d.mu.RLock()
	cached, ok := d.rawSchemas[key]
	d.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schemaName, tableName := splitPath(path)
	d.log.Debug("introspecting table schema", zap.String("schema", schemaName), zap.String("table", tableName))
	rows, err := d.pool.Query(ctx, `
		SELECT column_name, data_type, udt_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schemaName, tableName)
	if err != nil {
		return nil, errs.NewAdapterError("query_table_schema", err)
	}
	defer rows.Close()

	raw := dialect.RawSchema{}
	for rows.Next() {
		var name, dataType, udtName string
		if err := rows.Scan(&name, &dataType, &udtName); err != nil {
			return nil, errs.NewAdapterError("query_table_schema", err)
		}
		dbType := dataType
		if dataType == "USER-DEFINED" || dataType == "ARRAY" {
			dbType = udtName
		}
		raw[name] = dialect.RawColumn{Name: name, DBType: dbType}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewAdapterError("query_table_schema", err)
	}
	if len(raw) == 0 {
		return nil, errs.NewSchemaError("table %s has no columns (does it exist?)", key)
	}

	d.mu.Lock()
	d.rawSchemas[key] = raw
	d.mu.Unlock()
	return raw, nil
}

// ProcessQueryTableSchema reconciles raw native types into dialect.Schema
// facets and, when refine is true, samples a single row under
// refineWhere to detect emptiness (per segment.TableSegment.WithSchema's
// contract: samples is nil iff refine is false).
func (d *Database) ProcessQueryTableSchema(ctx context.Context, path dialect.TablePath, raw dialect.RawSchema, refine bool, refineWhere string) (dialect.Schema, []dialect.Row, error) {
	schema := make(dialect.Schema, len(raw))
	for name, col := range raw {
		schema[name] = classify(col)
	}

	if !refine {
		return schema, nil, nil
	}

	where := "TRUE"
	if refineWhere != "" {
		where = refineWhere
	}
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", quotePath(path), where)
	var one int
	err := d.pool.QueryRow(ctx, sql).Scan(&one)
	switch {
	case err == pgx.ErrNoRows:
		return schema, []dialect.Row{}, nil
	case err != nil:
		return nil, nil, errs.NewAdapterError("process_query_table_schema", err)
	default:
		return schema, []dialect.Row{{one}}, nil
	}
}

func (d *Database) Count(ctx context.Context, sel dialect.SelectSpec) (int64, error) {
	sql, args, err := buildCountSQL(sel)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := d.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, errs.NewAdapterError("count", err)
	}
	return n, nil
}

// CountAndChecksum returns (0, nil, nil) for an empty result set,
// matching dialect.Database's documented empty-segment contract.
func (d *Database) CountAndChecksum(ctx context.Context, sel dialect.SelectSpec) (int64, *dialect.Checksum, error) {
	sql, args, err := buildChecksumSQL(sel)
	if err != nil {
		return 0, nil, err
	}
	var n int64
	var lo, hi *int64
	if err := d.pool.QueryRow(ctx, sql, args...).Scan(&n, &lo, &hi); err != nil {
		return 0, nil, errs.NewAdapterError("count_and_checksum", err)
	}
	if n == 0 {
		return 0, nil, nil
	}
	return n, &dialect.Checksum{Lo: uint64(derefOr(lo, 0)), Hi: uint64(derefOr(hi, 0))}, nil
}

func derefOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

func (d *Database) QueryKeyRange(ctx context.Context, sel dialect.SelectSpec) (minRaw, maxRaw []any, err error) {
	sql, args, err := buildMinMaxSQL(sel)
	if err != nil {
		return nil, nil, err
	}
	row := d.pool.QueryRow(ctx, sql, args...)

	n := len(sel.Columns)
	dest := make([]any, 2*n)
	minVals := make([]any, n)
	maxVals := make([]any, n)
	for i := range minVals {
		dest[i] = &minVals[i]
	}
	for i := range maxVals {
		dest[n+i] = &maxVals[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, nil, errs.NewAdapterError("query_key_range", err)
	}
	for _, v := range minVals {
		if v == nil {
			return nil, nil, errs.NewEmptyTableError(sel.Table.String())
		}
	}
	return minVals, maxVals, nil
}

func (d *Database) GetValues(ctx context.Context, sel dialect.SelectSpec) ([]dialect.Row, error) {
	sqlText, args, err := buildSelectSQL(sel)
	if err != nil {
		return nil, err
	}
	rows, err := d.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, errs.NewAdapterError("get_values", err)
	}
	defer rows.Close()

	var out []dialect.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errs.NewAdapterError("get_values", err)
		}
		out = append(out, dialect.Row(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewAdapterError("get_values", err)
	}
	return out, nil
}

func splitPath(p dialect.TablePath) (schema, table string) {
	if len(p) >= 2 {
		return p[0], strings.Join(p[1:], ".")
	}
	return "public", strings.Join(p, ".")
}
