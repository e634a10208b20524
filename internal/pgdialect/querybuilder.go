package pgdialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

// validateWhereFragment rejects a user-supplied `where` filter that
// does not parse as part of exactly one statement, the same way
// rewrite_pks.go parses full statements before trusting them: wrapping
// the fragment in a throwaway SELECT and parsing it catches syntax
// errors and stacked statements without the engine having its own SQL
// grammar. It does not check that the fragment is a lone boolean
// expression.
func validateWhereFragment(frag string) error {
	if frag == "" {
		return nil
	}
	tree, err := pg_query.Parse("SELECT 1 WHERE " + frag)
	if err != nil {
		return errs.NewConfigurationError("invalid where fragment %q: %v", frag, err)
	}
	if len(tree.GetStmts()) != 1 {
		return errs.NewConfigurationError("where fragment %q must be a single expression", frag)
	}
	return nil
}

// quoteIdent renders a Postgres identifier, double-quoting whenever
// case sensitivity is requested (segment.TableSegment's CaseSensitive
// option) so mixed-case column/table names survive unmolested.
func quoteIdent(name string, caseSensitive bool) string {
	if !caseSensitive {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quotePath(p dialect.TablePath) string {
	parts := make([]string, len(p))
	for i, part := range p {
		parts[i] = quoteIdent(part, true)
	}
	return strings.Join(parts, ".")
}

// toParam converts a predicate's Go-level value (keyspace.KeyValue,
// time.Time, or a primitive) into something pgx's binary protocol can
// bind directly, so literal rendering never touches raw SQL text.
func toParam(v any) any {
	switch k := v.(type) {
	case keyspace.IntKey:
		return int64(k)
	case keyspace.UUIDKey:
		return uuid.UUID(k)
	case keyspace.TimeKey:
		return k.T
	case keyspace.StringKey:
		return k.Value
	case time.Time:
		return k
	default:
		return v
	}
}

func projectedExpr(c dialect.ProjectedColumn, caseSensitive bool) string {
	col := quoteIdent(c.Column, caseSensitive)
	if c.Transform == "" {
		return col
	}
	return fmt.Sprintf(c.Transform, col)
}

// buildWhere renders sel's predicates and free-form filter as a single
// WHERE clause (without the "WHERE" keyword), positionally parameterized
// starting at $1, and returns the arg slice in the same order.
func buildWhere(sel dialect.SelectSpec) (string, []any, error) {
	if err := validateWhereFragment(sel.ExtraWhere); err != nil {
		return "", nil, err
	}

	var clauses []string
	var args []any
	n := 0
	for _, p := range sel.Where {
		n++
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", quoteIdent(p.Column, sel.CaseSensitive), p.Op, n))
		args = append(args, toParam(p.Value))
	}
	if sel.ExtraWhere != "" {
		clauses = append(clauses, sel.ExtraWhere)
	}
	if len(clauses) == 0 {
		return "TRUE", args, nil
	}
	return strings.Join(clauses, " AND "), args, nil
}

func buildCountSQL(sel dialect.SelectSpec) (string, []any, error) {
	where, args, err := buildWhere(sel)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", quotePath(sel.Table), where)
	return sql, args, nil
}

// buildChecksumSQL renders the per-row-MD5 / commutative-XOR checksum
// query described by spec.md §4.2: each row's relevant columns are
// concatenated and MD5'd into 32 hex digits, split into two 64-bit
// halves, and folded with Postgres 16+'s bit_xor(bigint) aggregate so
// row order never affects the result.
func buildChecksumSQL(sel dialect.SelectSpec) (string, []any, error) {
	where, args, err := buildWhere(sel)
	if err != nil {
		return "", nil, err
	}
	rowExpr := concatColumns(sel.Columns, sel.CaseSensitive)
	sql := fmt.Sprintf(`
		SELECT count(*),
		       bit_xor(('x' || substring(md5(%s), 1, 16))::bit(64)::bigint) AS lo,
		       bit_xor(('x' || substring(md5(%s), 17, 16))::bit(64)::bigint) AS hi
		FROM %s
		WHERE %s`, rowExpr, rowExpr, quotePath(sel.Table), where)
	return sql, args, nil
}

func concatColumns(cols []dialect.ProjectedColumn, caseSensitive bool) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("coalesce(%s::text, '\x00NULL\x00')", projectedExpr(c, caseSensitive))
	}
	return strings.Join(parts, " || '\x1f' || ")
}

func buildMinMaxSQL(sel dialect.SelectSpec) (string, []any, error) {
	where, args, err := buildWhere(sel)
	if err != nil {
		return "", nil, err
	}
	aggs := make([]string, 0, 2*len(sel.Columns))
	for _, c := range sel.Columns {
		aggs = append(aggs, fmt.Sprintf("min(%s)", projectedExpr(c, sel.CaseSensitive)))
	}
	for _, c := range sel.Columns {
		aggs = append(aggs, fmt.Sprintf("max(%s)", projectedExpr(c, sel.CaseSensitive)))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(aggs, ", "), quotePath(sel.Table), where)
	return sql, args, nil
}

func buildSelectSQL(sel dialect.SelectSpec) (string, []any, error) {
	where, args, err := buildWhere(sel)
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, len(sel.Columns))
	for i, c := range sel.Columns {
		cols[i] = projectedExpr(c, sel.CaseSensitive)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(cols, ", "), quotePath(sel.Table), where)
	return sql, args, nil
}
