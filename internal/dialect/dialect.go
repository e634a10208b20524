// Package dialect defines the Database capability the hash-bisection
// core consumes: a single opaque collaborator per side of a diff. A
// concrete SQL engine (see internal/pgdialect) implements this
// interface; the core never depends on a dialect class hierarchy or on
// SQL dialect specifics directly. A Dialect here is one capability
// record, not a mixin chain: it exposes MakeKeyValue (whose KeyValue
// supplies the successor) and QuoteIdent, while MD5 rendering, value
// normalization and min/max aggregation stay inside the Database
// implementation's own query construction.
package dialect

import (
	"context"

	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

// TablePath is a schema-qualified path to a table, e.g. ["public", "orders"].
type TablePath []string

func (p TablePath) String() string {
	s := ""
	for i, part := range p {
		if i > 0 {
			s += "."
		}
		s += part
	}
	return s
}

// ColumnKind classifies a column for reconciliation purposes (spec.md
// §3's "Schema type facet").
type ColumnKind int

const (
	KindUnsupported ColumnKind = iota
	KindPrecision              // e.g. timestamp, float with defined precision/rounding
	KindNumeric                // integer/decimal
	KindBoolean
	KindUUID
	KindString
)

func (k ColumnKind) String() string {
	switch k {
	case KindPrecision:
		return "precision"
	case KindNumeric:
		return "numeric"
	case KindBoolean:
		return "boolean"
	case KindUUID:
		return "uuid"
	case KindString:
		return "string"
	default:
		return "unsupported"
	}
}

// ColumnType describes a single relevant column's reconciled type
// facet. Precision and Rounds are only meaningful for KindPrecision;
// Precision is also reused for KindNumeric (numeric scale).
type ColumnType struct {
	Name      string
	Kind      ColumnKind
	Precision int
	Rounds    bool
	// Supported is false for columns the adapter has no compatibility
	// handling for; hashing proceeds but may produce false positives if
	// dialects encode the value differently.
	Supported bool
	// IsKeyCandidate is true iff this column's Go-level KeyValue has a
	// Succ() (i.e. the dialect can supply one). Columns without a
	// successor cannot be used as keys (spec.md §3).
	IsKeyCandidate bool
}

func (c ColumnType) WithPrecision(precision int, rounds bool) ColumnType {
	c.Precision = precision
	c.Rounds = rounds
	return c
}

// Schema maps relevant column names to their reconciled type.
// Reconciliation (internal/differ) mutates entries in place via Set.
type Schema map[string]ColumnType

func (s Schema) Set(name string, t ColumnType) { s[name] = t }

// RawSchema is the dialect-specific, unrefined schema returned by
// QueryTableSchema: column name (in original case) -> native type name.
type RawSchema map[string]RawColumn

type RawColumn struct {
	Name   string // original-case name
	DBType string // native type name, e.g. "character varying", "uuid"
}

// Row is a tuple of already-normalized relevant-column values.
type Row []any

// Predicate is one AND-ed term of a segment's WHERE clause.
type Predicate struct {
	// Column is the column this predicate constrains, by plain name: no
	// ProjectedColumn transform is applied to it. Op is one of ">=",
	// "<", "<=", ">", "=". Value is a
	// Go-level value (KeyValue, time.Time, or primitive) the adapter
	// must render as a literal appropriate to the column's type.
	Column string
	Op     string
	Value  any
}

// ProjectedColumn is one column projected by a select, carrying an
// optional SQL transform to apply before hashing/comparing/ordering.
// The transform is applied in the projection, the checksum and the
// min/max query; Where predicates compare the untransformed column.
type ProjectedColumn struct {
	Column    string
	Transform string // optional SQL expression template; "" means no transform
}

// SelectSpec is the core's dialect-agnostic description of one query
// against one TableSegment. The adapter renders and executes it.
type SelectSpec struct {
	Table         TablePath
	Where         []Predicate
	ExtraWhere    string // segment's free-form `where` predicate, already parenthesized
	CaseSensitive bool
	Columns       []ProjectedColumn // relevant columns, in order
}

// Checksum is a commutative, order-independent digest over a segment's
// rows (the XOR, or equivalent, of each row's MD5).
type Checksum struct {
	Lo, Hi uint64 // 128 bits, big-endian split
}

func (c Checksum) Equal(o Checksum) bool { return c.Lo == o.Lo && c.Hi == o.Hi }

// Database is the opaque capability the core consumes for one side of
// a diff. Implementations must be safe for concurrent use by multiple
// goroutines; the core performs its own throttling purely via pool
// size and takes no locks around calls to Database.
type Database interface {
	Name() string
	Dialect() Dialect

	QueryTableSchema(ctx context.Context, path TablePath) (RawSchema, error)
	// ProcessQueryTableSchema refines raw into a reconciled Schema and,
	// when refine is true, samples the table under refineWhere to
	// detect emptiness; samples is nil iff refine is false, and empty
	// (non-nil, len==0) iff the filtered table has zero rows.
	ProcessQueryTableSchema(ctx context.Context, path TablePath, raw RawSchema, refine bool, refineWhere string) (Schema, []Row, error)

	Count(ctx context.Context, sel SelectSpec) (int64, error)
	// CountAndChecksum returns (0, nil, nil) when the segment is empty.
	CountAndChecksum(ctx context.Context, sel SelectSpec) (int64, *Checksum, error)
	// QueryKeyRange returns the componentwise min/max raw values of
	// sel.Columns (one min and one max per key column, in order). The
	// caller (internal/segment) converts these to keyspace.KeyValue via
	// Dialect().MakeKeyValue; the caller also owns the successor/+1
	// step that makes the max bound exclusive, so this method returns
	// the database's actual min/max, unmodified. Returns
	// errs.EmptyTableError if any column comes back null.
	QueryKeyRange(ctx context.Context, sel SelectSpec) (minRaw, maxRaw []any, err error)
	GetValues(ctx context.Context, sel SelectSpec) ([]Row, error)
}

// Dialect is the per-engine capability record: identifier quoting,
// value normalization/MD5 rendering are internal to the Database
// implementation's query construction, but MakeKeyValue is exposed
// because the core (segment/differ) needs to turn raw min/max query
// results into typed keyspace.KeyValue without knowing the dialect.
type Dialect interface {
	// MakeKeyValue converts a raw value returned for a column of the
	// given type into a keyspace.KeyValue. Returns errs.KeyParseError if
	// the column's kind cannot be converted, or errs.SchemaError if the
	// kind has no successor (e.g. floats).
	MakeKeyValue(col ColumnType, raw any) (keyspace.KeyValue, error)
	// QuoteIdent renders an identifier, honoring case sensitivity.
	QuoteIdent(name string, caseSensitive bool) string
}
