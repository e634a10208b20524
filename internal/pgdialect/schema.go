package pgdialect

import (
	"strings"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
)

// classify maps a Postgres native type name to the reconciled
// ColumnType facet the differ's column-reconciliation phase operates
// on. Timestamp types default to microsecond precision (Postgres's
// native resolution); numeric types carry no precision.
func classify(col dialect.RawColumn) dialect.ColumnType {
	t := strings.ToLower(col.DBType)
	switch {
	case t == "uuid":
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindUUID, Supported: true, IsKeyCandidate: true}
	case t == "boolean":
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindBoolean, Supported: true}
	case isIntegerType(t):
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindNumeric, Supported: true, IsKeyCandidate: true}
	case t == "numeric" || t == "decimal" || t == "real" || t == "double precision":
		// Floating/arbitrary-precision numerics have no safe successor,
		// so they're numeric for hashing/reconciliation but not a key
		// candidate (spec.md's "columns without a successor cannot be
		// used as keys").
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindNumeric, Supported: true, IsKeyCandidate: false}
	case strings.HasPrefix(t, "timestamp") || t == "date":
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindPrecision, Precision: 6, Rounds: true, Supported: true, IsKeyCandidate: true}
	case t == "text" || strings.HasPrefix(t, "character") || strings.HasPrefix(t, "varchar") || t == "bpchar":
		// Arbitrary text has no fixed alphabet/width to subdivide
		// arithmetically (unlike keyspace.StringKey's assumption), so it
		// is hashable/comparable but not usable as a bisection key.
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindString, Supported: true, IsKeyCandidate: false}
	default:
		return dialect.ColumnType{Name: col.Name, Kind: dialect.KindUnsupported, Supported: false}
	}
}

func isIntegerType(t string) bool {
	switch t {
	case "smallint", "integer", "bigint", "int2", "int4", "int8", "serial", "bigserial":
		return true
	default:
		return false
	}
}
