package pgdialect

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

// Dialect is the Postgres-specific capability record consumed by
// internal/segment and internal/differ to turn raw query results into
// typed keyspace.KeyValue without either package knowing SQL.
type Dialect struct{}

// MakeKeyValue converts one min/max-query result column into a
// keyspace.KeyValue, per col.Kind. Only kinds classify() marks as
// IsKeyCandidate ever reach here in practice, but this still rejects
// cleanly if the differ is handed a non-key column by mistake.
func (Dialect) MakeKeyValue(col dialect.ColumnType, raw any) (keyspace.KeyValue, error) {
	switch col.Kind {
	case dialect.KindNumeric:
		n, err := toInt64(raw)
		if err != nil {
			return nil, errs.NewKeyParseError(err, "column %q", col.Name)
		}
		return keyspace.IntKey(n), nil
	case dialect.KindUUID:
		id, err := toUUID(raw)
		if err != nil {
			return nil, errs.NewKeyParseError(err, "column %q", col.Name)
		}
		return keyspace.UUIDKey(id), nil
	case dialect.KindPrecision:
		t, err := toTime(raw)
		if err != nil {
			return nil, errs.NewKeyParseError(err, "column %q", col.Name)
		}
		return keyspace.TimeKey{T: t}, nil
	default:
		return nil, errs.NewSchemaError("column %q of kind %s has no successor and cannot be a key", col.Name, col.Kind)
	}
}

func (Dialect) QuoteIdent(name string, caseSensitive bool) string {
	return quoteIdent(name, caseSensitive)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not an integer", raw, raw)
	}
}

func toUUID(raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.UUID{}, fmt.Errorf("value %v (%T) is not a uuid", raw, raw)
	}
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	default:
		return time.Time{}, fmt.Errorf("value %v (%T) is not a timestamp", raw, raw)
	}
}
