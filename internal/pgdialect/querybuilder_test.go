package pgdialect

import (
	"strings"
	"testing"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

func TestBuildWhereParameterizesKeyBounds(t *testing.T) {
	sel := dialect.SelectSpec{
		Table: dialect.TablePath{"public", "orders"},
		Where: []dialect.Predicate{
			{Column: "id", Op: ">=", Value: keyspace.IntKey(1)},
			{Column: "id", Op: "<", Value: keyspace.IntKey(100)},
		},
	}
	where, args, err := buildWhere(sel)
	if err != nil {
		t.Fatal(err)
	}
	if where != "id >= $1 AND id < $2" {
		t.Fatalf("unexpected where clause: %q", where)
	}
	if len(args) != 2 || args[0] != int64(1) || args[1] != int64(100) {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestBuildWhereRejectsStackedStatements(t *testing.T) {
	sel := dialect.SelectSpec{
		Table:      dialect.TablePath{"public", "orders"},
		ExtraWhere: "1=1; DROP TABLE orders",
	}
	if _, _, err := buildWhere(sel); err == nil {
		t.Fatal("expected stacked statement in where fragment to be rejected")
	}
}

func TestBuildWhereNoClausesDefaultsTrue(t *testing.T) {
	where, args, err := buildWhere(dialect.SelectSpec{Table: dialect.TablePath{"public", "orders"}})
	if err != nil {
		t.Fatal(err)
	}
	if where != "TRUE" || len(args) != 0 {
		t.Fatalf("expected TRUE with no args, got %q %+v", where, args)
	}
}

func TestBuildChecksumSQLUsesCommutativeAggregate(t *testing.T) {
	sel := dialect.SelectSpec{
		Table:   dialect.TablePath{"public", "orders"},
		Columns: []dialect.ProjectedColumn{{Column: "id"}, {Column: "amount"}},
	}
	sql, _, err := buildChecksumSQL(sel)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sql, "bit_xor(") {
		t.Fatalf("expected a commutative bit_xor aggregate, got: %s", sql)
	}
	if !strings.Contains(sql, "md5(") {
		t.Fatalf("expected per-row md5 rendering, got: %s", sql)
	}
}

func TestQuoteIdentHonorsCaseSensitivity(t *testing.T) {
	if quoteIdent("Orders", false) != "Orders" {
		t.Fatal("expected no quoting when case-insensitive")
	}
	if quoteIdent("Orders", true) != `"Orders"` {
		t.Fatal("expected double-quoting when case-sensitive")
	}
}

func TestClassifyMapsNativeTypesToColumnKind(t *testing.T) {
	cases := []struct {
		dbType         string
		wantKind       dialect.ColumnKind
		wantKeyCandidate bool
	}{
		{"bigint", dialect.KindNumeric, true},
		{"uuid", dialect.KindUUID, true},
		{"timestamp without time zone", dialect.KindPrecision, true},
		{"text", dialect.KindString, false},
		{"double precision", dialect.KindNumeric, false},
		{"boolean", dialect.KindBoolean, false},
		{"jsonb", dialect.KindUnsupported, false},
	}
	for _, c := range cases {
		got := classify(dialect.RawColumn{Name: "col", DBType: c.dbType})
		if got.Kind != c.wantKind {
			t.Errorf("%s: expected kind %s, got %s", c.dbType, c.wantKind, got.Kind)
		}
		if got.IsKeyCandidate != c.wantKeyCandidate {
			t.Errorf("%s: expected IsKeyCandidate=%v, got %v", c.dbType, c.wantKeyCandidate, got.IsKeyCandidate)
		}
	}
}
