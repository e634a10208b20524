package segment

import (
	"context"
	"testing"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

type fakeDB struct {
	name   string
	schema dialect.Schema
	rows   []dialect.Row
	minRaw []any
	maxRaw []any
	count  int64
}

func (f *fakeDB) Name() string          { return f.name }
func (f *fakeDB) Dialect() dialect.Dialect { return fakeDialect{} }

func (f *fakeDB) QueryTableSchema(ctx context.Context, path dialect.TablePath) (dialect.RawSchema, error) {
	raw := make(dialect.RawSchema)
	for name := range f.schema {
		raw[name] = dialect.RawColumn{Name: name, DBType: "integer"}
	}
	return raw, nil
}

func (f *fakeDB) ProcessQueryTableSchema(ctx context.Context, path dialect.TablePath, raw dialect.RawSchema, refine bool, refineWhere string) (dialect.Schema, []dialect.Row, error) {
	var samples []dialect.Row
	if refine {
		samples = f.rows
		if samples == nil {
			samples = []dialect.Row{}
		}
	}
	return f.schema, samples, nil
}

func (f *fakeDB) Count(ctx context.Context, sel dialect.SelectSpec) (int64, error) {
	return f.count, nil
}

func (f *fakeDB) CountAndChecksum(ctx context.Context, sel dialect.SelectSpec) (int64, *dialect.Checksum, error) {
	if f.count == 0 {
		return 0, nil, nil
	}
	return f.count, &dialect.Checksum{Lo: 1, Hi: 2}, nil
}

func (f *fakeDB) QueryKeyRange(ctx context.Context, sel dialect.SelectSpec) (minRaw, maxRaw []any, err error) {
	return f.minRaw, f.maxRaw, nil
}

func (f *fakeDB) GetValues(ctx context.Context, sel dialect.SelectSpec) ([]dialect.Row, error) {
	return f.rows, nil
}

type fakeDialect struct{}

func (fakeDialect) MakeKeyValue(col dialect.ColumnType, raw any) (keyspace.KeyValue, error) {
	return keyspace.IntKey(raw.(int64)), nil
}

func (fakeDialect) QuoteIdent(name string, caseSensitive bool) string { return name }

func newFakeSchema() dialect.Schema {
	return dialect.Schema{
		"id":   {Name: "id", Kind: dialect.KindNumeric, Supported: true, IsKeyCandidate: true},
		"name": {Name: "name", Kind: dialect.KindString, Supported: true},
	}
}

func TestNewValidatesKeyBounds(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema()}
	_, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"},
		WithKeyBounds(keyspace.Vector{keyspace.IntKey(5)}, keyspace.Vector{keyspace.IntKey(1)}))
	if err == nil {
		t.Fatal("expected error for inverted key bounds")
	}
}

func TestRelevantColumnsDedup(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema()}
	seg, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"},
		WithUpdateColumn("id"), WithExtraColumns("id", "name"))
	if err != nil {
		t.Fatal(err)
	}
	cols := seg.RelevantColumns()
	want := []string{"id", "name"}
	if len(cols) != len(want) {
		t.Fatalf("got %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("got %v, want %v", cols, want)
		}
	}
}

func TestWithSchemaReturnsEmptySegment(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema(), rows: nil}
	seg, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := seg.WithSchema(context.Background(), true, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.(*EmptyTableSegment); !ok {
		t.Fatalf("expected *EmptyTableSegment, got %T", got)
	}
	count, err := got.Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected empty count, got %d, %v", count, err)
	}
}

func TestWithSchemaErrorsOnEmptyWithoutAllow(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema(), rows: nil}
	seg, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = seg.WithSchema(context.Background(), true, false)
	if err == nil {
		t.Fatal("expected EmptyTableError")
	}
}

func TestChooseCheckpointsAndMesh(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema()}
	seg, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"},
		WithKeyBounds(keyspace.Vector{keyspace.IntKey(0)}, keyspace.Vector{keyspace.IntKey(100)}))
	if err != nil {
		t.Fatal(err)
	}
	checkpoints, err := seg.ChooseCheckpoints(4)
	if err != nil {
		t.Fatal(err)
	}
	subs, err := seg.SegmentByCheckpoints(checkpoints)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) == 0 {
		t.Fatal("expected at least one sub-segment")
	}
}

func TestApproximateSizeRequiresBounds(t *testing.T) {
	db := &fakeDB{name: "left", schema: newFakeSchema()}
	seg, err := New(db, dialect.TablePath{"public", "t"}, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := seg.ApproximateSize(); err == nil {
		t.Fatal("expected error for unbounded segment")
	}
}
