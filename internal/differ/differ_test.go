package differ

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
	"github.com/arrowgrid/reladiff-go/internal/segment"
)

// memTable is a tiny in-memory table: row[0] is the int64 key, the
// rest are arbitrary comparable values. It's enough surface to drive
// HashBisectDiffer end-to-end without a real SQL engine.
type memTable struct {
	name string
	rows [][]any

	// failAtKey, if non-nil, makes CountAndChecksum fail for any
	// selection whose filtered rows include that key — used to exercise
	// a worker error surfacing mid-diff while sibling segments still
	// complete normally.
	failAtKey *int64
}

func (m *memTable) Name() string             { return m.name }
func (m *memTable) Dialect() dialect.Dialect { return memDialect{} }

func (m *memTable) QueryTableSchema(ctx context.Context, path dialect.TablePath) (dialect.RawSchema, error) {
	raw := dialect.RawSchema{
		"id":    {Name: "id", DBType: "bigint"},
		"value": {Name: "value", DBType: "text"},
	}
	return raw, nil
}

func (m *memTable) ProcessQueryTableSchema(ctx context.Context, path dialect.TablePath, raw dialect.RawSchema, refine bool, refineWhere string) (dialect.Schema, []dialect.Row, error) {
	schema := dialect.Schema{
		"id":    {Name: "id", Kind: dialect.KindNumeric, Supported: true, IsKeyCandidate: true},
		"value": {Name: "value", Kind: dialect.KindString, Supported: true},
	}
	var samples []dialect.Row
	if refine {
		if len(m.rows) == 0 {
			samples = []dialect.Row{}
		} else {
			samples = []dialect.Row{toRow(m.rows[0])}
		}
	}
	return schema, samples, nil
}

func (m *memTable) filter(sel dialect.SelectSpec) [][]any {
	var out [][]any
	for _, r := range m.rows {
		if m.matches(r, sel) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memTable) matches(r []any, sel dialect.SelectSpec) bool {
	key := r[0].(int64)
	for _, p := range sel.Where {
		if p.Column != "id" {
			continue
		}
		bound := p.Value.(keyspace.IntKey)
		switch p.Op {
		case ">=":
			if !(key >= int64(bound)) {
				return false
			}
		case "<":
			if !(key < int64(bound)) {
				return false
			}
		}
	}
	return true
}

func (m *memTable) Count(ctx context.Context, sel dialect.SelectSpec) (int64, error) {
	return int64(len(m.filter(sel))), nil
}

func (m *memTable) CountAndChecksum(ctx context.Context, sel dialect.SelectSpec) (int64, *dialect.Checksum, error) {
	rows := m.filter(sel)
	if m.failAtKey != nil {
		for _, r := range rows {
			if r[0].(int64) == *m.failAtKey {
				return 0, nil, fmt.Errorf("memTable %s: induced failure at key %d", m.name, *m.failAtKey)
			}
		}
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}
	var lo, hi uint64
	for _, r := range rows {
		h := md5.Sum([]byte(fmt.Sprint(r)))
		l := binary.BigEndian.Uint64(h[:8])
		hh := binary.BigEndian.Uint64(h[8:])
		lo ^= l
		hi ^= hh
	}
	return int64(len(rows)), &dialect.Checksum{Lo: lo, Hi: hi}, nil
}

func (m *memTable) QueryKeyRange(ctx context.Context, sel dialect.SelectSpec) (minRaw, maxRaw []any, err error) {
	rows := m.filter(sel)
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty")
	}
	min64, max64 := rows[0][0].(int64), rows[0][0].(int64)
	for _, r := range rows {
		k := r[0].(int64)
		if k < min64 {
			min64 = k
		}
		if k > max64 {
			max64 = k
		}
	}
	return []any{min64}, []any{max64}, nil
}

func (m *memTable) GetValues(ctx context.Context, sel dialect.SelectSpec) ([]dialect.Row, error) {
	rows := m.filter(sel)
	out := make([]dialect.Row, len(rows))
	for i, r := range rows {
		out[i] = toRow(r)
	}
	return out, nil
}

func toRow(r []any) dialect.Row {
	cp := make(dialect.Row, len(r))
	copy(cp, r)
	return cp
}

type memDialect struct{}

func (memDialect) MakeKeyValue(col dialect.ColumnType, raw any) (keyspace.KeyValue, error) {
	return keyspace.IntKey(raw.(int64)), nil
}
func (memDialect) QuoteIdent(name string, caseSensitive bool) string { return name }

func newMemSegment(t *testing.T, name string, rows [][]any) segment.Segment {
	t.Helper()
	return newMemSegmentFromTable(t, &memTable{name: name, rows: rows})
}

func newMemSegmentFromTable(t *testing.T, db *memTable) segment.Segment {
	t.Helper()
	seg, err := segment.New(db, dialect.TablePath{"public", db.name}, []string{"id"}, segment.WithExtraColumns("value"))
	if err != nil {
		t.Fatal(err)
	}
	return seg
}

// countingReporter counts LeafMaterialized calls; the rest of the
// Reporter interface is a no-op.
type countingReporter struct {
	mu               sync.Mutex
	leafMaterialized int
}

func (r *countingReporter) NodeStarted(level int, keyRange string) {}
func (r *countingReporter) NodeResolved(level int, keyRange string, isDiff bool, count1, count2 int64) {
}
func (r *countingReporter) LeafMaterialized(level int, keyRange string, diffCount int) {
	r.mu.Lock()
	r.leafMaterialized++
	r.mu.Unlock()
}

func (r *countingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leafMaterialized
}

func TestDiffS1Scenario(t *testing.T) {
	a := newMemSegment(t, "a", [][]any{
		{int64(1), "x"}, {int64(2), "y"}, {int64(3), "z"},
	})
	b := newMemSegment(t, "b", [][]any{
		{int64(1), "x"}, {int64(2), "Y"}, {int64(4), "w"},
	})

	d, err := New(WithBisectionThreshold(4), WithBisectionFactor(2), WithAllowEmptyTables(false))
	if err != nil {
		t.Fatal(err)
	}

	result := d.Diff(context.Background(), a, b)
	rows, err := result.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return fmt.Sprint(rows[i].Values) < fmt.Sprint(rows[j].Values)
	})

	if len(rows) != 4 {
		t.Fatalf("expected 4 diff rows, got %d: %+v", len(rows), rows)
	}

	stats, err := result.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 || stats.ExclusiveA != 1 || stats.ExclusiveB != 1 || stats.Unchanged != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDiffIdenticalTablesYieldsNoRows(t *testing.T) {
	mk := func(name string) segment.Segment {
		return newMemSegment(t, name, [][]any{{int64(1), "x"}, {int64(2), "y"}})
	}
	d, err := New(WithBisectionThreshold(4), WithBisectionFactor(2))
	if err != nil {
		t.Fatal(err)
	}
	result := d.Diff(context.Background(), mk("a"), mk("b"))
	rows, err := result.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no diff rows for identical tables, got %+v", rows)
	}
	stats, err := result.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.DiffPercent != 0 {
		t.Fatalf("expected 0%% diff for identical tables, got %+v", stats)
	}
}

// TestDiffIdenticalLargeTableMaterializesNoLeaves covers seed scenario
// S5: 1000 identical rows with a small bisection threshold must prune
// entirely on checksum comparisons — no leaf ever needs a full
// download-and-compare.
func TestDiffIdenticalLargeTableMaterializesNoLeaves(t *testing.T) {
	rows := make([][]any, 1000)
	for i := range rows {
		rows[i] = []any{int64(i + 1), "same"}
	}
	a := newMemSegmentFromTable(t, &memTable{name: "a", rows: rows})
	b := newMemSegmentFromTable(t, &memTable{name: "b", rows: rows})

	reporter := &countingReporter{}
	d, err := New(WithBisectionThreshold(4), WithBisectionFactor(2), WithReporter(reporter))
	if err != nil {
		t.Fatal(err)
	}

	result := d.Diff(context.Background(), a, b)
	diffRows, err := result.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(diffRows) != 0 {
		t.Fatalf("expected no diff rows for identical tables, got %d", len(diffRows))
	}
	if n := reporter.count(); n != 0 {
		t.Fatalf("expected zero LeafMaterialized calls for identical tables, got %d", n)
	}
}

// TestDiffWorkerErrorSurfacesAlongsidePartialRows covers seed scenario
// S6: one sub-range's checksum query fails outright while a sibling
// sub-range legitimately diverges. Collect must both surface the
// worker's error and still return the rows the healthy sibling found.
func TestDiffWorkerErrorSurfacesAlongsidePartialRows(t *testing.T) {
	rowsA := make([][]any, 16)
	rowsB := make([][]any, 16)
	for i := 0; i < 16; i++ {
		key := int64(i + 1)
		rowsA[i] = []any{key, "v"}
		rowsB[i] = []any{key, "v"}
	}
	// A genuine mismatch in the lower half, so the healthy sibling
	// produces a diff row.
	rowsB[2] = []any{int64(3), "mismatch"}

	failAt := int64(12) // in the upper half
	a := &memTable{name: "a", rows: rowsA}
	b := &memTable{name: "b", rows: rowsB, failAtKey: &failAt}

	d, err := New(WithBisectionThreshold(4), WithBisectionFactor(2))
	if err != nil {
		t.Fatal(err)
	}

	result := d.Diff(context.Background(), newMemSegmentFromTable(t, a), newMemSegmentFromTable(t, b))
	rows, err := result.Collect(context.Background())
	if err == nil {
		t.Fatal("expected an error from the induced CountAndChecksum failure")
	}

	found := false
	for _, r := range rows {
		for _, v := range r.Values {
			if v == int64(3) {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected the healthy sibling's diff row for key 3 to still be delivered, got %+v", rows)
	}
}

func TestDiffEmptySideAllowed(t *testing.T) {
	empty := newMemSegment(t, "empty", nil)
	full := newMemSegment(t, "full", [][]any{{int64(1), "x"}, {int64(2), "y"}})

	d, err := New(WithAllowEmptyTables(true), WithBisectionThreshold(4), WithBisectionFactor(2))
	if err != nil {
		t.Fatal(err)
	}
	result := d.Diff(context.Background(), empty, full)
	rows, err := result.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 exclusive-to-B rows, got %+v", rows)
	}
	for _, r := range rows {
		if r.Sign != "+" {
			t.Fatalf("expected all rows to be exclusive to B, got sign %q", r.Sign)
		}
	}
}
