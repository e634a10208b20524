package segment

import (
	"context"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

// EmptyTableSegment wraps a *TableSegment known to have zero rows
// under its filter. It forwards the read-only accessors (schema,
// columns, bounds) to the wrapped segment but short-circuits every
// query operation to its known-empty answer, so the differ can stop
// recursing on this branch without special-casing "empty" throughout
// its call chain.
type EmptyTableSegment struct {
	inner *TableSegment
}

// NewEmptyTableSegment tags an already-schema-bound TableSegment as
// empty. Callers should only do this after confirming emptiness (see
// TableSegment.WithSchema), since the wrapper does not re-check.
func NewEmptyTableSegment(inner *TableSegment) *EmptyTableSegment {
	return &EmptyTableSegment{inner: inner}
}

func (e *EmptyTableSegment) IsBounded() bool { return e.inner.IsBounded() }

func (e *EmptyTableSegment) ApproximateSize() (int64, error) { return 0, nil }

func (e *EmptyTableSegment) QueryKeyRange(ctx context.Context) (minRaw, maxRaw []any, err error) {
	return nil, nil, errs.NewEmptyTableError(e.inner.path.String())
}

func (e *EmptyTableSegment) Count(ctx context.Context) (int64, error) { return 0, nil }

func (e *EmptyTableSegment) CountAndChecksum(ctx context.Context) (int64, *dialect.Checksum, error) {
	return 0, nil, nil
}

func (e *EmptyTableSegment) GetValues(ctx context.Context) ([]dialect.Row, error) {
	return nil, nil
}

func (e *EmptyTableSegment) ChooseCheckpoints(count int) ([][]keyspace.KeyValue, error) {
	return nil, errs.NewConfigurationError("cannot choose checkpoints on an empty segment")
}

func (e *EmptyTableSegment) SegmentByCheckpoints(checkpoints [][]keyspace.KeyValue) ([]Segment, error) {
	return nil, errs.NewConfigurationError("cannot subdivide an empty segment")
}

func (e *EmptyTableSegment) NewKeyBounds(min, max keyspace.Vector) (Segment, error) {
	narrowed, err := e.inner.NewKeyBounds(min, max)
	if err != nil {
		return nil, err
	}
	return NewEmptyTableSegment(narrowed.(*TableSegment)), nil
}

func (e *EmptyTableSegment) WithSchema(ctx context.Context, refine bool, allowEmptyTable bool) (Segment, error) {
	return e, nil
}

func (e *EmptyTableSegment) KeyColumns() []string              { return e.inner.KeyColumns() }
func (e *EmptyTableSegment) KeyTypes() []dialect.ColumnType    { return e.inner.KeyTypes() }
func (e *EmptyTableSegment) RelevantColumns() []string  { return e.inner.RelevantColumns() }
func (e *EmptyTableSegment) Schema() dialect.Schema     { return e.inner.Schema() }
func (e *EmptyTableSegment) TablePath() dialect.TablePath { return e.inner.TablePath() }
func (e *EmptyTableSegment) MinKey() keyspace.Vector    { return e.inner.MinKey() }
func (e *EmptyTableSegment) MaxKey() keyspace.Vector    { return e.inner.MaxKey() }
func (e *EmptyTableSegment) Database() dialect.Database { return e.inner.Database() }

func (e *EmptyTableSegment) String() string { return "empty:" + e.inner.String() }
