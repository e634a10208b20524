// Package segment implements TableSegment: an immutable descriptor of a
// rectangular slab of one table, and EmptyTableSegment, a distinct tag
// for a segment with known-zero cardinality that short-circuits the
// differ. Both satisfy the Segment interface so the differ can treat
// them uniformly.
package segment

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

// Segment is implemented by both *TableSegment and *EmptyTableSegment,
// mirroring the original's duck-typed EmptyTableSegment wrapper: the
// empty variant answers count=0, returns no rows, and refuses range
// queries, without the differ needing to branch on which it holds.
type Segment interface {
	IsBounded() bool
	ApproximateSize() (int64, error)
	QueryKeyRange(ctx context.Context) (minRaw, maxRaw []any, err error)
	Count(ctx context.Context) (int64, error)
	CountAndChecksum(ctx context.Context) (int64, *dialect.Checksum, error)
	GetValues(ctx context.Context) ([]dialect.Row, error)
	ChooseCheckpoints(count int) ([][]keyspace.KeyValue, error)
	SegmentByCheckpoints(checkpoints [][]keyspace.KeyValue) ([]Segment, error)
	NewKeyBounds(min, max keyspace.Vector) (Segment, error)
	WithSchema(ctx context.Context, refine bool, allowEmptyTable bool) (Segment, error)

	KeyColumns() []string
	KeyTypes() []dialect.ColumnType
	RelevantColumns() []string
	Schema() dialect.Schema
	TablePath() dialect.TablePath
	MinKey() keyspace.Vector
	MaxKey() keyspace.Vector
	Database() dialect.Database
	String() string
}

// TableSegment is the non-empty, general-purpose Segment
// implementation. Create a new instance (via With*/New* methods) for
// every bound change; TableSegment values are never mutated in place.
type TableSegment struct {
	database dialect.Database
	path     dialect.TablePath

	keyColumns       []string
	updateColumn     string
	extraColumns     []string
	transformColumns map[string]string

	minKey, maxKey       keyspace.Vector
	minUpdate, maxUpdate *time.Time
	where                string
	caseSensitive        bool

	schema dialect.Schema // nil until WithSchema is called
}

// Option configures a new TableSegment.
type Option func(*TableSegment)

func WithUpdateColumn(name string) Option { return func(t *TableSegment) { t.updateColumn = name } }
func WithExtraColumns(cols ...string) Option {
	return func(t *TableSegment) { t.extraColumns = append([]string(nil), cols...) }
}
func WithTransformColumns(m map[string]string) Option {
	return func(t *TableSegment) {
		cp := make(map[string]string, len(m))
		for k, v := range m {
			cp[k] = v
		}
		t.transformColumns = cp
	}
}
func WithKeyBounds(min, max keyspace.Vector) Option {
	return func(t *TableSegment) { t.minKey, t.maxKey = min, max }
}
func WithUpdateBounds(min, max time.Time) Option {
	return func(t *TableSegment) { t.minUpdate, t.maxUpdate = &min, &max }
}
func WithWhere(where string) Option { return func(t *TableSegment) { t.where = where } }
func WithCaseSensitive(b bool) Option { return func(t *TableSegment) { t.caseSensitive = b } }

// New constructs a TableSegment and validates its invariants: if both
// update bounds are present, min < max; if both key bounds are
// present, min < max in the Vector (componentwise) sense;
// update_column is required iff update bounds are present.
func New(db dialect.Database, path dialect.TablePath, keyColumns []string, opts ...Option) (*TableSegment, error) {
	if len(keyColumns) == 0 {
		return nil, errs.NewConfigurationError("table segment requires at least one key column")
	}
	t := &TableSegment{
		database:      db,
		path:          path,
		keyColumns:    append([]string(nil), keyColumns...),
		caseSensitive: true,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.updateColumn == "" && (t.minUpdate != nil || t.maxUpdate != nil) {
		return nil, errs.NewConfigurationError("min_update/max_update requires update_column to be set")
	}
	if t.minKey != nil && t.maxKey != nil && !t.minKey.Less(t.maxKey) {
		return nil, errs.NewConfigurationError("min_key expected to be smaller than max_key (%s >= %s)", t.minKey, t.maxKey)
	}
	if t.minUpdate != nil && t.maxUpdate != nil && !t.minUpdate.Before(*t.maxUpdate) {
		return nil, errs.NewConfigurationError("min_update expected to be smaller than max_update (%s >= %s)", t.minUpdate, t.maxUpdate)
	}
	return t, nil
}

func (t *TableSegment) clone() *TableSegment {
	cp := *t
	return &cp
}

func (t *TableSegment) Database() dialect.Database   { return t.database }
func (t *TableSegment) TablePath() dialect.TablePath { return t.path }
func (t *TableSegment) KeyColumns() []string         { return t.keyColumns }
func (t *TableSegment) Schema() dialect.Schema       { return t.schema }
func (t *TableSegment) MinKey() keyspace.Vector      { return t.minKey }
func (t *TableSegment) MaxKey() keyspace.Vector      { return t.maxKey }
func (t *TableSegment) IsBounded() bool              { return t.minKey != nil && t.maxKey != nil }

func (t *TableSegment) String() string {
	return fmt.Sprintf("%s[%s..%s]", t.path, t.minKey, t.maxKey)
}

// RelevantColumns is key_columns ++ ([update_column] if set) ++
// extra_columns, with duplicates removed preserving first occurrence.
func (t *TableSegment) RelevantColumns() []string {
	seen := make(map[string]bool, len(t.keyColumns)+len(t.extraColumns)+1)
	out := make([]string, 0, len(t.keyColumns)+len(t.extraColumns)+1)
	add := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range t.keyColumns {
		add(c)
	}
	add(t.updateColumn)
	for _, c := range t.extraColumns {
		add(c)
	}
	return out
}

// KeyTypes returns the reconciled ColumnType of each key column, in
// key-column order. Only meaningful once a schema is bound.
func (t *TableSegment) KeyTypes() []dialect.ColumnType {
	out := make([]dialect.ColumnType, len(t.keyColumns))
	for i, c := range t.keyColumns {
		out[i] = t.schema[c]
	}
	return out
}

func (t *TableSegment) projectedColumns(cols []string) []dialect.ProjectedColumn {
	out := make([]dialect.ProjectedColumn, len(cols))
	for i, c := range cols {
		out[i] = dialect.ProjectedColumn{Column: c, Transform: t.transformColumns[c]}
	}
	return out
}

// makeSelectSpec composes the dialect-agnostic query description this
// segment's operations share: key-range predicates (only for bounds
// that are actually set), the update-column window, and the free-form
// extra WHERE predicate.
func (t *TableSegment) makeSelectSpec(cols []string) dialect.SelectSpec {
	var where []dialect.Predicate
	if t.minKey != nil {
		for i, col := range t.keyColumns {
			where = append(where, dialect.Predicate{Column: col, Op: ">=", Value: t.minKey[i]})
		}
	}
	if t.maxKey != nil {
		for i, col := range t.keyColumns {
			where = append(where, dialect.Predicate{Column: col, Op: "<", Value: t.maxKey[i]})
		}
	}
	if t.minUpdate != nil {
		where = append(where, dialect.Predicate{Column: t.updateColumn, Op: ">=", Value: *t.minUpdate})
	}
	if t.maxUpdate != nil {
		where = append(where, dialect.Predicate{Column: t.updateColumn, Op: "<", Value: *t.maxUpdate})
	}

	extraWhere := ""
	if t.where != "" {
		extraWhere = "(" + t.where + ")"
	}

	return dialect.SelectSpec{
		Table:         t.path,
		Where:         where,
		ExtraWhere:    extraWhere,
		CaseSensitive: t.caseSensitive,
		Columns:       t.projectedColumns(cols),
	}
}

// WithSchema queries the table schema from the database and returns a
// new Segment with a schema bound. Idempotent once a schema is bound.
// If the segment yields zero sample rows under allowEmptyTable=false,
// it returns errs.EmptyTableError; if allowEmptyTable is true, it
// returns an *EmptyTableSegment instead of erroring.
func (t *TableSegment) WithSchema(ctx context.Context, refine bool, allowEmptyTable bool) (Segment, error) {
	if t.schema != nil {
		return t, nil
	}

	raw, err := t.database.QueryTableSchema(ctx, t.path)
	if err != nil {
		return nil, errs.NewAdapterError("query_table_schema", err)
	}

	relevant := make(map[string]bool, len(t.RelevantColumns()))
	for _, c := range t.RelevantColumns() {
		relevant[c] = true
	}
	filtered := make(dialect.RawSchema, len(relevant))
	for name, col := range raw {
		if relevant[name] {
			filtered[name] = col
		}
	}

	refineWhere := ""
	if t.where != "" {
		refineWhere = "(" + t.where + ")"
	}

	schema, samples, err := t.database.ProcessQueryTableSchema(ctx, t.path, filtered, refine, refineWhere)
	if err != nil {
		return nil, errs.NewAdapterError("process_query_table_schema", err)
	}

	isEmpty := samples != nil && len(samples) == 0
	if isEmpty && !allowEmptyTable {
		return nil, errs.NewEmptyTableError(t.path.String())
	}

	withSchema := t.clone()
	withSchema.schema = schema

	if isEmpty {
		return NewEmptyTableSegment(withSchema), nil
	}
	return withSchema, nil
}

// QueryKeyRange returns the componentwise min/max raw values of this
// segment's key columns, as returned by the database (not yet
// converted to keyspace.KeyValue and not yet made exclusive — that
// conversion is the differ's job, since it alone knows whether to take
// the successor of the max).
func (t *TableSegment) QueryKeyRange(ctx context.Context) (minRaw, maxRaw []any, err error) {
	spec := t.makeSelectSpec(t.keyColumns)
	minRaw, maxRaw, err = t.database.QueryKeyRange(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	return minRaw, maxRaw, nil
}

func (t *TableSegment) Count(ctx context.Context) (int64, error) {
	spec := t.makeSelectSpec(nil)
	n, err := t.database.Count(ctx, spec)
	if err != nil {
		return 0, errs.NewAdapterError("count", err)
	}
	return n, nil
}

func (t *TableSegment) CountAndChecksum(ctx context.Context) (int64, *dialect.Checksum, error) {
	spec := t.makeSelectSpec(t.RelevantColumns())
	start := time.Now()
	count, checksum, err := t.database.CountAndChecksum(ctx, spec)
	if err != nil {
		return 0, nil, errs.NewAdapterError("count_and_checksum", err)
	}
	duration := time.Since(start)
	if duration > recommendedChecksumDuration {
		// Soft condition: logged by the caller (internal/differ), which
		// has the logger and recursion context; this package stays
		// logging-free so it can be unit tested without a logger.
		return count, checksum, &SlowChecksumWarning{Duration: duration}
	}
	return count, checksum, nil
}

// SlowChecksumWarning is returned alongside a valid result (not a
// failure) when a single count_and_checksum exceeds the recommended
// duration; callers should log it as an advisory and continue.
type SlowChecksumWarning struct{ Duration time.Duration }

func (w *SlowChecksumWarning) Error() string {
	return fmt.Sprintf("checksum took %s, longer than recommended %s; consider raising bisection factor or lowering thread count", w.Duration, recommendedChecksumDuration)
}

const recommendedChecksumDuration = 20 * time.Second

func (t *TableSegment) GetValues(ctx context.Context) ([]dialect.Row, error) {
	spec := t.makeSelectSpec(t.RelevantColumns())
	rows, err := t.database.GetValues(ctx, spec)
	if err != nil {
		return nil, errs.NewAdapterError("get_values", err)
	}
	return rows, nil
}

// ChooseCheckpoints suggests an evenly-spaced N-axis checkpoint grid,
// using count^(1/N) per axis (at least 1) so the number of resulting
// boxes is approximately count.
func (t *TableSegment) ChooseCheckpoints(count int) ([][]keyspace.KeyValue, error) {
	if !t.IsBounded() {
		return nil, errs.NewConfigurationError("cannot choose checkpoints on an unbounded segment")
	}
	n := int(math.Pow(float64(count), 1/float64(len(t.keyColumns))))
	if n < 1 {
		n = 1
	}
	return keyspace.SplitCompoundKeySpace(t.minKey, t.maxKey, n)
}

// SegmentByCheckpoints splits this segment into sub-segments, one per
// mesh box of the given per-axis checkpoints, all sharing this
// segment's schema.
func (t *TableSegment) SegmentByCheckpoints(checkpoints [][]keyspace.KeyValue) ([]Segment, error) {
	boxes, err := keyspace.Mesh(checkpoints...)
	if err != nil {
		return nil, err
	}
	out := make([]Segment, 0, len(boxes))
	for _, box := range boxes {
		sub, err := t.NewKeyBounds(box[0], box[1])
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

// NewKeyBounds narrows this segment to [min, max); the new bounds must
// lie within any existing bounds.
func (t *TableSegment) NewKeyBounds(min, max keyspace.Vector) (Segment, error) {
	if t.minKey != nil {
		if !t.minKey.LessEqual(min) || !t.minKey.Less(max) {
			return nil, errs.NewConfigurationError("new bounds %s..%s fall outside existing min_key %s", min, max, t.minKey)
		}
	}
	if t.maxKey != nil {
		if !min.Less(t.maxKey) || !max.LessEqual(t.maxKey) {
			return nil, errs.NewConfigurationError("new bounds %s..%s fall outside existing max_key %s", min, max, t.maxKey)
		}
	}
	cp := t.clone()
	cp.minKey, cp.maxKey = min, max
	return cp, nil
}

// ApproximateSize returns the product of (max-min) across key
// dimensions; only defined when bounded.
func (t *TableSegment) ApproximateSize() (int64, error) {
	if !t.IsBounded() {
		return 0, errs.NewConfigurationError("cannot approximate the size of an unbounded segment")
	}
	diffs := t.maxKey.Sub(t.minKey)
	for _, d := range diffs {
		if d <= 0 {
			return 0, errs.NewConfigurationError("key bounds produced non-positive axis width")
		}
	}
	return keyspace.IntProduct(diffs), nil
}
