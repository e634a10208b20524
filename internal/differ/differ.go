// Package differ implements HashBisectDiffer: the algorithmic heart of
// the engine — schema reconciliation, initial key-range discovery over
// both sides, boundary-region repair, recursive bisection driven by
// checksum divergence, and local comparison at the leaf.
package differ

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/errs"
	"github.com/arrowgrid/reladiff-go/internal/infotree"
	"github.com/arrowgrid/reladiff-go/internal/keyspace"
	"github.com/arrowgrid/reladiff-go/internal/segment"
	"github.com/arrowgrid/reladiff-go/internal/yielder"
)

// HashBisectDiffer finds the diff between two table segments by
// hashing: a quick checksum check prunes identical subtrees, and
// bisection narrows in on divergent regions until they're small enough
// to download and compare locally.
type HashBisectDiffer struct {
	opts Options

	statsMu sync.Mutex
	stats   map[string]int64
}

// New constructs a HashBisectDiffer; functional options validate
// bisection parameters up front (bisection factor >= 2 and strictly
// less than bisection threshold).
func New(opts ...Option) (*HashBisectDiffer, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	if o.Reporter == nil {
		o.Reporter = NopReporter{}
	}
	return &HashBisectDiffer{opts: o, stats: map[string]int64{}}, nil
}

func (d *HashBisectDiffer) addStat(key string, n int64) {
	d.statsMu.Lock()
	d.stats[key] += n
	d.statsMu.Unlock()
}

// Stats returns a snapshot of engine-level counters (e.g.
// "rows_downloaded") accumulated across the run.
func (d *HashBisectDiffer) Stats() map[string]int64 {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	cp := make(map[string]int64, len(d.stats))
	for k, v := range d.stats {
		cp[k] = v
	}
	return cp
}

// Diff compares table1 ("before"/source) against table2
// ("after"/target) and returns a DiffResultWrapper streaming
// ("-"/"+", row) pairs as they're discovered. The returned wrapper's
// stats are only valid once its result stream has been fully drained.
func (d *HashBisectDiffer) Diff(ctx context.Context, table1, table2 segment.Segment) *DiffResultWrapper {
	tree := infotree.New(table1, table2)
	rowsCh := make(chan infotree.Row)
	doneCh := make(chan error, 1)

	go func() {
		defer close(rowsCh)
		err := d.diffTablesWrapper(ctx, table1, table2, tree, rowsCh)
		tree.AggregateInfo()
		doneCh <- err
		close(doneCh)
	}()

	return newDiffResultWrapper(rowsCh, doneCh, tree, d)
}

func (d *HashBisectDiffer) diffTablesWrapper(ctx context.Context, table1, table2 segment.Segment, tree *infotree.InfoTree, out chan<- infotree.Row) error {
	t1, t2, err := d.bindSchemas(ctx, table1, table2)
	if err != nil {
		return err
	}
	if err := d.validateAndAdjustColumns(t1, t2); err != nil {
		return err
	}
	return d.bisectAndDiffTables(ctx, t1, t2, tree, out)
}

func (d *HashBisectDiffer) bindSchemas(ctx context.Context, table1, table2 segment.Segment) (segment.Segment, segment.Segment, error) {
	var t1, t2 segment.Segment
	var err1, err2 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t1, err1 = table1.WithSchema(ctx, true, d.opts.AllowEmptyTables)
	}()
	go func() {
		defer wg.Done()
		t2, err2 = table2.WithSchema(ctx, true, d.opts.AllowEmptyTables)
	}()
	wg.Wait()
	if err1 != nil {
		return nil, nil, err1
	}
	if err2 != nil {
		return nil, nil, err2
	}
	return t1, t2, nil
}

// validateAndAdjustColumns is Phase 2: column reconciliation. It
// mutates both sides' Schema maps in place to agree on a minimal
// mutual precision and warns about soft incompatibilities, matching
// hashdiff_tables.py's _validate_and_adjust_columns.
func (d *HashBisectDiffer) validateAndAdjustColumns(t1, t2 segment.Segment) error {
	if isEmptySegment(t1) || isEmptySegment(t2) {
		return nil
	}

	cols1, cols2 := t1.RelevantColumns(), t2.RelevantColumns()
	n := len(cols1)
	if len(cols2) < n {
		n = len(cols2)
	}
	schema1, schema2 := t1.Schema(), t2.Schema()

	for i := 0; i < n; i++ {
		c1, c2 := cols1[i], cols2[i]
		col1, ok1 := schema1[c1]
		if !ok1 {
			return errs.NewSchemaError("column %q not found in schema for table %s", c1, t1)
		}
		col2, ok2 := schema2[c2]
		if !ok2 {
			return errs.NewSchemaError("column %q not found in schema for table %s", c2, t2)
		}

		switch col1.Kind {
		case dialect.KindPrecision:
			if col2.Kind != dialect.KindPrecision {
				return errs.NewSchemaError("incompatible types for column %q: %s <-> %s", c1, col1.Kind, col2.Kind)
			}
			lowest := col1
			if col2.Precision < col1.Precision {
				lowest = col2
			}
			if col1.Precision != col2.Precision {
				d.opts.Logger.Warn("using reduced precision for column",
					zap.String("column", c1), zap.Int("precision", lowest.Precision))
			}
			schema1.Set(c1, col1.WithPrecision(lowest.Precision, lowest.Rounds))
			schema2.Set(c2, col2.WithPrecision(lowest.Precision, lowest.Rounds))

		case dialect.KindNumeric, dialect.KindBoolean:
			if col2.Kind != dialect.KindNumeric && col2.Kind != dialect.KindBoolean {
				return errs.NewSchemaError("incompatible types for column %q: %s <-> %s", c1, col1.Kind, col2.Kind)
			}
			lowest := col1
			if col2.Precision < col1.Precision {
				lowest = col2
			}
			if col1.Precision != col2.Precision {
				d.opts.Logger.Warn("using reduced precision for column", zap.String("column", c1))
			}
			if lowest.Precision != col1.Precision {
				schema1.Set(c1, col1.WithPrecision(lowest.Precision, col1.Rounds))
			}
			if lowest.Precision != col2.Precision {
				schema2.Set(c2, col2.WithPrecision(lowest.Precision, col2.Rounds))
			}

		case dialect.KindUUID:
			if col2.Kind != dialect.KindUUID && col2.Kind != dialect.KindString {
				return errs.NewSchemaError("incompatible types for column %q: %s <-> %s", c1, col1.Kind, col2.Kind)
			}

		case dialect.KindString:
			if col2.Kind != dialect.KindString && col2.Kind != dialect.KindUUID {
				return errs.NewSchemaError("incompatible types for column %q: %s <-> %s", c1, col1.Kind, col2.Kind)
			}
		}
	}

	for _, s := range []segment.Segment{t1, t2} {
		schema := s.Schema()
		for _, c := range s.RelevantColumns() {
			ct := schema[c]
			if !ct.Supported {
				d.opts.Logger.Warn("column has no compatibility handling; may produce false positives if encoding differs",
					zap.String("database", s.Database().Name()), zap.String("column", c), zap.String("kind", ct.Kind.String()))
			}
		}
	}
	return nil
}

func isEmptySegment(s segment.Segment) bool {
	_, ok := s.(*segment.EmptyTableSegment)
	return ok
}

type keyRangeResult struct {
	side           int
	minRaw, maxRaw []any
	err            error
}

// bisectAndDiffTables is Phases 3-4: root range discovery and the
// boundary-region repair pass, followed by kicking off the recursive
// bisection (Phase 5) for the root region and every repair box.
func (d *HashBisectDiffer) bisectAndDiffTables(ctx context.Context, table1, table2 segment.Segment, tree *infotree.InfoTree, out chan<- infotree.Row) error {
	if len(table1.KeyColumns()) != len(table2.KeyColumns()) {
		return errs.NewConfigurationError("tables should have an equivalent number of key columns")
	}
	if err := d.validateKeyTypes(table1, table2); err != nil {
		return err
	}

	results := make(chan keyRangeResult, 2)
	go func() {
		mn, mx, err := table1.QueryKeyRange(ctx)
		results <- keyRangeResult{side: 1, minRaw: mn, maxRaw: mx, err: err}
	}()
	go func() {
		mn, mx, err := table2.QueryKeyRange(ctx)
		results <- keyRangeResult{side: 2, minRaw: mn, maxRaw: mx, err: err}
	}()

	first := <-results
	var minKey1, maxKey1 keyspace.Vector
	firstEmpty := isEmptyTableErr(first.err)
	switch {
	case firstEmpty && !d.opts.AllowEmptyTables:
		return first.err
	case !firstEmpty && first.err != nil:
		return first.err
	case !firstEmpty:
		mn, mx, err := d.parseKeyRangeResult(keyTypesFor(first.side, table1, table2), dialectFor(first.side, table1, table2), first.minRaw, first.maxRaw)
		if err != nil {
			return err
		}
		minKey1, maxKey1 = mn, mx
	}

	if firstEmpty {
		second := <-results
		if isEmptyTableErr(second.err) {
			tree.Root.Info.SetDiff(nil)
			tree.Root.Info.RowCounts = map[int]int64{1: 0, 2: 0}
			return nil
		}
		if second.err != nil {
			return second.err
		}
		mn, mx, err := d.parseKeyRangeResult(keyTypesFor(second.side, table1, table2), dialectFor(second.side, table1, table2), second.minRaw, second.maxRaw)
		if err != nil {
			return err
		}
		minKey1, maxKey1 = mn, mx
	}

	btable1, err := table1.NewKeyBounds(minKey1, maxKey1)
	if err != nil {
		return err
	}
	btable2, err := table2.NewKeyBounds(minKey1, maxKey1)
	if err != nil {
		return err
	}

	d.opts.Logger.Info("diffing segments at key-range",
		zap.String("min", minKey1.String()), zap.String("max", maxKey1.String()))

	y := yielder.New(ctx, yielder.WithMaxWorkers(d.opts.MaxThreadpoolSize), yielder.WithYieldBufferSize(1))
	rootNode := tree.AddNode(tree.Root, btable1, btable2, 0)
	d.submit(y, 0, func(ctx context.Context) ([]any, error) {
		return d.bisectAndDiffSegments(ctx, y, btable1, btable2, tree, rootNode, 0, nil)
	})

	if !firstEmpty {
		second := <-results
		switch {
		case isEmptyTableErr(second.err):
			if !d.opts.AllowEmptyTables {
				return second.err
			}
		case second.err != nil:
			return second.err
		default:
			mn2, mx2, err := d.parseKeyRangeResult(keyTypesFor(second.side, table1, table2), dialectFor(second.side, table1, table2), second.minRaw, second.maxRaw)
			if err != nil {
				return err
			}
			boxes, err := boundaryRegions(minKey1, maxKey1, mn2, mx2)
			if err != nil {
				return err
			}
			for _, box := range boxes {
				p1, p2 := box[0], box[1]
				nt1, err := table1.NewKeyBounds(p1, p2)
				if err != nil {
					return err
				}
				nt2, err := table2.NewKeyBounds(p1, p2)
				if err != nil {
					return err
				}
				boxNode := tree.AddNode(tree.Root, nt1, nt2, 0)
				d.submit(y, 0, func(ctx context.Context) ([]any, error) {
					return d.bisectAndDiffSegments(ctx, y, nt1, nt2, tree, boxNode, 0, nil)
				})
			}
		}
	}

	return d.drain(y, out)
}

func (d *HashBisectDiffer) submit(y *yielder.PriorityYielder, priority int, fn yielder.Source) {
	y.Submit(fn, priority)
}

func (d *HashBisectDiffer) drain(y *yielder.PriorityYielder, out chan<- infotree.Row) error {
	for batch := range y.Results() {
		items, ok := batch.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			row, ok := item.(infotree.Row)
			if !ok {
				continue
			}
			out <- row
		}
	}
	return y.Err()
}

func (d *HashBisectDiffer) validateKeyTypes(table1, table2 segment.Segment) error {
	isEmpty1, isEmpty2 := isEmptySegment(table1), isEmptySegment(table2)
	check := func(s segment.Segment) error {
		for _, kt := range s.KeyTypes() {
			if !kt.IsKeyCandidate {
				return errs.NewSchemaError("cannot use column %q of kind %s as a key (no successor)", kt.Name, kt.Kind)
			}
		}
		return nil
	}
	if !isEmpty1 {
		if err := check(table1); err != nil {
			return err
		}
	}
	if !isEmpty2 {
		if err := check(table2); err != nil {
			return err
		}
	}
	if !isEmpty1 && !isEmpty2 {
		kt1, kt2 := table1.KeyTypes(), table2.KeyTypes()
		for i := range kt1 {
			if kt1[i].Kind != kt2[i].Kind {
				return errs.NewSchemaError("incompatible key types: %s and %s", kt1[i].Kind, kt2[i].Kind)
			}
		}
	}
	return nil
}

func keyTypesFor(side int, table1, table2 segment.Segment) []dialect.ColumnType {
	if side == 1 {
		return table1.KeyTypes()
	}
	return table2.KeyTypes()
}

func dialectFor(side int, table1, table2 segment.Segment) dialect.Dialect {
	if side == 1 {
		return table1.Database().Dialect()
	}
	return table2.Database().Dialect()
}

// parseKeyRangeResult converts raw min/max query results into typed,
// exclusive-on-the-high-end key Vectors: min is used as-is, max becomes
// its successor so that [min, max) is a half-open range.
func (d *HashBisectDiffer) parseKeyRangeResult(keyTypes []dialect.ColumnType, dia dialect.Dialect, minRaw, maxRaw []any) (keyspace.Vector, keyspace.Vector, error) {
	minKey := make(keyspace.Vector, len(keyTypes))
	maxKey := make(keyspace.Vector, len(keyTypes))
	for i, kt := range keyTypes {
		mn, err := dia.MakeKeyValue(kt, minRaw[i])
		if err != nil {
			return nil, nil, errs.NewKeyParseError(err, "cannot apply key type %s to min value %v", kt.Name, minRaw[i])
		}
		mx, err := dia.MakeKeyValue(kt, maxRaw[i])
		if err != nil {
			return nil, nil, errs.NewKeyParseError(err, "cannot apply key type %s to max value %v", kt.Name, maxRaw[i])
		}
		minKey[i] = mn
		maxKey[i] = mx.Succ()
	}
	return minKey, maxKey, nil
}

func isEmptyTableErr(err error) bool {
	var e *errs.EmptyTableError
	return errors.As(err, &e)
}

// boundaryRegions builds the 3^N - 1 mesh of boxes covering the
// asymmetric difference between two compound key ranges, excluding
// boxes already covered by [minKey1, maxKey1).
func boundaryRegions(minKey1, maxKey1, minKey2, maxKey2 keyspace.Vector) ([][2]keyspace.Vector, error) {
	dims := len(minKey1)
	axes := make([][]keyspace.KeyValue, dims)
	for i := 0; i < dims; i++ {
		vals := []keyspace.KeyValue{minKey1[i], minKey2[i], maxKey1[i], maxKey2[i]}
		sort.Slice(vals, func(a, b int) bool { return vals[a].Less(vals[b]) })
		dedup := make([]keyspace.KeyValue, 0, 4)
		for _, v := range vals {
			if len(dedup) == 0 || !dedup[len(dedup)-1].Equal(v) {
				dedup = append(dedup, v)
			}
		}
		if len(dedup) < 2 {
			dedup = append(dedup, dedup[0])
		}
		axes[i] = dedup
	}

	boxes, err := keyspace.Mesh(axes...)
	if err != nil {
		return nil, err
	}

	var out [][2]keyspace.Vector
	for _, b := range boxes {
		p1, p2 := b[0], b[1]
		if !p1.Less(p2) {
			continue
		}
		if minKey1.LessEqual(p1) && p2.LessEqual(maxKey1) {
			continue // already covered by the root region
		}
		out = append(out, [2]keyspace.Vector{p1, p2})
	}
	return out, nil
}

// bisectAndDiffSegments is Phase 5 steps 1 (local leaf) and 4 (split):
// either download and compare both sides directly, or choose
// checkpoints and recurse.
func (d *HashBisectDiffer) bisectAndDiffSegments(ctx context.Context, y *yielder.PriorityYielder, table1, table2 segment.Segment, tree *infotree.InfoTree, node *infotree.Node, level int, maxRows *int64) ([]any, error) {
	maxSpaceSize1, err := table1.ApproximateSize()
	if err != nil {
		return nil, err
	}
	maxSpaceSize2, err := table2.ApproximateSize()
	if err != nil {
		return nil, err
	}
	maxSpaceSize := maxSpaceSize1
	if maxSpaceSize2 > maxSpaceSize {
		maxSpaceSize = maxSpaceSize2
	}

	var rows int64
	if maxRows == nil {
		rows = maxSpaceSize
		node.Info.MaxRows = rows
	} else {
		rows = *maxRows
	}

	if rows < d.opts.BisectionThreshold || maxSpaceSize < int64(d.opts.BisectionFactor)*2 {
		return d.materializeLeaf(ctx, table1, table2, node, level)
	}

	return nil, d.splitAndSubmit(y, table1, table2, tree, node, level, rows)
}

func (d *HashBisectDiffer) materializeLeaf(ctx context.Context, table1, table2 segment.Segment, node *infotree.Node, level int) ([]any, error) {
	var rows1, rows2 []dialect.Row
	var err1, err2 error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); rows1, err1 = table1.GetValues(ctx) }()
	go func() { defer wg.Done(); rows2, err2 = table2.GetValues(ctx) }()
	wg.Wait()
	if err1 != nil {
		return nil, err1
	}
	if err2 != nil {
		return nil, err2
	}

	diff := setDiff(rows1, rows2, d.opts.SkipSortResults, d.opts.DuplicateRowsSupport)
	node.Info.SetDiff(diff)
	node.Info.RowCounts = map[int]int64{1: int64(len(rows1)), 2: int64(len(rows2))}

	downloaded := len(rows1)
	if len(rows2) > downloaded {
		downloaded = len(rows2)
	}
	d.addStat("rows_downloaded", int64(downloaded))

	keyRange := fmt.Sprintf("%s..%s", table1.MinKey(), table1.MaxKey())
	d.opts.Reporter.LeafMaterialized(level, keyRange, len(diff))
	d.opts.Logger.Debug("diff found different rows", zap.Int("level", level), zap.Int("count", len(diff)))

	out := make([]any, len(diff))
	for i, r := range diff {
		out[i] = r
	}
	return out, nil
}

func (d *HashBisectDiffer) splitAndSubmit(y *yielder.PriorityYielder, table1, table2 segment.Segment, tree *infotree.InfoTree, node *infotree.Node, level int, maxRows int64) error {
	biggest := table1
	size1, _ := table1.ApproximateSize()
	size2, _ := table2.ApproximateSize()
	if size2 > size1 {
		biggest = table2
	}

	checkpoints, err := biggest.ChooseCheckpoints(d.opts.BisectionFactor)
	if err != nil {
		return err
	}
	segmented1, err := table1.SegmentByCheckpoints(checkpoints)
	if err != nil {
		return err
	}
	segmented2, err := table2.SegmentByCheckpoints(checkpoints)
	if err != nil {
		return err
	}
	if len(segmented1) != len(segmented2) {
		return errs.NewConfigurationError("mismatched segmentation: %d vs %d sub-segments", len(segmented1), len(segmented2))
	}

	for i := range segmented1 {
		t1, t2 := segmented1[i], segmented2[i]
		childNode := tree.AddNode(node, t1, t2, maxRows)
		childLevel := level + 1
		mr := maxRows
		d.submit(y, level, func(ctx context.Context) ([]any, error) {
			return d.diffSegments(ctx, y, t1, t2, tree, childNode, childLevel, &mr)
		})
	}
	return nil
}

// diffSegments is Phase 5 steps 2-3: the empty-side shortcut and the
// checksum-based prune-or-recurse decision for an already-created
// InfoTree node.
func (d *HashBisectDiffer) diffSegments(ctx context.Context, y *yielder.PriorityYielder, table1, table2 segment.Segment, tree *infotree.InfoTree, node *infotree.Node, level int, maxRows *int64) ([]any, error) {
	keyRange := fmt.Sprintf("%s..%s", table1.MinKey(), table1.MaxKey())
	d.opts.Reporter.NodeStarted(level, keyRange)

	if d.opts.SkipChecksum && maxRows != nil && *maxRows < d.opts.BisectionThreshold {
		return d.bisectAndDiffSegments(ctx, y, table1, table2, tree, node, level, maxRows)
	}

	isEmpty1, isEmpty2 := isEmptySegment(table1), isEmptySegment(table2)

	var count1, count2 int64
	var checksum1, checksum2 *dialect.Checksum

	if isEmpty1 || isEmpty2 {
		var wg sync.WaitGroup
		var err1, err2 error
		wg.Add(2)
		go func() { defer wg.Done(); count1, err1 = table1.Count(ctx) }()
		go func() { defer wg.Done(); count2, err2 = table2.Count(ctx) }()
		wg.Wait()
		if err1 != nil {
			return nil, err1
		}
		if err2 != nil {
			return nil, err2
		}
	} else {
		var wg sync.WaitGroup
		var err1, err2 error
		wg.Add(2)
		go func() {
			defer wg.Done()
			count1, checksum1, err1 = table1.CountAndChecksum(ctx)
			if warn := asSlowChecksumWarning(err1); warn != nil {
				d.opts.Logger.Warn("slow checksum", zap.Duration("duration", warn.Duration))
				err1 = nil
			}
		}()
		go func() {
			defer wg.Done()
			count2, checksum2, err2 = table2.CountAndChecksum(ctx)
			if warn := asSlowChecksumWarning(err2); warn != nil {
				d.opts.Logger.Warn("slow checksum", zap.Duration("duration", warn.Duration))
				err2 = nil
			}
		}()
		wg.Wait()
		if err1 != nil {
			return nil, err1
		}
		if err2 != nil {
			return nil, err2
		}
	}

	node.Info.RowCounts = map[int]int64{1: count1, 2: count2}

	if count1 == 0 && count2 == 0 {
		d.opts.Logger.Warn("uneven key distribution detected (key-gap segment)",
			zap.String("range", keyRange))
		node.Info.IsDiff = false
		d.opts.Reporter.NodeResolved(level, keyRange, false, count1, count2)
		return nil, nil
	}

	checksumsEqual := (checksum1 == nil && checksum2 == nil) || (checksum1 != nil && checksum2 != nil && checksum1.Equal(*checksum2))
	if checksumsEqual && count1 == count2 {
		node.Info.IsDiff = false
		d.opts.Reporter.NodeResolved(level, keyRange, false, count1, count2)
		return nil, nil
	}

	node.Info.IsDiff = true
	d.opts.Reporter.NodeResolved(level, keyRange, true, count1, count2)

	maxOf := count1
	if count2 > maxOf {
		maxOf = count2
	}
	return d.bisectAndDiffSegments(ctx, y, table1, table2, tree, node, level, &maxOf)
}

func asSlowChecksumWarning(err error) *segment.SlowChecksumWarning {
	var w *segment.SlowChecksumWarning
	if errors.As(err, &w) {
		return w
	}
	return nil
}
