package differ

import (
	"context"
	"fmt"

	"github.com/arrowgrid/reladiff-go/internal/infotree"
)

// DiffStats summarizes one completed diff, mirroring the original
// DiffResultWrapper.get_stats_dict()'s shape.
type DiffStats struct {
	RowsA, RowsB           int64
	ExclusiveA, ExclusiveB int
	Updated                int
	Unchanged              int64
	DiffPercent            float64
}

// DiffResultWrapper streams (sign, row) pairs from a running diff and,
// once the stream is drained, computes DiffStats from the accumulated
// rows plus the InfoTree's aggregated row counts.
type DiffResultWrapper struct {
	rowsCh <-chan infotree.Row
	doneCh <-chan error

	tree   *infotree.InfoTree
	differ *HashBisectDiffer

	collected []infotree.Row
	drained   bool
	err       error
}

func newDiffResultWrapper(rowsCh <-chan infotree.Row, doneCh <-chan error, tree *infotree.InfoTree, differ *HashBisectDiffer) *DiffResultWrapper {
	return &DiffResultWrapper{rowsCh: rowsCh, doneCh: doneCh, tree: tree, differ: differ}
}

// Rows returns the channel of sign-tagged rows as they're produced.
// Rows read directly from this channel are not recorded for Stats;
// only rows drained through Collect are.
func (w *DiffResultWrapper) Rows() <-chan infotree.Row { return w.rowsCh }

// Collect drains the result stream fully, caching rows so repeated
// calls are free, mirroring DiffResultWrapper.__iter__'s result_list
// cache. Returns ctx.Err() early if ctx is cancelled mid-drain.
func (w *DiffResultWrapper) Collect(ctx context.Context) ([]infotree.Row, error) {
	if w.drained {
		return w.collected, w.err
	}
	for {
		select {
		case row, ok := <-w.rowsCh:
			if !ok {
				w.drained = true
				w.err = <-w.doneCh
				return w.collected, w.err
			}
			w.collected = append(w.collected, row)
		case <-ctx.Done():
			return w.collected, ctx.Err()
		}
	}
}

// Stats computes a DiffStats after fully draining the result stream.
func (w *DiffResultWrapper) Stats(ctx context.Context) (*DiffStats, error) {
	rows, err := w.Collect(ctx)
	if err != nil && len(rows) == 0 {
		return nil, err
	}

	keyWidth := w.tree.KeyColumnCount()
	type signs struct {
		plus, minus bool
	}
	bySign := map[string]*signs{}
	for _, r := range rows {
		k := rowKeyPrefix(r.Values, keyWidth)
		s, ok := bySign[k]
		if !ok {
			s = &signs{}
			bySign[k] = s
		}
		if r.Sign == "+" {
			s.plus = true
		} else {
			s.minus = true
		}
	}

	var exclusiveA, exclusiveB, updated int
	for _, s := range bySign {
		switch {
		case s.plus && s.minus:
			updated++
		case s.plus:
			exclusiveB++
		case s.minus:
			exclusiveA++
		}
	}

	rowCounts := w.tree.Root.Info.RowCounts
	var rowsA, rowsB int64
	if rowCounts != nil {
		rowsA, rowsB = rowCounts[1], rowCounts[2]
	}
	unchanged := rowsA - int64(exclusiveA) - int64(updated)

	denom := rowsA
	if rowsB > denom {
		denom = rowsB
	}
	if denom < 1 {
		denom = 1
	}
	diffPercent := 1 - float64(unchanged)/float64(denom)

	return &DiffStats{
		RowsA:       rowsA,
		RowsB:       rowsB,
		ExclusiveA:  exclusiveA,
		ExclusiveB:  exclusiveB,
		Updated:     updated,
		Unchanged:   unchanged,
		DiffPercent: diffPercent,
	}, err
}

func rowKeyPrefix(values []any, n int) string {
	if n > len(values) {
		n = len(values)
	}
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += "\x00"
		}
		s += fmt.Sprintf("%v", values[i])
	}
	return s
}

// GetStatsString renders DiffStats as the same human-readable report
// the original's get_stats_string() produces.
func (w *DiffResultWrapper) GetStatsString(ctx context.Context) (string, error) {
	s, err := w.Stats(ctx)
	if s == nil {
		return "", err
	}
	out := fmt.Sprintf("%d rows in table A\n", s.RowsA)
	out += fmt.Sprintf("%d rows in table B\n", s.RowsB)
	out += fmt.Sprintf("%d rows exclusive to table A (not present in B)\n", s.ExclusiveA)
	out += fmt.Sprintf("%d rows exclusive to table B (not present in A)\n", s.ExclusiveB)
	out += fmt.Sprintf("%d rows updated\n", s.Updated)
	out += fmt.Sprintf("%d rows unchanged\n", s.Unchanged)
	out += fmt.Sprintf("%.2f%% difference score\n", 100*s.DiffPercent)
	return out, err
}

// GetStatsDict renders DiffStats plus engine-level counters as the
// same machine-readable shape the original's get_stats_dict() returns.
func (w *DiffResultWrapper) GetStatsDict(ctx context.Context) (map[string]any, error) {
	s, err := w.Stats(ctx)
	if s == nil {
		return nil, err
	}
	return map[string]any{
		"rows_A":      s.RowsA,
		"rows_B":      s.RowsB,
		"exclusive_A": s.ExclusiveA,
		"exclusive_B": s.ExclusiveB,
		"updated":     s.Updated,
		"unchanged":   s.Unchanged,
		"total":       s.ExclusiveA + s.ExclusiveB + s.Updated,
		"stats":       w.differ.Stats(),
	}, err
}
