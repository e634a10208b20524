package differ

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
	"github.com/arrowgrid/reladiff-go/internal/infotree"
)

// rowKey turns a row's values into a comparable map key; values are
// formatted rather than used directly since dialect.Row elements are
// `any` and may not be comparable (e.g. a []byte leaking through).
func rowKey(r dialect.Row) string {
	s := ""
	for i, v := range r {
		if i > 0 {
			s += "\x00"
		}
		s += fmt.Sprintf("%v", v)
	}
	return s
}

// setDiff computes the leaf-level diff between two row sets, per
// spec.md §4.5's SetDiff: duplicate-aware multiset difference by
// default, or a plain symmetric set difference; optionally sorted by a
// total order that treats nil as the smallest value.
func setDiff(rowsA, rowsB []dialect.Row, skipSort, duplicateAware bool) []infotree.Row {
	var out []infotree.Row

	if duplicateAware {
		countA := map[string]int{}
		rowByKey := map[string]dialect.Row{}
		for _, r := range rowsA {
			k := rowKey(r)
			countA[k]++
			rowByKey[k] = r
		}
		countB := map[string]int{}
		for _, r := range rowsB {
			k := rowKey(r)
			countB[k]++
			rowByKey[k] = r
		}
		for k, cb := range countB {
			d := cb - countA[k]
			for i := 0; i < d; i++ {
				out = append(out, infotree.Row{Sign: "+", Values: rowByKey[k]})
			}
		}
		for k, ca := range countA {
			d := countB[k] - ca
			for i := 0; i < -d; i++ {
				out = append(out, infotree.Row{Sign: "-", Values: rowByKey[k]})
			}
		}
	} else {
		setA := map[string]dialect.Row{}
		for _, r := range rowsA {
			setA[rowKey(r)] = r
		}
		setB := map[string]dialect.Row{}
		for _, r := range rowsB {
			setB[rowKey(r)] = r
		}
		for k, r := range setA {
			if _, ok := setB[k]; !ok {
				out = append(out, infotree.Row{Sign: "-", Values: r})
			}
		}
		for k, r := range setB {
			if _, ok := setA[k]; !ok {
				out = append(out, infotree.Row{Sign: "+", Values: r})
			}
		}
	}

	if !skipSort {
		sort.SliceStable(out, func(i, j int) bool {
			return compareValues(out[i].Values, out[j].Values) < 0
		})
	}
	return out
}

// compareValues compares two tuples componentwise, treating nil as the
// smallest possible value, matching compare_element/compare in the
// original's hashdiff_tables module.
func compareValues(a, b []any) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareElement(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compareElement compares two row values natively by concrete kind,
// mirroring keyspace.KeyValue.Less's per-type comparisons, rather than
// formatting both to strings first: a string comparison of "9" vs "10"
// sorts 9 after 10, which breaks the total order for numeric keys.
func compareElement(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch av := a.(type) {
	case int64:
		if bv, ok := toInt64(b); ok {
			return cmpInt64(av, bv)
		}
	case int32:
		if bv, ok := toInt64(b); ok {
			return cmpInt64(int64(av), bv)
		}
	case int:
		if bv, ok := toInt64(b); ok {
			return cmpInt64(int64(av), bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmpFloat64(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return cmpBool(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			default:
				return 0
			}
		}
	case uuid.UUID:
		if bv, ok := b.(uuid.UUID); ok {
			return cmpString(av.String(), bv.String())
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmpString(av, bv)
		}
	}

	// Mismatched or unrecognized concrete types: fall back to a
	// deterministic (not necessarily meaningful) lexical comparison
	// rather than panicking or reporting a false tie.
	return cmpString(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
