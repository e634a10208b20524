package differ

import (
	"testing"

	"github.com/arrowgrid/reladiff-go/internal/keyspace"
)

func vec(vals ...int64) keyspace.Vector {
	v := make(keyspace.Vector, len(vals))
	for i, n := range vals {
		v[i] = keyspace.IntKey(n)
	}
	return v
}

func boxVolume(p1, p2 keyspace.Vector) int64 {
	widths := p1.Sub(p2)
	vol := int64(1)
	for _, w := range widths {
		vol *= w
	}
	return vol
}

// TestBoundaryRegionsCoversCompoundKeyMismatchExactly exercises seed
// scenario S4: two compound-key ranges whose min/max only partially
// overlap. The boundary mesh must cover every cell of the combined
// breakpoint grid outside the first (root) rectangle exactly once,
// with no overlap and no gap.
func TestBoundaryRegionsCoversCompoundKeyMismatchExactly(t *testing.T) {
	minKey1, maxKey1 := vec(0, 0), vec(10, 10)
	minKey2, maxKey2 := vec(5, 5), vec(15, 15)

	boxes, err := boundaryRegions(minKey1, maxKey1, minKey2, maxKey2)
	if err != nil {
		t.Fatal(err)
	}

	// The breakpoints {0,5,10,15} on each axis partition [0,15)x[0,15)
	// into a uniform 3x3 grid of 5x5 cells (area 225 total); the root
	// rectangle [0,10)x[0,10) exactly covers 4 of those 9 cells (area
	// 100), so the boundary mesh's remaining 5 cells must total 125 —
	// including the corner cells outside both tables' actual ranges,
	// which the recursion will simply find empty on both sides.
	var total int64
	for _, b := range boxes {
		p1, p2 := b[0], b[1]
		if !p1.Less(p2) {
			t.Fatalf("degenerate box with non-positive extent: %s..%s", p1, p2)
		}
		total += boxVolume(p1, p2)
		// No returned box may be covered by the root rectangle: that
		// region is already handled by the root-level diff.
		if minKey1.LessEqual(p1) && p2.LessEqual(maxKey1) {
			t.Fatalf("boundary box %s..%s duplicates the root region", p1, p2)
		}
	}
	if total != 125 {
		t.Fatalf("expected boundary mesh to cover exactly 125 units of area, got %d (boxes=%v)", total, boxes)
	}
	if len(boxes) != 5 {
		t.Fatalf("expected 5 boundary cells, got %d (boxes=%v)", len(boxes), boxes)
	}
}

// TestBoundaryRegionsEmptyWhenRangesIdentical covers the degenerate
// case where both sides report the same key range: there is no
// boundary region left to repair.
func TestBoundaryRegionsEmptyWhenRangesIdentical(t *testing.T) {
	minKey, maxKey := vec(0, 0), vec(10, 10)
	boxes, err := boundaryRegions(minKey, maxKey, minKey, maxKey)
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 0 {
		t.Fatalf("expected no boundary boxes for identical ranges, got %v", boxes)
	}
}
