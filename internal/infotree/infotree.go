// Package infotree accumulates per-segment diff statistics into a tree
// that mirrors the recursion shape of the bisection search: one node
// per segment comparison, children added as a segment is bisected
// further. Each node is written by exactly one goroutine (the worker
// diffing that segment), so no locking is needed node-by-node; only
// the tree's own node-allocation step is synchronized.
package infotree

import (
	"sync"

	"github.com/arrowgrid/reladiff-go/internal/segment"
)

// Row is one sign-tagged differing row, e.g. ("-", [1, "alice"]).
type Row struct {
	Sign   string // "-", "+"
	Values []any
}

// SegmentInfo is the mutable per-node payload. MaxRows, RowCounts, and
// Diff are written only by the single goroutine that owns this node
// (RowCounts is written again by the leaf download when a checksummed
// node is then materialized); IsDiff summarizes whether a difference was found anywhere
// under this node (set directly on leaves, aggregated upward on
// internal nodes by AggregateInfo).
type SegmentInfo struct {
	Segments  []segment.Segment // [table1Segment, table2Segment] at this node
	MaxRows   int64
	RowCounts map[int]int64 // 1 -> table1 count, 2 -> table2 count
	IsDiff    bool
	diff      []Row
}

// SetDiff records the leaf-level diff rows for this node, also fixing
// IsDiff to len(diff) > 0.
func (s *SegmentInfo) SetDiff(rows []Row) {
	s.diff = rows
	s.IsDiff = len(rows) > 0
}

func (s *SegmentInfo) Diff() []Row { return s.diff }

// Node is one InfoTree node: payload plus the children spawned when
// this node's segment was bisected further.
type Node struct {
	Info     *SegmentInfo
	Parent   *Node
	Children []*Node
}

// InfoTree is the whole recursion-shaped stats tree for one diff run.
type InfoTree struct {
	mu   sync.Mutex
	Root *Node
}

// New creates an InfoTree rooted at the two top-level segments.
func New(table1, table2 segment.Segment) *InfoTree {
	return &InfoTree{
		Root: &Node{Info: &SegmentInfo{Segments: []segment.Segment{table1, table2}}},
	}
}

// AddNode allocates a new child of parent for a freshly bisected pair
// of sub-segments, thread-safely (many workers may bisect children of
// the same parent concurrently).
func (t *InfoTree) AddNode(parent *Node, t1, t2 segment.Segment, maxRows int64) *Node {
	n := &Node{
		Info:   &SegmentInfo{Segments: []segment.Segment{t1, t2}, MaxRows: maxRows},
		Parent: parent,
	}
	t.mu.Lock()
	parent.Children = append(parent.Children, n)
	t.mu.Unlock()
	return n
}

// AggregateInfo recomputes every internal node's RowCounts/IsDiff as
// the sum/OR of its children, post-order, after the diff run completes
// (leaves already carry their own true values from the worker that
// diffed them; this only fills in ancestors that never went through a
// leaf comparison themselves).
func (t *InfoTree) AggregateInfo() {
	aggregate(t.Root)
}

func aggregate(n *Node) (rowcounts map[int]int64, isDiff bool) {
	if len(n.Children) == 0 {
		return n.Info.RowCounts, n.Info.IsDiff
	}

	totals := map[int]int64{1: 0, 2: 0}
	anyDiff := false
	for _, c := range n.Children {
		rc, diff := aggregate(c)
		totals[1] += rc[1]
		totals[2] += rc[2]
		anyDiff = anyDiff || diff
	}
	n.Info.RowCounts = totals
	n.Info.IsDiff = anyDiff
	return totals, anyDiff
}

// KeyColumnCount returns the key-column width of the root's first
// segment, used by callers that need to split a flattened diff row
// back into (key, rest).
func (t *InfoTree) KeyColumnCount() int {
	return len(t.Root.Info.Segments[0].KeyColumns())
}

