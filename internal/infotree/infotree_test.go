package infotree

import "testing"

func TestAggregateInfoSumsLeafRowCounts(t *testing.T) {
	tree := New(nil, nil)
	child1 := tree.AddNode(tree.Root, nil, nil, 10)
	child1.Info.RowCounts = map[int]int64{1: 3, 2: 4}
	child1.Info.SetDiff([]Row{{Sign: "-", Values: []any{1}}})

	child2 := tree.AddNode(tree.Root, nil, nil, 10)
	child2.Info.RowCounts = map[int]int64{1: 5, 2: 5}

	tree.AggregateInfo()

	if tree.Root.Info.RowCounts[1] != 8 || tree.Root.Info.RowCounts[2] != 9 {
		t.Fatalf("unexpected aggregated rowcounts: %+v", tree.Root.Info.RowCounts)
	}
	if !tree.Root.Info.IsDiff {
		t.Fatal("expected root IsDiff to be true when a child differs")
	}
}

func TestAggregateInfoNoDiff(t *testing.T) {
	tree := New(nil, nil)
	child := tree.AddNode(tree.Root, nil, nil, 5)
	child.Info.RowCounts = map[int]int64{1: 1, 2: 1}

	tree.AggregateInfo()

	if tree.Root.Info.IsDiff {
		t.Fatal("expected no diff when no child differs")
	}
}
