package differ

import (
	"testing"

	"github.com/arrowgrid/reladiff-go/internal/dialect"
)

func TestSetDiffDuplicateAwareEmitsCountDelta(t *testing.T) {
	rowsA := []dialect.Row{{int64(1), "x"}, {int64(1), "x"}, {int64(2), "y"}}
	rowsB := []dialect.Row{{int64(1), "x"}, {int64(2), "y"}, {int64(2), "y"}, {int64(2), "y"}}

	out := setDiff(rowsA, rowsB, true, true)

	var plus, minus int
	for _, r := range out {
		switch r.Sign {
		case "+":
			plus++
		case "-":
			minus++
		}
	}
	// key 1 has one extra copy in A -> one "-"; key 2 has two extra
	// copies in B -> two "+".
	if minus != 1 || plus != 2 {
		t.Fatalf("expected minus=1 plus=2, got minus=%d plus=%d (%+v)", minus, plus, out)
	}
}

func TestSetDiffSetModeIgnoresDuplicateCounts(t *testing.T) {
	rowsA := []dialect.Row{{int64(1), "x"}, {int64(1), "x"}}
	rowsB := []dialect.Row{{int64(1), "x"}}

	out := setDiff(rowsA, rowsB, true, false)
	if len(out) != 0 {
		t.Fatalf("expected no diff in set mode when keys match regardless of count, got %+v", out)
	}
}

func TestSetDiffSortsByKeyWhenNotSkipped(t *testing.T) {
	rowsA := []dialect.Row{{int64(3), "z"}}
	rowsB := []dialect.Row{{int64(1), "a"}}

	out := setDiff(rowsA, rowsB, false, false)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	first := out[0].Values
	if first[0].(int64) != int64(1) {
		t.Fatalf("expected smallest key first, got %+v", out)
	}
}

// TestSetDiffSortsNumericKeysByValueNotLexically guards against
// formatting int64 keys to strings before comparing: "9" sorts after
// "10" lexically even though 9 < 10 numerically.
func TestSetDiffSortsNumericKeysByValueNotLexically(t *testing.T) {
	rowsA := []dialect.Row{{int64(10), "ten"}, {int64(9), "nine"}, {int64(100), "hundred"}}
	rowsB := []dialect.Row{}

	out := setDiff(rowsA, rowsB, false, false)
	if len(out) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(out))
	}
	var got []int64
	for _, r := range out {
		got = append(got, r.Values[0].(int64))
	}
	want := []int64{9, 10, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected numeric order %v, got %v", want, got)
		}
	}
}

func TestCompareElementOrdersIntsNumerically(t *testing.T) {
	if compareElement(int64(9), int64(10)) >= 0 {
		t.Fatal("expected 9 < 10")
	}
	if compareElement(int64(10), int64(9)) <= 0 {
		t.Fatal("expected 10 > 9")
	}
	if compareElement(int64(5), int64(5)) != 0 {
		t.Fatal("expected 5 == 5")
	}
}
