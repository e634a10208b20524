package keyspace

import (
	"math/big"
	"testing"
)

func TestSplitKeySpaceDegenerates(t *testing.T) {
	checkpoints, err := SplitKeySpace(IntKey(0), IntKey(3), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(checkpoints) != 2 {
		t.Fatalf("expected degeneration to [min,max], got %v", checkpoints)
	}
}

func TestSplitKeySpaceMonotonic(t *testing.T) {
	checkpoints, err := SplitKeySpace(IntKey(0), IntKey(100), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(checkpoints) != 5 {
		t.Fatalf("expected 5 checkpoints, got %d", len(checkpoints))
	}
	for i := 1; i < len(checkpoints); i++ {
		if !checkpoints[i-1].Less(checkpoints[i]) {
			t.Fatalf("checkpoints not strictly ascending: %v", checkpoints)
		}
	}
}

func TestMeshCardinality(t *testing.T) {
	d1 := []KeyValue{StringKey{Value: "a"}, StringKey{Value: "b"}, StringKey{Value: "c"}}
	d2 := []KeyValue{IntKey(1), IntKey(2), IntKey(3)}
	boxes, err := Mesh(d1, d2)
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 4 {
		t.Fatalf("expected Π(l_i-1) = 2*2 = 4 boxes, got %d", len(boxes))
	}
	for _, b := range boxes {
		if !b[0].Less(b[1]) {
			t.Fatalf("box %v does not satisfy p1 < p2", b)
		}
	}
}

func TestMeshRejectsShortAxis(t *testing.T) {
	_, err := Mesh([]KeyValue{IntKey(0)})
	if err == nil {
		t.Fatal("expected error for axis of length < 2")
	}
}

func TestUUIDKeySuccAndDistance(t *testing.T) {
	var zero UUIDKey
	one := fromBig(big.NewInt(1))
	if zero.Equal(one) {
		t.Fatal("zero should not equal one")
	}
	if !zero.Less(one) {
		t.Fatal("zero should be less than one")
	}
	succ := zero.Succ()
	if !succ.Equal(one) {
		t.Fatalf("Succ() of zero UUID should equal one, got %s", succ)
	}
}
