package keyspace

import "fmt"

// IntProduct multiplies a slice of non-negative integers, used to turn
// per-axis checkpoint-list lengths into the number of mesh boxes, and
// per-axis distances into an approximate slab volume.
func IntProduct(nums []int64) int64 {
	p := int64(1)
	for _, n := range nums {
		p *= n
	}
	return p
}

// SplitKeySpace returns an ascending list [min, c1, ..., c_{n-1}, max]
// of n+1 checkpoints, strictly monotonic. If max-min <= n, it
// degenerates to [min, max] (no bisection possible in that dimension).
func SplitKeySpace(min, max KeyValue, n int) ([]KeyValue, error) {
	if !min.Less(max) {
		return nil, fmt.Errorf("keyspace: min must be strictly less than max (got %s, %s)", min, max)
	}

	width := max.Distance(min)
	if width <= int64(n) {
		n = 1
	}

	result := make([]KeyValue, 0, n+1)
	result = append(result, min)
	if n > 1 {
		result = append(result, min.Split(max, n)...)
	}
	result = append(result, max)
	return result, nil
}

// SplitCompoundKeySpace applies SplitKeySpace per dimension, returning
// an N-list of per-axis checkpoint lists.
func SplitCompoundKeySpace(min, max Vector, n int) ([][]KeyValue, error) {
	if len(min) != len(max) {
		return nil, fmt.Errorf("keyspace: vector dimension mismatch (%d vs %d)", len(min), len(max))
	}
	out := make([][]KeyValue, len(min))
	for i := range min {
		checkpoints, err := SplitKeySpace(min[i], max[i], n)
		if err != nil {
			return nil, err
		}
		out[i] = checkpoints
	}
	return out, nil
}

// Mesh returns the Cartesian product of adjacent-pair boxes given axis
// lists of lengths l1,...,lN, each ascending. It returns exactly
// Π(l_i - 1) boxes (p1, p2), each a pair of Vectors with p1 < p2
// componentwise. Traversal order is unspecified but deterministic given
// the inputs (row-major over the axes, innermost axis varying fastest).
func Mesh(axes ...[]KeyValue) ([][2]Vector, error) {
	for _, axis := range axes {
		if len(axis) < 2 {
			return nil, fmt.Errorf("keyspace: each axis needs at least 2 points, got %d", len(axis))
		}
	}

	dims := len(axes)
	counts := make([]int, dims)
	expected := int64(1)
	for i, axis := range axes {
		counts[i] = len(axis) - 1
		expected *= int64(counts[i])
	}

	boxes := make([][2]Vector, 0, expected)
	idx := make([]int, dims)
	for {
		p1 := make(Vector, dims)
		p2 := make(Vector, dims)
		for d := 0; d < dims; d++ {
			p1[d] = axes[d][idx[d]]
			p2[d] = axes[d][idx[d]+1]
		}
		boxes = append(boxes, [2]Vector{p1, p2})

		// odometer increment, innermost axis fastest
		d := dims - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < counts[d] {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			break
		}
	}

	if int64(len(boxes)) != expected {
		return nil, fmt.Errorf("keyspace: mesh cardinality mismatch: got %d, want %d", len(boxes), expected)
	}
	return boxes, nil
}
