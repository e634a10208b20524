package keyspace

import "strings"

// Vector is a composite key: an ordered tuple of KeyValues. Comparison
// is componentwise for `<`/`<=`, never lexicographic — a Vector p1 < p2
// iff every component of p1 is strictly less than the corresponding
// component of p2.
type Vector []KeyValue

// Less reports whether every component of v is strictly less than the
// corresponding component of other.
func (v Vector) Less(other Vector) bool {
	if len(v) != len(other) {
		panic("keyspace: vector dimension mismatch")
	}
	for i := range v {
		if !v[i].Less(other[i]) {
			return false
		}
	}
	return len(v) > 0
}

// LessEqual reports componentwise <=.
func (v Vector) LessEqual(other Vector) bool {
	if len(v) != len(other) {
		panic("keyspace: vector dimension mismatch")
	}
	for i := range v {
		if v[i].Less(other[i]) || v[i].Equal(other[i]) {
			continue
		}
		return false
	}
	return true
}

// Equal reports componentwise equality.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if !v[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Sub returns the componentwise distance, used only to estimate slab
// volume.
func (v Vector) Sub(other Vector) []int64 {
	if len(v) != len(other) {
		panic("keyspace: vector dimension mismatch")
	}
	out := make([]int64, len(v))
	for i := range v {
		out[i] = v[i].Distance(other[i])
	}
	return out
}

func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, k := range v {
		parts[i] = k.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
