// Package keyspace implements pure value-level utilities over one- and
// N-dimensional key ranges: ordering, arithmetic on bounded keys, checkpoint
// selection, and mesh construction over compound keys.
package keyspace

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyValue is a total-ordered value with an add-one successor, so that
// key ranges can be closed on the low end and open on the high end
// uniformly across integer, UUID/string, and date keys. Dialects that
// cannot supply a successor (e.g. floats) must reject the column
// instead of producing a KeyValue.
type KeyValue interface {
	// Less reports whether the receiver sorts strictly before other.
	// Both values must share the same concrete type.
	Less(other KeyValue) bool
	// Equal reports value equality.
	Equal(other KeyValue) bool
	// Succ returns the next representable value ("+1").
	Succ() KeyValue
	// Distance returns an approximation of (receiver - other) as a
	// non-negative integer, used only to estimate slab volume and to
	// pick a bisection factor. It is not required to be exact for
	// non-integer key types.
	Distance(other KeyValue) int64
	// Split returns n-1 ascending checkpoints strictly between the
	// receiver and max. len(result) == n-1.
	Split(max KeyValue, n int) []KeyValue
	String() string
}

// IntKey is a KeyValue over int64, e.g. serial/bigint primary keys.
type IntKey int64

func (k IntKey) Less(other KeyValue) bool  { return k < other.(IntKey) }
func (k IntKey) Equal(other KeyValue) bool { return k == other.(IntKey) }
func (k IntKey) Succ() KeyValue            { return k + 1 }
func (k IntKey) Distance(other KeyValue) int64 {
	o := other.(IntKey)
	d := int64(k) - int64(o)
	if d < 0 {
		d = -d
	}
	return d
}

func (k IntKey) Split(max KeyValue, n int) []KeyValue {
	mx := int64(max.(IntKey))
	mn := int64(k)
	width := mx - mn
	out := make([]KeyValue, 0, n-1)
	for i := 1; i < n; i++ {
		// equal-width interior points, truncated toward mn
		point := mn + (width*int64(i))/int64(n)
		out = append(out, IntKey(point))
	}
	return out
}

func (k IntKey) String() string { return fmt.Sprintf("%d", int64(k)) }

// TimeKey is a KeyValue over timestamps, truncated to some mutual
// precision agreed upon during schema reconciliation.
type TimeKey struct{ T time.Time }

func (k TimeKey) Less(other KeyValue) bool  { return k.T.Before(other.(TimeKey).T) }
func (k TimeKey) Equal(other KeyValue) bool { return k.T.Equal(other.(TimeKey).T) }
func (k TimeKey) Succ() KeyValue            { return TimeKey{k.T.Add(time.Nanosecond)} }
func (k TimeKey) Distance(other KeyValue) int64 {
	d := k.T.Sub(other.(TimeKey).T)
	if d < 0 {
		d = -d
	}
	return int64(d)
}

func (k TimeKey) Split(max KeyValue, n int) []KeyValue {
	mx := max.(TimeKey).T
	mn := k.T
	width := mx.Sub(mn)
	out := make([]KeyValue, 0, n-1)
	for i := 1; i < n; i++ {
		step := time.Duration(int64(width) * int64(i) / int64(n))
		out = append(out, TimeKey{mn.Add(step)})
	}
	return out
}

func (k TimeKey) String() string { return k.T.Format(time.RFC3339Nano) }

// UUIDKey is a KeyValue over UUIDs, treated as a 128-bit arithmetic
// string: successor and split are computed over the big-endian integer
// representation, same as arbitrary-precision integer keys, since UUIDs
// (v1/v4 alike) have no native ordering semantics to exploit.
type UUIDKey uuid.UUID

func (k UUIDKey) big() *big.Int {
	b := uuid.UUID(k)
	return new(big.Int).SetBytes(b[:])
}

func fromBig(i *big.Int) UUIDKey {
	var out [16]byte
	b := i.Bytes()
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(out[16-len(b):], b)
	return UUIDKey(out)
}

func (k UUIDKey) Less(other KeyValue) bool {
	return k.big().Cmp(other.(UUIDKey).big()) < 0
}
func (k UUIDKey) Equal(other KeyValue) bool {
	return uuid.UUID(k) == uuid.UUID(other.(UUIDKey))
}
func (k UUIDKey) Succ() KeyValue {
	return fromBig(new(big.Int).Add(k.big(), big.NewInt(1)))
}
func (k UUIDKey) Distance(other KeyValue) int64 {
	d := new(big.Int).Sub(k.big(), other.(UUIDKey).big())
	d.Abs(d)
	if !d.IsInt64() {
		return int64(^uint64(0) >> 1) // saturate; only used for size estimation
	}
	return d.Int64()
}

func (k UUIDKey) Split(max KeyValue, n int) []KeyValue {
	mn := k.big()
	mx := max.(UUIDKey).big()
	width := new(big.Int).Sub(mx, mn)
	out := make([]KeyValue, 0, n-1)
	for i := 1; i < n; i++ {
		step := new(big.Int).Mul(width, big.NewInt(int64(i)))
		step.Div(step, big.NewInt(int64(n)))
		point := new(big.Int).Add(mn, step)
		out = append(out, fromBig(point))
	}
	return out
}

func (k UUIDKey) String() string { return uuid.UUID(k).String() }

// StringKey is a KeyValue over case-sensitive strings restricted to a
// fixed alphabet (e.g. lowercase base36 identifiers), interpreted as an
// arbitrary-precision number in that alphabet so that ranges can be
// evenly subdivided the way an integer key would be. This mirrors
// ArithString in the original implementation: the key type itself
// provides the uniform sub-division.
type StringKey struct {
	Value    string
	Alphabet string // ordered, e.g. "0123456789abcdefghijklmnopqrstuvwxyz"
	Width    int    // fixed output width for zero-padding
}

func (k StringKey) base() int { return len(k.Alphabet) }

func (k StringKey) toBig() *big.Int {
	base := big.NewInt(int64(k.base()))
	acc := new(big.Int)
	for _, c := range k.Value {
		idx := strings.IndexRune(k.Alphabet, c)
		if idx < 0 {
			idx = 0
		}
		acc.Mul(acc, base)
		acc.Add(acc, big.NewInt(int64(idx)))
	}
	return acc
}

func (k StringKey) fromBig(i *big.Int) StringKey {
	base := big.NewInt(int64(k.base()))
	if i.Sign() == 0 {
		return StringKey{Value: strings.Repeat(string(k.Alphabet[0]), k.Width), Alphabet: k.Alphabet, Width: k.Width}
	}
	digits := make([]byte, 0, k.Width)
	n := new(big.Int).Set(i)
	zero := big.NewInt(0)
	mod := new(big.Int)
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, k.Alphabet[mod.Int64()])
	}
	for len(digits) < k.Width {
		digits = append(digits, k.Alphabet[0])
	}
	// reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return StringKey{Value: string(digits), Alphabet: k.Alphabet, Width: k.Width}
}

func (k StringKey) Less(other KeyValue) bool  { return k.Value < other.(StringKey).Value }
func (k StringKey) Equal(other KeyValue) bool { return k.Value == other.(StringKey).Value }

func (k StringKey) Succ() KeyValue {
	return k.fromBig(new(big.Int).Add(k.toBig(), big.NewInt(1)))
}

func (k StringKey) Distance(other KeyValue) int64 {
	d := new(big.Int).Sub(k.toBig(), other.(StringKey).toBig())
	d.Abs(d)
	if !d.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return d.Int64()
}

func (k StringKey) Split(max KeyValue, n int) []KeyValue {
	mn := k.toBig()
	mx := max.(StringKey).toBig()
	width := new(big.Int).Sub(mx, mn)
	out := make([]KeyValue, 0, n-1)
	for i := 1; i < n; i++ {
		step := new(big.Int).Mul(width, big.NewInt(int64(i)))
		step.Div(step, big.NewInt(int64(n)))
		point := new(big.Int).Add(mn, step)
		out = append(out, k.fromBig(point))
	}
	return out
}

func (k StringKey) String() string { return k.Value }
