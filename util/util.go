// Package util contains misc internal utilities.
package util

import (
	"time"
)

// ArangeByte produces a slice of bytes like numpy's arange.
// With one argument it counts from zero to end, with two from start to end,
// and with three from start to end in steps of step.  End is exclusive.
func ArangeByte(args ...byte) []byte {
	var start, end, step byte = 0, 0, 1
	switch len(args) {
	case 1:
		end = args[0]
	case 2:
		start, end = args[0], args[1]
	case 3:
		start, end, step = args[0], args[1], args[2]
	default:
		return nil
	}
	if step == 0 || end <= start {
		return []byte{}
	}
	out := make([]byte, 0, int(end-start)/int(step)+1)
	for i := int(start); i < int(end); i += int(step) {
		out = append(out, byte(i))
	}
	return out
}

// SetBit sets the bit at bitIndex of b to value and returns the result
func SetBit(b byte, bitIndex uint, value bool) byte {
	if value {
		return b | 1<<bitIndex
	}
	return b &^ (1 << bitIndex)
}

// GetBit returns the value of a given bit in a byte
func GetBit(b byte, bitIndex uint) bool {
	return b&(1<<bitIndex) != 0
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// Limiter holds a closed interval [Min, Max]
type Limiter struct {
	Min float64 `yaml:"Min"`
	Max float64 `yaml:"Max"`
}

// Check returns true if Min <= f <= Max
func (l Limiter) Check(f float64) bool {
	return f >= l.Min && f <= l.Max
}

// Clamp limits f to the interval
func (l Limiter) Clamp(f float64) float64 {
	if f < l.Min {
		return l.Min
	}
	if f > l.Max {
		return l.Max
	}
	return f
}

// Zero returns true if the limiter has not been populated
func (l Limiter) Zero() bool {
	return l.Min == 0 && l.Max == 0
}
