package astiplay

import "github.com/asticode/go-astiav"

// MicrosecondTimeBase is the canonical ts unit used throughout this package,
// matching spec.md's glossary ("canonical ts: presentation timestamp in a
// single fixed high-resolution time base (microseconds)"). It plays the role
// the teacher's NanosecondRational plays in time_reference.go, at
// microsecond instead of nanosecond resolution per the glossary's unit.
var MicrosecondTimeBase = astiav.NewRational(1, 1e6)

// ToCanonical rescales a timestamp expressed in srcTimeBase to canonical ts
// (microseconds), the same astiav.RescaleQ idiom the teacher uses to move a
// stream timestamp into NanosecondRational.
func ToCanonical(ts int64, srcTimeBase astiav.Rational) int64 {
	return astiav.RescaleQ(ts, srcTimeBase, MicrosecondTimeBase)
}

// FromCanonical rescales a canonical ts (microseconds) into dstTimeBase.
func FromCanonical(ts int64, dstTimeBase astiav.Rational) int64 {
	return astiav.RescaleQ(ts, MicrosecondTimeBase, dstTimeBase)
}

// SecondsToCanonical converts a client-facing time in seconds (the unit
// every client API input uses, per spec.md §6) to canonical microsecond ts.
func SecondsToCanonical(seconds float64) int64 {
	return int64(seconds * 1e6)
}

// CanonicalToSeconds converts canonical microsecond ts back to seconds for
// client-facing output.
func CanonicalToSeconds(ts int64) float64 {
	return float64(ts) / 1e6
}
