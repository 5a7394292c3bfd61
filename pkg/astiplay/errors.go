package astiplay

import (
	"errors"
	"fmt"
)

// ErrKind classifies a pipeline error the way spec.md §7 enumerates them.
type ErrKind int

const (
	// ErrKindInvalidData: the source produced a malformed payload. Non-fatal,
	// the decoder discards the packet and continues.
	ErrKindInvalidData ErrKind = iota
	// ErrKindDecoder: a codec failure. Fatal to the current session.
	ErrKindDecoder
	// ErrKindNoMem: an allocation failure. Fatal.
	ErrKindNoMem
	// ErrKindUnsupported: an unsupported configuration, detected at init. Fatal.
	ErrKindUnsupported
	// ErrKindExternal: a third-party library failure. Typically fatal.
	ErrKindExternal
	// ErrKindEOF: normal terminal condition.
	ErrKindEOF
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidData:
		return "invalid_data"
	case ErrKindDecoder:
		return "decoder"
	case ErrKindNoMem:
		return "no_mem"
	case ErrKindUnsupported:
		return "unsupported"
	case ErrKindExternal:
		return "external"
	case ErrKindEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Error is the pipeline's error type: a kind plus an optional wrapped cause.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("astiplay: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("astiplay: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrEOF) match any *Error of kind ErrKindEOF, not just
// the ErrEOF sentinel itself, matching how the teacher compares against
// astiav.ErrEof/astiav.ErrEagain via errors.Is rather than type assertions.
func (e *Error) Is(target error) bool {
	if target == ErrEOF {
		return e.Kind == ErrKindEOF
	}
	return false
}

// NewError builds a pipeline error of the given kind for operation op.
func NewError(kind ErrKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// ErrEOF is the normal-termination sentinel, the pipeline's equivalent of the
// teacher's astiav.ErrEof comparisons.
var ErrEOF = &Error{Kind: ErrKindEOF, Op: "astiplay"}

// IsFatal reports whether a decoder should abandon the current session after
// encountering err, per spec.md §7 (only InvalidData is non-fatal).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind != ErrKindInvalidData
	}
	return true
}
