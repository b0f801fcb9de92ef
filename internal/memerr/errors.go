// Package memerr defines the error-kind taxonomy shared by every layer of
// the allocator core (directory, heap shell, line engine, memory facade).
package memerr

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Log is the package-wide diagnostic logger. It defaults to a no-op sink
// so importing memerr never forces a logging backend on a caller; a
// process that wants the INTERNAL-kind warnings below surfaced calls
// SetLogger once at startup.
var Log = zap.NewNop().Sugar()

// SetLogger replaces the package logger, e.g. with
// zap.NewProduction().Sugar() or a test observer core.
func SetLogger(l *zap.SugaredLogger) { Log = l }

// Kind classifies a failure into the taxonomy every layer reports
// through. Callers branch on kind with errors.Is against the sentinel
// Kind values below, never on the wrapped message text.
type Kind int

const (
	// BadParam means the caller passed a null/unaligned/out-of-range
	// argument that is never accepted regardless of flags.
	BadParam Kind = iota
	// InvFlag means the flag combination itself is invalid (e.g. DECOMMIT
	// and RELEASE both set on Copy).
	InvFlag
	// NoMemory means the OS refused to reserve address space or create or
	// map a shared view, or no free block could cover a requested range.
	NoMemory
	// FreeMem means the OS refused to commit pages, or the directory
	// could not give back the unused tail of a block it had just found.
	FreeMem
	// MemNotCommitted means an operation needed committed pages and found
	// one that is not; vmem.Engine.Decommit reports it for a range that is
	// not fully committed.
	MemNotCommitted
	// Internal means a metadata invariant was found violated (e.g. a scan
	// ran past the legal end of a counter's range).
	Internal
)

func (k Kind) String() string {
	switch k {
	case BadParam:
		return "BAD_PARAM"
	case InvFlag:
		return "INV_FLAG"
	case NoMemory:
		return "NO_MEMORY"
	case FreeMem:
		return "FREE_MEM"
	case MemNotCommitted:
		return "MEM_NOT_COMMITTED"
	case Internal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type carried across every layer. Two Errors
// compare equal under errors.Is when their Kind matches, regardless of Op
// or the wrapped cause - this lets callers write `errors.Is(err, memerr.NoMemory)`...
// but Kind is not itself an error, so the canonical form is errors.As plus
// a Kind check, or the Is(kind) helper below.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "directory.AllocateRange"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, memerr.New(BadParam, "", nil)) compare by Kind
// only, so sentinel-style comparisons work without pinning Op or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error, wrapping cause with github.com/pkg/errors so a
// %+v format still prints a stack trace from the deepest wrap point.
func New(kind Kind, op string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	e := &Error{Kind: kind, Op: op, Err: cause}
	if kind == Internal {
		Log.Warnw("invariant violation", "op", op, "err", cause)
	}
	return e
}

// Of returns a zero-value sentinel of the given kind, suitable for
// errors.Is(err, memerr.Of(memerr.NoMemory)).
func Of(kind Kind) *Error { return &Error{Kind: kind} }

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return errors.Is(err, Of(kind))
}
