package ring

import "fmt"

// Code is the unified return-code taxonomy shared by the publish and
// subscribe paths (spec.md §6).
type Code int

const (
	// Ok indicates success.
	Ok Code = 0
	// CodeError is a generic invalid-argument or attach failure.
	CodeError Code = -1
	// PayloadTooLarge means the payload exceeds the slot's capacity.
	PayloadTooLarge Code = -2
	// Truncated means the consumer's buffer was too small for the next
	// message; the cursor still advances past it.
	Truncated Code = -3
	// Timeout means an MWMR generation-wait spin exhausted its bound.
	Timeout Code = -4
	// NoData means there is no new message ready for this subscriber.
	NoData Code = -11
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "ok"
	case CodeError:
		return "error"
	case PayloadTooLarge:
		return "payload-too-large"
	case Truncated:
		return "truncated"
	case Timeout:
		return "timeout"
	case NoData:
		return "no-data"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error wraps a Code with context, for the usage-error paths that need to
// propagate through normal Go error handling (failed attach, unknown topic,
// bad glob pattern) rather than as a bare return code. Builder failures
// are reported as BuildError instead.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// usageError reports a caller mistake at attach/lookup time (bad name,
// unknown topic, stale region handle) using the runtime Code taxonomy's
// generic CodeError, distinct from BuildErrorKind's InvalidArgs which
// governs the input validation of Create, CreateInMemory and Validate
// instead.
func usageError(op string, err error) *Error {
	return newError(op, CodeError, err)
}

// BuildErrorKind enumerates the fatal builder conditions (spec.md §4.1
// "Errors"). These are distinct from the runtime Code taxonomy above,
// which governs publish/consume, not construction.
//
// Create does not produce ResizeFailed or MapFailed: every failure of
// shm.Create, including a failed resize or mmap, is reported as
// CreateFailed.
type BuildErrorKind int

const (
	InvalidArgs BuildErrorKind = iota
	CreateFailed
	ResizeFailed
	MapFailed
	OutOfRegion
)

func (k BuildErrorKind) String() string {
	switch k {
	case InvalidArgs:
		return "invalid-args"
	case CreateFailed:
		return "create-failed"
	case ResizeFailed:
		return "resize-failed"
	case MapFailed:
		return "map-failed"
	case OutOfRegion:
		return "out-of-region"
	default:
		return fmt.Sprintf("build-error(%d)", int(k))
	}
}

// BuildError reports a fatal builder condition. On any BuildError the
// region has already been unlinked and is not left half-initialized
// (spec.md §4.1, §7).
type BuildError struct {
	Kind BuildErrorKind
	Err  error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build region: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("build region: %s", e.Kind)
}

func (e *BuildError) Unwrap() error { return e.Err }

func newBuildError(kind BuildErrorKind, err error) *BuildError {
	return &BuildError{Kind: kind, Err: err}
}
