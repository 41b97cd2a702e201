// Package enginerr implements the error taxonomy of §7: every operation
// the engine exposes at its public boundary fails with one of these
// sentinel kinds, checkable with errors.Is. Internal plumbing wraps the
// underlying cause with github.com/juju/errors so a stack trace survives
// across MTR/B+tree/WAL/recovery call chains; the sentinel is attached at
// the boundary with Wrap so both survive together.
package enginerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error per the §7 taxonomy.
type Kind int

const (
	KindTransient Kind = iota
	KindLogical
	KindResource
	KindDurability
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindLogical:
		return "logical"
	case KindResource:
		return "resource"
	case KindDurability:
		return "durability"
	default:
		return "internal"
	}
}

// sentinel is a taxonomy leaf: a stable identity usable with errors.Is,
// carrying its Kind so callers can branch on retriability without a type
// switch over every leaf.
type sentinel struct {
	kind Kind
	msg  string
}

func (s *sentinel) Error() string { return s.msg }

// Sentinels, one per §7 leaf.
var (
	ErrLockWaitTimeout     error = &sentinel{KindTransient, "lock wait timeout"}
	ErrDeadlock            error = &sentinel{KindTransient, "deadlock: transaction chosen as victim"}
	ErrDuplicateKey        error = &sentinel{KindLogical, "duplicate key"}
	ErrRowNotFound         error = &sentinel{KindLogical, "row not found"}
	ErrNoReferencedRow     error = &sentinel{KindLogical, "no referenced row"}
	ErrConstraintViolation error = &sentinel{KindLogical, "constraint violation"}
	ErrSchemaError         error = &sentinel{KindLogical, "schema error"}
	ErrInvalidInput        error = &sentinel{KindLogical, "invalid input"}
	ErrOutOfMemory         error = &sentinel{KindResource, "out of memory"}
	ErrOutOfFileSpace      error = &sentinel{KindResource, "out of file space"}
	ErrOutOfDiskSpace      error = &sentinel{KindResource, "out of disk space"}
	ErrPageCorruption      error = &sentinel{KindDurability, "page corruption"}
	ErrLogCorruption       error = &sentinel{KindDurability, "log corruption"}
	ErrIOError             error = &sentinel{KindDurability, "io error"}
	ErrEngineShut          error = &sentinel{KindDurability, "engine shut down after fatal error"}
	ErrSpaceMissing        error = &sentinel{KindDurability, "tablespace file missing, space tombstoned"}
	ErrInvalidTrxState     error = &sentinel{KindLogical, "invalid transaction state for requested operation"}
)

// wrapped pairs a sentinel with the underlying traced cause so Error()
// keeps the detail while errors.Is(err, ErrX) still works.
type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string { return fmt.Sprintf("%s: %v", w.sentinel.Error(), w.cause) }
func (w *wrapped) Unwrap() error { return w.sentinel }
func (w *wrapped) Cause() error  { return w.cause }

// Wrap attaches a taxonomy sentinel to an internal (juju/errors-traced)
// cause, for use at a subsystem's public boundary.
func Wrap(sentinelErr, cause error) error {
	if cause == nil {
		return nil
	}
	return &wrapped{sentinel: sentinelErr, cause: cause}
}

// KindOf classifies err per the taxonomy; unrecognized errors are Internal.
func KindOf(err error) Kind {
	for _, s := range []struct {
		err  error
		kind Kind
	}{
		{ErrLockWaitTimeout, KindTransient}, {ErrDeadlock, KindTransient},
		{ErrDuplicateKey, KindLogical}, {ErrRowNotFound, KindLogical},
		{ErrNoReferencedRow, KindLogical}, {ErrConstraintViolation, KindLogical},
		{ErrSchemaError, KindLogical}, {ErrInvalidInput, KindLogical}, {ErrInvalidTrxState, KindLogical},
		{ErrOutOfMemory, KindResource}, {ErrOutOfFileSpace, KindResource}, {ErrOutOfDiskSpace, KindResource},
		{ErrPageCorruption, KindDurability}, {ErrLogCorruption, KindDurability},
		{ErrIOError, KindDurability}, {ErrEngineShut, KindDurability}, {ErrSpaceMissing, KindDurability},
	} {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// Retriable reports whether the caller may simply retry the operation.
func Retriable(err error) bool { return KindOf(err) == KindTransient }

// Fatal reports whether err should mark the engine instance unhealthy.
func Fatal(err error) bool { return KindOf(err) == KindDurability }
