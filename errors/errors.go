// Package errors defines the error taxonomy returned across the store, wire
// and RPC boundaries (§7). It wraps github.com/cubefs/cubefs/blobstore/util/errors
// for cause-chain formatting so every boundary logs exactly one line with
// the full chain, the same way the teacher's master/* packages do.
package errors

import (
	"fmt"

	blobstore "github.com/cubefs/cubefs/blobstore/util/errors"
)

// Kind is the closed set of error categories from §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindIO
	KindNotFound
	KindAlreadyExists
	KindConstraint
	KindConflict
	KindSerialization
	KindMigrationFailed
	KindMalformed
	KindAuth
	KindUnsupported
	KindBind
	KindAccept
	KindTLS
	KindRegistrationDisabled
	KindIDExhausted
	KindQuotaUnreachable
	KindQuotaPartialPull
	KindShutdown
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "Config"
	case KindIO:
		return "IO"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindConstraint:
		return "ConstraintViolation"
	case KindConflict:
		return "Conflict"
	case KindSerialization:
		return "Serialization"
	case KindMigrationFailed:
		return "MigrationFailed"
	case KindMalformed:
		return "Malformed"
	case KindAuth:
		return "Auth"
	case KindUnsupported:
		return "Unsupported"
	case KindBind:
		return "Bind"
	case KindAccept:
		return "Accept"
	case KindTLS:
		return "Tls"
	case KindRegistrationDisabled:
		return "Disabled"
	case KindIDExhausted:
		return "IdExhausted"
	case KindQuotaUnreachable:
		return "Unreachable"
	case KindQuotaPartialPull:
		return "PartialPull"
	case KindShutdown:
		return "Shutdown"
	case KindBusy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// Error carries a Kind, the failing operation name, a human-readable
// message, and (optionally) the underlying cause for chain formatting.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with a human-readable message and no further cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches Op/Kind to an existing cause, preserving the chain.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf extracts the Kind of err, walking the Unwrap chain. Returns
// KindUnknown if err is nil or carries no *Error in its chain.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindUnknown
}

// Detail renders the full cause chain for the single ERROR log line a
// handler must emit (§7), reusing the teacher's blobstore error formatter.
func Detail(err error) string {
	return blobstore.Detail(err)
}

// Info attaches a formatted annotation to err without discarding its
// Kind/chain, mirroring the teacher's errors.Info(err, "...") idiom.
func Info(err error, msg string) error {
	return blobstore.Info(err, msg)
}

var (
	ErrBusy              = New(KindBusy, "store", "work queue is full")
	ErrNotFound          = New(KindNotFound, "store", "entity not found")
	ErrAliasConflict     = New(KindConflict, "store", "alias already exists")
	ErrRootPointerUnset  = New(KindConstraint, "store", "root inode pointer must reference exactly one target or group")
	ErrManagementProtect = New(KindConstraint, "store", "the management singleton cannot be deleted")
	ErrDefaultPoolProtect = New(KindConstraint, "store", "the default storage pool cannot be deleted")
	ErrRegistrationDisabled = New(KindRegistrationDisabled, "topology", "node registration is disabled")
	ErrIDExhausted       = New(KindIDExhausted, "topology", "no unused id remains in this namespace")
)
