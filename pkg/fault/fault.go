package fault

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUniqueViolation     = errors.New("unique violation")
	ErrForeignKeyViolation = errors.New("restricted for deletion")

	ErrInvalidStructure  = errors.New("invalid structure")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
)

type ErrorType int

const (
	ErrClient ErrorType = iota
	ErrInternal
)

// Kind tells the caller how to react to a fault.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidStructure
	KindInvalidTransition
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidStructure:
		return "InvalidStructure"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

type Fault struct {
	Type    ErrorType
	Kind    Kind
	Message string
	// Subject identifies the offending record or node (version id, duplicate id...).
	Subject string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.typeString(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.typeString(), e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

// typeString returns a human-readable representation of the error type.
func (e *Fault) typeString() string {
	switch e.Type {
	case ErrClient:
		return "ClientError"
	case ErrInternal:
		return "InternalError"
	default:
		return "UnknownError"
	}
}

// NewClientError creates a new client error.
func NewClientError(msg string, err error) error {
	return &Fault{
		Type:    ErrClient,
		Message: msg,
		Err:     err,
	}
}

// NewInternalError creates a new internal server error.
func NewInternalError(msg string, err error) error {
	return &Fault{
		Type:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// NotFound reports a missing survey, version or session.
func NotFound(subject string, format string, args ...any) error {
	return &Fault{
		Type:    ErrClient,
		Kind:    KindNotFound,
		Message: fmt.Sprintf(format, args...),
		Subject: subject,
		Err:     ErrNotFound,
	}
}

// InvalidStructure reports the first offending node of a survey structure.
func InvalidStructure(subject string, msg string) error {
	return &Fault{
		Type:    ErrClient,
		Kind:    KindInvalidStructure,
		Message: msg,
		Subject: subject,
		Err:     ErrInvalidStructure,
	}
}

// InvalidTransition reports a lifecycle change that is not legal from the current status.
func InvalidTransition(subject string, format string, args ...any) error {
	return &Fault{
		Type:    ErrClient,
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf(format, args...),
		Subject: subject,
		Err:     ErrInvalidTransition,
	}
}

// Conflict reports a concurrent write that could not be resolved by retrying.
func Conflict(subject string, msg string, cause error) error {
	return &Fault{
		Type:    ErrInternal,
		Kind:    KindConflict,
		Message: msg,
		Subject: subject,
		Err:     errors.Join(ErrConflict, cause),
	}
}

// KindOf returns the kind of the first Fault in err's chain.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

// MessageOf returns the message meant for the caller, without the type prefix.
func MessageOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}

// IsClientError checks if an error is a client error.
func IsClientError(err error) bool {
	var ce *Fault
	if errors.As(err, &ce) {
		return ce.Type == ErrClient
	}
	return false
}

// IsInternalError checks if an error is an internal error.
func IsInternalError(err error) bool {
	var ce *Fault
	if errors.As(err, &ce) {
		return ce.Type == ErrInternal
	}
	return false
}
