package domain

type ErrorKind string

const (
	KindInvalidRange        ErrorKind = "invalid_range"
	KindOverlapsExisting    ErrorKind = "overlaps_existing"
	KindSlotUnavailable     ErrorKind = "slot_unavailable"
	KindOutsideAvailability ErrorKind = "outside_availability"
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindStorageUnavailable  ErrorKind = "storage_unavailable"
)

// Error is the typed result of every failed scheduling operation.
// errors.Is matches on Kind, so callers compare against the Err* values below.
type Error struct {
	Kind ErrorKind
	msg  string
	err  error
}

var (
	ErrInvalidRange        = &Error{Kind: KindInvalidRange}
	ErrOverlapsExisting    = &Error{Kind: KindOverlapsExisting}
	ErrSlotUnavailable     = &Error{Kind: KindSlotUnavailable}
	ErrOutsideAvailability = &Error{Kind: KindOutsideAvailability}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable}
)

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	msg := e.msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.err != nil {
		return msg + ": " + e.err.Error()
	}
	return msg
}

// Message is the caller-facing text without the wrapped cause.
func (e *Error) Message() string {
	if e.msg == "" {
		return string(e.Kind)
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func invalidRange(msg string) error {
	return NewError(KindInvalidRange, msg)
}
