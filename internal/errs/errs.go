// Package errs implements the error taxonomy used across the agent: a small
// set of sentinel kinds that call/registration state machines switch on to
// decide the next transition, instead of inspecting arbitrary error strings.
package errs

import "errors"

// Kind classifies an error into one of the taxonomy members. Kind values are
// compared with errors.Is against the Error wrapper below.
type Kind int

const (
	_ Kind = iota
	InvalidArgument
	NotSupported
	NotFound
	ProtocolViolation
	TransientIO
	FatalIO
	AuthRequired
	AuthFailed
	Timeout
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotSupported:
		return "not_supported"
	case NotFound:
		return "not_found"
	case ProtocolViolation:
		return "protocol_violation"
	case TransientIO:
		return "transient_io"
	case FatalIO:
		return "fatal_io"
	case AuthRequired:
		return "auth_required"
	case AuthFailed:
		return "auth_failed"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// E wraps an underlying cause with a taxonomy Kind and a short message.
type E struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *E) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.New(Kind, "")) match any *E with the same Kind,
// regardless of message or wrapped cause.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, msg string) error {
	return &E{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &E{Kind: kind, Msg: msg, Err: cause}
}

func Of(kind Kind) error { return &E{Kind: kind} }

// KindOf extracts the Kind of err, or zero Kind if err is not (or does not
// wrap) an *E.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
