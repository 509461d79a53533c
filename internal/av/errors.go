package av

import (
	"context"
	"errors"
	"fmt"
)

// ErrNeedMoreInput is returned by ReceiveFrame and ReceivePacket when the
// codec cannot produce output until it is fed again.
var ErrNeedMoreInput = errors.New("need more input")

// Kind classifies a failure.
type Kind int

const (
	// KindFramework is a failure reported by the media framework.
	KindFramework Kind = iota
	// KindResource is an allocation or I/O exhaustion failure.
	KindResource
	// KindPolicy is a refusal decided by this program (no audio stream,
	// unsupported sample rate, output exists).
	KindPolicy
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindPolicy:
		return "policy"
	default:
		return "framework"
	}
}

// Error is a classified failure. Code carries the framework's numeric
// error when Kind is KindFramework.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindFramework && e.Code != 0 {
		return fmt.Sprintf("%s: %v (code %d)", e.Op, e.Err, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Resource wraps err as a resource exhaustion failure.
func Resource(op string, err error) error {
	return &Error{Kind: KindResource, Op: op, Err: err}
}

// FrameworkError wraps err as a framework failure with its numeric code.
func FrameworkError(op string, code int, err error) error {
	return &Error{Kind: KindFramework, Op: op, Code: code, Err: err}
}

// Policy wraps err as a policy refusal.
func Policy(op string, err error) error {
	return &Error{Kind: KindPolicy, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are treated as framework failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFramework
}

// IsPolicy reports whether err is a policy refusal.
func IsPolicy(err error) bool {
	return err != nil && KindOf(err) == KindPolicy
}

// Status returns the job status label for err: "success", "canceled", or
// "error_" followed by the error's kind.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error_" + KindOf(err).String()
	}
}
