// Package fault defines the error kinds a chain handler can abort with.
// Every handler error wraps exactly one of the sentinels below so callers can
// classify it with errors.Is.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrSlippage       = errors.New("slippage error")
	ErrArithmetic     = errors.New("arithmetic error")
	ErrNotFound       = errors.New("state not found")
)

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Authentication(format string, args ...any) error {
	return wrap(ErrAuthentication, format, args...)
}

func Slippage(format string, args ...any) error {
	return wrap(ErrSlippage, format, args...)
}

func Arithmetic(format string, args ...any) error {
	return wrap(ErrArithmetic, format, args...)
}

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns a stable label for err, used for metrics and API responses.
// Errors that wrap none of the sentinels are reported as "internal".
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrSlippage):
		return "slippage"
	case errors.Is(err, ErrArithmetic):
		return "arithmetic"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
