// Package errs holds the error taxonomy shared by routing, validation and rewriting.
package errs

import (
	"fmt"
	"github.com/pkg/errors"
)

// Sentinels, every typed error unwraps to one of them.
var (
	ErrValidation         = errors.New("validation failed")
	ErrRoute              = errors.New("route failed")
	ErrUnsupportedRewrite = errors.New("unsupported rewrite")
	ErrInvariantViolation = errors.New("internal invariant violation")
	ErrConfiguration      = errors.New("invalid configuration")
)

// ValidationError a structural constraint of the statement was violated, raised before routing
// or right after it.
type ValidationError struct {
	Operation string
	Target    string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("can not support operation `%s` with table `%s`", e.Operation, e.Target)
	}
	return fmt.Sprintf("%s `%s`: %s", e.Operation, e.Target, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RouteError no engine could resolve a target or a post-route invariant failed.
type RouteError struct {
	Message string
}

func (e *RouteError) Error() string {
	return "route error: " + e.Message
}

func (e *RouteError) Unwrap() error {
	return ErrRoute
}

// UnsupportedRewriteError the rewrite can not represent the requested semantics.
// Expression is the offending SQL fragment.
type UnsupportedRewriteError struct {
	Expression string
}

func (e *UnsupportedRewriteError) Error() string {
	return fmt.Sprintf("unsupported SQL for encrypt rewrite: `%s`", e.Expression)
}

func (e *UnsupportedRewriteError) Unwrap() error {
	return ErrUnsupportedRewrite
}

// InvariantViolation is a defect: overlapping tokens, an empty route context.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violated: " + e.Message
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

// NewValidation returns a ValidationError carrying a stack trace.
func NewValidation(operation, target, format string, args ...any) error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return errors.WithStack(&ValidationError{Operation: operation, Target: target, Message: msg})
}

// NewRoute returns a RouteError carrying a stack trace.
func NewRoute(format string, args ...any) error {
	return errors.WithStack(&RouteError{Message: fmt.Sprintf(format, args...)})
}

// NewUnsupportedRewrite returns an UnsupportedRewriteError carrying a stack trace.
func NewUnsupportedRewrite(expression string) error {
	return errors.WithStack(&UnsupportedRewriteError{Expression: expression})
}

// NewInvariant returns an InvariantViolation carrying a stack trace.
func NewInvariant(format string, args ...any) error {
	return errors.WithStack(&InvariantViolation{Message: fmt.Sprintf(format, args...)})
}

// NewConfiguration wraps ErrConfiguration with a message.
func NewConfiguration(format string, args ...any) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsRoute reports whether err is (or wraps) a route error.
func IsRoute(err error) bool {
	return errors.Is(err, ErrRoute)
}

// IsUnsupportedRewrite reports whether err is (or wraps) an unsupported rewrite error.
func IsUnsupportedRewrite(err error) bool {
	return errors.Is(err, ErrUnsupportedRewrite)
}

// IsInvariantViolation reports whether err is (or wraps) an invariant violation.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
