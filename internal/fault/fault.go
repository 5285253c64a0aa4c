// Package fault defines the error kinds shared by the trait engine. Every
// fatal condition surfaces as a *Error wrapping one of the sentinel kinds so
// callers can classify it with errors.Is and report it with its context.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds.
var (
	// ErrConfig indicates malformed or self-contradictory input.
	ErrConfig = errors.New("config error")
	// ErrConstraint indicates a declared rule would empty an allowed set or
	// conflicts with an existing forced pairing.
	ErrConstraint = errors.New("constraint error")
	// ErrCapacity indicates reconciliation or the uniqueness search could not
	// converge within the retry budget.
	ErrCapacity = errors.New("capacity error")
	// ErrInvariant indicates generation reached an impossible state, such as a
	// layer with zero candidate weight. It points at a bookkeeping bug.
	ErrInvariant = errors.New("generation invariant violation")
)

// Error carries the diagnostic context of a fatal condition. Zero-valued
// fields are omitted from the message; Config, Layer and Rule use -1 for unset.
type Error struct {
	Kind   error  // one of the sentinel kinds
	Field  string // offending input field, if any
	Config int
	Layer  string
	Trait  string
	Rule   int
	Size   int // collection or configuration size, for capacity errors
	Err    error
}

// Error returns a human-readable message including all known context.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	var ctx []string
	if e.Config >= 0 {
		ctx = append(ctx, fmt.Sprintf("configuration %d", e.Config))
	}
	if e.Layer != "" {
		ctx = append(ctx, "layer "+e.Layer)
	}
	if e.Trait != "" {
		ctx = append(ctx, "trait "+e.Trait)
	}
	if e.Rule >= 0 {
		ctx = append(ctx, fmt.Sprintf("rule %d", e.Rule))
	}
	if e.Field != "" {
		ctx = append(ctx, "field "+e.Field)
	}
	if e.Size > 0 {
		ctx = append(ctx, fmt.Sprintf("size %d", e.Size))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Option decorates an Error with context.
type Option func(*Error)

// Field records the offending input field.
func Field(name string) Option { return func(e *Error) { e.Field = name } }

// Config records the configuration index.
func Config(idx int) Option { return func(e *Error) { e.Config = idx } }

// Layer records the layer name.
func Layer(name string) Option { return func(e *Error) { e.Layer = name } }

// Trait records the trait name.
func Trait(name string) Option { return func(e *Error) { e.Trait = name } }

// Rule records the rule declaration index.
func Rule(idx int) Option { return func(e *Error) { e.Rule = idx } }

// Size records the collection or configuration size.
func Size(n int) Option { return func(e *Error) { e.Size = n } }

func newError(kind error, format string, args []any, opts []Option) *Error {
	e := &Error{Kind: kind, Config: -1, Rule: -1, Err: fmt.Errorf(format, args...)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configf builds an ErrConfig error.
func Configf(opts []Option, format string, args ...any) *Error {
	return newError(ErrConfig, format, args, opts)
}

// Constraintf builds an ErrConstraint error.
func Constraintf(opts []Option, format string, args ...any) *Error {
	return newError(ErrConstraint, format, args, opts)
}

// Capacityf builds an ErrCapacity error.
func Capacityf(opts []Option, format string, args ...any) *Error {
	return newError(ErrCapacity, format, args, opts)
}

// Invariantf builds an ErrInvariant error.
func Invariantf(opts []Option, format string, args ...any) *Error {
	return newError(ErrInvariant, format, args, opts)
}

// With is a small helper for building option lists inline.
func With(opts ...Option) []Option { return opts }

// Annotate adds context to err when it wraps an *Error, leaving its kind
// intact. Other errors are returned unchanged.
func Annotate(err error, opts ...Option) error {
	var fe *Error
	if errors.As(err, &fe) {
		for _, opt := range opts {
			opt(fe)
		}
	}
	return err
}

// Split returns the errors joined into err by errors.Join, or err alone.
// A single *Error is never split into its kind and cause.
func Split(err error) []error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return []error{err}
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
