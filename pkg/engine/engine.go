// Package engine is the boundary to the external reduction engine that owns
// every pixel-level algorithm.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidCall = errors.New("invalid engine call")

// Engine runs reduction tasks. Implementations must not keep state between calls.
type Engine interface {
	// Invoke runs one task and blocks until the engine returns.
	Invoke(ctx context.Context, call Call) error

	// Header reads one keyword from an image header.
	Header(ctx context.Context, image, keyword string) (string, error)
}

// Call is one engine task invocation.
type Call struct {
	Task    string `validate:"required"`
	Args    []string
	Params  Params
	Subject string
}

// CommandLine renders the call as task, positional args, then key=value options.
func (c Call) CommandLine() []string {
	out := make([]string, 0, 1+len(c.Args))
	out = append(out, c.Task)
	out = append(out, c.Args...)
	return append(out, c.Params.Strings()...)
}

func (c Call) String() string {
	return strings.Join(c.CommandLine(), " ")
}

// InvocationError reports an engine call that failed or exited non-zero.
type InvocationError struct {
	Task    string
	Subject string
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("engine task %s failed for %s: %v", e.Task, e.Subject, e.Err)
	}
	return fmt.Sprintf("engine task %s failed: %v", e.Task, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Validator checks calls before they reach the engine.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Check(call Call) error {
	err := v.validate.Struct(call)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidCall, call.Task, strings.Join(fields, ", "))
	}

	return fmt.Errorf("%w: %s: %v", ErrInvalidCall, call.Task, err)
}
