// Package display forwards image inspection requests to the engine's viewer.
// A display failure never changes pipeline state, so callers receive a
// Result to log instead of an error to propagate.
package display

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/ifured/pkg/engine"
)

// Result is the outcome of one display request.
type Result struct {
	Image string
	Err   error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// DisplayError wraps a viewer failure.
type DisplayError struct {
	Image string
	Err   error
}

func (e *DisplayError) Error() string {
	return fmt.Sprintf("display %s: %v", e.Image, e.Err)
}

func (e *DisplayError) Unwrap() error {
	return e.Err
}

// Display shows reduction products.
type Display interface {
	Image(ctx context.Context, image string) Result
	IFU(ctx context.Context, image string, version string) Result
	Examine(ctx context.Context, image string) Result
}

// EngineDisplay uses the engine's display tasks.
type EngineDisplay struct {
	engine engine.Engine
	frame  string
}

func NewEngineDisplay(eng engine.Engine) *EngineDisplay {
	return &EngineDisplay{engine: eng, frame: "1"}
}

func (d *EngineDisplay) Image(ctx context.Context, image string) Result {
	return d.invoke(ctx, image, engine.Call{
		Task:   "gdisplay",
		Args:   []string{image, d.frame},
		Params: engine.Params{Paste: engine.No},
	})
}

func (d *EngineDisplay) IFU(ctx context.Context, image string, version string) Result {
	return d.invoke(ctx, image, engine.Call{
		Task:   "gfdisplay",
		Args:   []string{image, d.frame},
		Params: engine.Params{Version: version},
	})
}

func (d *EngineDisplay) Examine(ctx context.Context, image string) Result {
	return d.invoke(ctx, image, engine.Call{
		Task: "imexamine",
		Args: []string{image, d.frame},
	})
}

func (d *EngineDisplay) invoke(ctx context.Context, image string, call engine.Call) Result {
	call.Subject = image
	if err := d.engine.Invoke(ctx, call); err != nil {
		return Result{Image: image, Err: &DisplayError{Image: image, Err: err}}
	}
	return Result{Image: image}
}

// Disabled is used for batch runs without a viewer.
type Disabled struct{}

func (Disabled) Image(_ context.Context, image string) Result { return Result{Image: image} }

func (Disabled) IFU(_ context.Context, image string, _ string) Result { return Result{Image: image} }

func (Disabled) Examine(_ context.Context, image string) Result { return Result{Image: image} }

// Log records a failed result at warn level and reports whether it succeeded.
func Log(ctx context.Context, logger *slog.Logger, result Result) bool {
	if result.OK() {
		return true
	}
	logger.WarnContext(ctx, "Problem displaying image", "image", result.Image, "error", result.Err)
	return false
}
