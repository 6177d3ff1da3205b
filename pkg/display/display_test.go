package display_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/dukex/ifured/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEngineDisplay_IFU(t *testing.T) {
	eng := new(mocks.MockEngine)
	eng.On("Invoke", mock.Anything, mock.MatchedBy(func(call engine.Call) bool {
		version, _ := call.Params.Get("version")
		return call.Task == "gfdisplay" && call.Args[0] == "F1_resp" && version == "1"
	})).Return(nil)

	result := display.NewEngineDisplay(eng).IFU(context.Background(), "F1_resp", "1")

	assert.True(t, result.OK())
	eng.AssertExpectations(t)
}

func TestEngineDisplay_FailureIsAResult(t *testing.T) {
	eng := new(mocks.MockEngine)
	eng.On("Invoke", mock.Anything, mock.Anything).Return(errors.New("no display server"))

	result := display.NewEngineDisplay(eng).Image(context.Background(), "brgF1")

	require.False(t, result.OK())
	var displayErr *display.DisplayError
	require.ErrorAs(t, result.Err, &displayErr)
	assert.Equal(t, "brgF1", displayErr.Image)
	assert.Contains(t, result.Err.Error(), "no display server")
}

func TestEngineDisplay_Examine(t *testing.T) {
	eng := new(mocks.MockEngine)
	eng.On("Invoke", mock.Anything, mock.MatchedBy(func(call engine.Call) bool {
		return call.Task == "imexamine" && call.Args[0] == "brgF1[sci,2]"
	})).Return(nil)

	assert.True(t, display.NewEngineDisplay(eng).Examine(context.Background(), "brgF1[sci,2]").OK())
	eng.AssertExpectations(t)
}

func TestDisabled(t *testing.T) {
	var d display.Display = display.Disabled{}
	assert.True(t, d.Image(context.Background(), "x").OK())
	assert.True(t, d.IFU(context.Background(), "x", "1").OK())
	assert.True(t, d.Examine(context.Background(), "x").OK())
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.True(t, display.Log(context.Background(), logger, display.Result{Image: "ok"}))
	assert.Empty(t, buf.String())

	assert.False(t, display.Log(context.Background(), logger, display.Result{Image: "bad", Err: errors.New("boom")}))
	assert.Contains(t, buf.String(), "Problem displaying image")
	assert.Contains(t, buf.String(), "image=bad")
}
