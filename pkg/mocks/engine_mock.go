package mocks

import (
	"context"

	"github.com/dukex/ifured/pkg/display"
	"github.com/dukex/ifured/pkg/engine"
	"github.com/stretchr/testify/mock"
)

// MockEngine is a mock implementation of engine.Engine interface.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Invoke(ctx context.Context, call engine.Call) error {
	args := m.Called(ctx, call)

	return args.Error(0)
}

func (m *MockEngine) Header(ctx context.Context, image, keyword string) (string, error) {
	args := m.Called(ctx, image, keyword)

	return args.String(0), args.Error(1)
}

// MockDisplay is a mock implementation of display.Display interface.
type MockDisplay struct {
	mock.Mock
}

func (m *MockDisplay) Image(ctx context.Context, image string) display.Result {
	args := m.Called(ctx, image)

	return args.Get(0).(display.Result)
}

func (m *MockDisplay) IFU(ctx context.Context, image string, version string) display.Result {
	args := m.Called(ctx, image, version)

	return args.Get(0).(display.Result)
}

func (m *MockDisplay) Examine(ctx context.Context, image string) display.Result {
	args := m.Called(ctx, image)

	return args.Get(0).(display.Result)
}
