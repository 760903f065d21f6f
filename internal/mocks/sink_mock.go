package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockHeartbeatSink is a mock implementation of the HeartbeatSink interface
type MockHeartbeatSink struct {
	mock.Mock
}

func (m *MockHeartbeatSink) SendHeartbeat(ctx context.Context, id string, payload []byte) error {
	args := m.Called(ctx, id, payload)
	return args.Error(0)
}
