package mocks

import (
	"time"

	"github.com/benmeehan/irc-conntrack/internal/constants"
	"github.com/benmeehan/irc-conntrack/internal/models"
	"github.com/benmeehan/irc-conntrack/pkg/heartbeat"
	"github.com/stretchr/testify/mock"
)

// MockConnectionTracker is a mock implementation of the ConnectionTracker interface
type MockConnectionTracker struct {
	mock.Mock
}

func (m *MockConnectionTracker) Register(id string, now time.Time) error {
	args := m.Called(id, now)
	return args.Error(0)
}

func (m *MockConnectionTracker) Heartbeat(id string, msg heartbeat.Message, now time.Time) error {
	args := m.Called(id, msg, now)
	return args.Error(0)
}

func (m *MockConnectionTracker) Evict(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockConnectionTracker) Status(id string) (models.TrackedConnection, error) {
	args := m.Called(id)
	return args.Get(0).(models.TrackedConnection), args.Error(1)
}

func (m *MockConnectionTracker) List(filter ...constants.ConnectionStatus) []models.TrackedConnection {
	args := m.Called(filter)
	return args.Get(0).([]models.TrackedConnection)
}

func (m *MockConnectionTracker) Sweep(now time.Time, staleAfter, evictAfter time.Duration) int {
	args := m.Called(now, staleAfter, evictAfter)
	return args.Int(0)
}

func (m *MockConnectionTracker) Counts() map[constants.ConnectionStatus]int {
	args := m.Called()
	return args.Get(0).(map[constants.ConnectionStatus]int)
}

func (m *MockConnectionTracker) Len() int {
	args := m.Called()
	return args.Int(0)
}
