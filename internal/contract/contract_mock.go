package contract

import (
	"context"
	"sync/atomic"

	"github.com/huangsam/subpulse/schema"
	"github.com/stretchr/testify/mock"
)

// MockEventSource is a mock implementation of EventSource for testing.
type MockEventSource struct {
	mock.Mock
	Calls atomic.Int64
}

var _ EventSource = &MockEventSource{} // Compile-time check

// FetchEvents implements the EventSource interface.
func (m *MockEventSource) FetchEvents(ctx context.Context, r schema.DateRange) ([]schema.RawEvent, error) {
	m.Calls.Add(1)
	args := m.Called(ctx, r)
	events, _ := args.Get(0).([]schema.RawEvent)
	return events, args.Error(1)
}
