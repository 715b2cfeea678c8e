package sheets

import (
	"context"
	"sync"

	"github.com/finmatch/finmatch/internal/model"
)

// MockWriter is a test double for the ReportWriter interface.
type MockWriter struct {
	mu       sync.Mutex
	WriteErr error
	Runs     []*model.Run
	Outcomes [][]model.MatchOutcome
}

// NewMockWriter creates a new mock report writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write records the call and returns the configured error.
func (m *MockWriter) Write(_ context.Context, run *model.Run, outcomes []model.MatchOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Runs = append(m.Runs, run)
	m.Outcomes = append(m.Outcomes, outcomes)
	return nil
}

// WriteCount returns the number of successful writes.
func (m *MockWriter) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Runs)
}
