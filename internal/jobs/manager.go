package jobs

import (
	"errors"
	"fmt"
	"sync"

	"media-converter/internal/domain"
)

// ErrRunAlreadyActive is returned when starting a second active run.
var ErrRunAlreadyActive = errors.New("queue run already active")

// ErrNoActiveRun is returned when cancel is requested for idle state.
var ErrNoActiveRun = errors.New("no active queue run")

// Manager tracks the single allowed active run, its token and counters.
type Manager struct {
	mu      sync.RWMutex
	current domain.Run
	token   *CancelToken
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Run{
			Status: domain.RunStatusIdle,
		},
	}
}

// Start registers a new run and returns its fresh cancellation token.
func (m *Manager) Start(runID string, total int) (*CancelToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Status == domain.RunStatusRunning {
		return nil, ErrRunAlreadyActive
	}

	m.token = NewCancelToken()
	m.current = domain.Run{
		ID:     runID,
		Status: domain.RunStatusRunning,
		Total:  total,
	}
	return m.token, nil
}

// Advance records how many jobs of the current run have finished.
func (m *Manager) Advance(processed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Status == domain.RunStatusRunning && processed > m.current.Processed {
		m.current.Processed = processed
	}
}

// Finish validates and applies the terminal transition for the current run.
func (m *Manager) Finish(status domain.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" {
		return fmt.Errorf("cannot finish without an active run")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current run.
func (m *Manager) Current() domain.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears run metadata and returns manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Run{Status: domain.RunStatusIdle}
	m.token = nil
}

// IsRunning reports whether a run is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Status == domain.RunStatusRunning
}

// Cancel sets the active run's token. The run status changes once the worker
// observes the token and finishes.
func (m *Manager) Cancel() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current.Status != domain.RunStatusRunning || m.token == nil {
		return ErrNoActiveRun
	}
	m.token.Cancel()
	return nil
}

// isValidTransition enforces the allowed run state machine edges.
func isValidTransition(from, to domain.RunStatus) bool {
	switch from {
	case domain.RunStatusIdle:
		return to == domain.RunStatusRunning
	case domain.RunStatusRunning:
		return to == domain.RunStatusCompleted || to == domain.RunStatusAborted || to == domain.RunStatusCancelled
	case domain.RunStatusCompleted, domain.RunStatusAborted, domain.RunStatusCancelled:
		return to == domain.RunStatusRunning || to == domain.RunStatusIdle
	default:
		return false
	}
}
