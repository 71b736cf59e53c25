package domain

import (
	"fmt"
	"strconv"
	"sync"
)

// ActiveMutantSelector decides which mutant an instrumented artifact runs.
// At most one mutant is active at a time; zero means the baseline. The
// selection reaches the test process through Environ.
type ActiveMutantSelector struct {
	mu     sync.Mutex
	active uint
}

// NewActiveMutantSelector returns a selector at the baseline.
func NewActiveMutantSelector() *ActiveMutantSelector {
	return &ActiveMutantSelector{}
}

// Activate makes id the active mutant. It fails while another mutant is active.
func (s *ActiveMutantSelector) Activate(id uint) error {
	if id == 0 {
		return ErrInvalidMutantID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != 0 {
		return fmt.Errorf("%w: %d", ErrSelectorBusy, s.active)
	}

	s.active = id

	return nil
}

// Clear returns the selector to the baseline.
func (s *ActiveMutantSelector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = 0
}

// Active returns the active mutant id, or zero.
func (s *ActiveMutantSelector) Active() uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Environ returns the environment entry that carries the selection to a test process.
func (s *ActiveMutantSelector) Environ() []string {
	active := s.Active()
	if active == 0 {
		return []string{ActiveMutantEnv + "="}
	}

	return []string{ActiveMutantEnv + "=" + strconv.FormatUint(uint64(active), 10)}
}
