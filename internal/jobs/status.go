// Package jobs runs harvest jobs in the background: queueing, subprocess
// execution, status tracking, and log streaming.
package jobs

import (
	"context"
	"sync"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// MemoryStatusStore keeps job status objects in a map. Suitable for a single
// server process, which is the deployment shape the orchestrator assumes.
type MemoryStatusStore struct {
	mu     sync.RWMutex
	status map[string]harvest.JobStatus
}

// NewMemoryStatusStore constructs an empty status store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{status: make(map[string]harvest.JobStatus)}
}

// Set stores the status for a job id, replacing any previous value.
func (s *MemoryStatusStore) Set(_ context.Context, jobID string, status harvest.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[jobID] = status
	return nil
}

// Get returns the status for a job id. Unknown ids report JobStateUnknown
// rather than an error, since pollers may race the enqueue.
func (s *MemoryStatusStore) Get(_ context.Context, jobID string) (harvest.JobStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[jobID]
	if !ok {
		return harvest.JobStatus{State: harvest.JobStateUnknown}, nil
	}
	return st, nil
}
