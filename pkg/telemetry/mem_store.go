package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-process Store used by tests and local development. It
// mirrors the per-process write serialization a Cosmos-backed store needs
// without requiring a live container.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*ProcessRecord
	locks   map[string]*sync.Mutex
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]*ProcessRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemStore) lockFor(processID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[processID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[processID] = l
	}
	return l
}

func (s *MemStore) recordFor(processID string) *ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[processID]
	if !ok {
		r = &ProcessRecord{ProcessID: processID}
		s.records[processID] = r
	}
	return r
}

func (s *MemStore) append(ctx context.Context, processID string, entry ActivityEntry) error {
	lock := s.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	record := s.recordFor(processID)
	entry.Timestamp = now()
	record.Activity = appendBounded(record.Activity, entry)
	record.LastUpdated = entry.Timestamp
	return nil
}

func (s *MemStore) MarkAgentActive(ctx context.Context, processID, agentName string) error {
	return s.append(ctx, processID, ActivityEntry{AgentName: agentName, Kind: ActivityAgentActive, Detail: "agent became active"})
}

func (s *MemStore) TrackToolUsage(ctx context.Context, processID, agentName, toolCategory, toolAction, details string) error {
	return s.append(ctx, processID, ActivityEntry{
		AgentName: agentName,
		Kind:      ActivityToolUsage,
		Detail:    fmt.Sprintf("%s/%s: %s", toolCategory, toolAction, details),
	})
}

func (s *MemStore) RecordPhaseTransition(ctx context.Context, processID, phase, status string) error {
	lock := s.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	record := s.recordFor(processID)
	record.Phase = phase
	record.Status = status
	ts := now()
	record.LastUpdated = ts
	record.Activity = appendBounded(record.Activity, ActivityEntry{
		Kind: ActivityPhaseTransition, Detail: fmt.Sprintf("phase=%s status=%s", phase, status), Timestamp: ts,
	})
	return nil
}

func (s *MemStore) RecordTermination(ctx context.Context, processID, reason string) error {
	return s.append(ctx, processID, ActivityEntry{Kind: ActivityTermination, Detail: reason})
}

func (s *MemStore) RecordPhaseOutput(ctx context.Context, processID, phase, outputJSON string) error {
	lock := s.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	record := s.recordFor(processID)
	if record.PhaseOutputs == nil {
		record.PhaseOutputs = make(map[string]string)
	}
	record.PhaseOutputs[phase] = outputJSON
	record.LastUpdated = now()
	return nil
}

func (s *MemStore) Get(ctx context.Context, processID string) (*ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[processID]
	if !ok {
		return nil, fmt.Errorf("no telemetry record for process %s", processID)
	}
	cp := *r
	cp.Activity = append([]ActivityEntry{}, r.Activity...)
	if r.PhaseOutputs != nil {
		cp.PhaseOutputs = make(map[string]string, len(r.PhaseOutputs))
		for k, v := range r.PhaseOutputs {
			cp.PhaseOutputs[k] = v
		}
	}
	return &cp, nil
}

func now() time.Time { return time.Now().UTC() }
