package workflow

import (
	"fmt"
	"sync"
)

// Store persists workflow records and conversation snapshots. Implementations
// must be safe for concurrent use.
type Store interface {
	// SaveWorkflow persists a workflow record, replacing any prior version.
	SaveWorkflow(w *Workflow) error
	// LoadWorkflow retrieves a workflow by ID. Returns ErrWorkflowNotFound
	// when no record exists.
	LoadWorkflow(id string) (*Workflow, error)
	// ListWorkflows returns all persisted workflows in unspecified order.
	ListWorkflows() ([]*Workflow, error)
	// SaveConversation persists an engine state snapshot for a workflow.
	SaveConversation(workflowID string, snapshot []byte) error
	// LoadConversation retrieves the engine snapshot, nil when absent.
	LoadConversation(workflowID string) ([]byte, error)
	// DeleteConversation removes the engine snapshot for a workflow.
	DeleteConversation(workflowID string) error
}

// MemoryStore is an in-process Store. Suitable for tests and single-node
// runs without durability requirements.
type MemoryStore struct {
	mu            sync.RWMutex
	workflows     map[string]*Workflow
	conversations map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:     make(map[string]*Workflow),
		conversations: make(map[string][]byte),
	}
}

// SaveWorkflow stores a copy of the workflow record.
func (s *MemoryStore) SaveWorkflow(w *Workflow) error {
	if w.ID == "" {
		return fmt.Errorf("workflow ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w.clone()
	return nil
}

// LoadWorkflow retrieves a copy of the workflow record.
func (s *MemoryStore) LoadWorkflow(id string) (*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return w.clone(), nil
}

// ListWorkflows returns copies of all stored workflows.
func (s *MemoryStore) ListWorkflows() ([]*Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, w.clone())
	}
	return out, nil
}

// SaveConversation stores an engine snapshot keyed by workflow ID.
func (s *MemoryStore) SaveConversation(workflowID string, snapshot []byte) error {
	if workflowID == "" {
		return fmt.Errorf("workflow ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[workflowID] = append([]byte(nil), snapshot...)
	return nil
}

// LoadConversation returns the stored engine snapshot, or nil.
func (s *MemoryStore) LoadConversation(workflowID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.conversations[workflowID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), snap...), nil
}

// DeleteConversation removes the engine snapshot for a workflow.
func (s *MemoryStore) DeleteConversation(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, workflowID)
	return nil
}
