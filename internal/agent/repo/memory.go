package repo

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/core/errx"
)

// In-memory store implementations. They satisfy the same interfaces as the
// Redis stores and back tests and dependency-free runs. Values are stored as
// JSON round-trips so shared mutable state cannot leak between callers.

type MemoryCheckpointStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{items: make(map[string][]byte)}
}

func (m *MemoryCheckpointStore) Load(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	m.mu.RLock()
	raw, ok := m.items[conversationID]
	m.mu.RUnlock()
	if !ok {
		return nil, errx.ErrNotFound
	}
	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (m *MemoryCheckpointStore) Save(ctx context.Context, state *model.ConversationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[state.ConversationID] = b
	m.mu.Unlock()
	return nil
}

type MemoryEscalationStore struct {
	mu    sync.RWMutex
	items map[string]*model.EscalationRequest
}

func NewMemoryEscalationStore() *MemoryEscalationStore {
	return &MemoryEscalationStore{items: make(map[string]*model.EscalationRequest)}
}

func (m *MemoryEscalationStore) Save(ctx context.Context, escalation *model.EscalationRequest) error {
	cp := *escalation
	m.mu.Lock()
	m.items[cp.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryEscalationStore) UpdateStatus(ctx context.Context, id string, status model.EscalationStatus, supervisorResponse string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	esc, ok := m.items[id]
	if !ok {
		return errx.ErrNotFound
	}
	esc.Status = status
	esc.UpdatedAt = time.Now().UTC()
	if supervisorResponse != "" {
		esc.SupervisorResponse = supervisorResponse
	}
	return nil
}

func (m *MemoryEscalationStore) ListByStatus(ctx context.Context, status model.EscalationStatus, limit int) ([]*model.EscalationRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.EscalationRequest
	for _, esc := range m.items {
		if esc.Status != status {
			continue
		}
		cp := *esc
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type MemoryProfileStore struct {
	mu    sync.RWMutex
	items map[string]*model.UserProfile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{items: make(map[string]*model.UserProfile)}
}

func (m *MemoryProfileStore) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.items[userID]
	if !ok {
		return nil, errx.ErrNotFound
	}
	cp := *profile
	return &cp, nil
}

func (m *MemoryProfileStore) Create(ctx context.Context, profile *model.UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[profile.UserID]; ok {
		return nil
	}
	cp := *profile
	m.items[profile.UserID] = &cp
	return nil
}

func (m *MemoryProfileStore) UpdatePreferences(ctx context.Context, userID string, update model.PreferenceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.items[userID]
	if !ok {
		return errx.ErrNotFound
	}
	if update.Size != "" {
		profile.Preferences.Size = update.Size
	}
	if update.FavoriteColor != "" {
		profile.Preferences.FavoriteColor = update.FavoriteColor
	}
	if update.Style != "" {
		profile.Preferences.Style = update.Style
	}
	if update.BudgetRange != "" {
		profile.Preferences.BudgetRange = update.BudgetRange
	}
	for _, interest := range update.Interests {
		if !containsString(profile.Interests, interest) {
			profile.Interests = append(profile.Interests, interest)
		}
	}
	return nil
}

var (
	_ model.CheckpointStore = (*MemoryCheckpointStore)(nil)
	_ model.EscalationStore = (*MemoryEscalationStore)(nil)
	_ model.ProfileStore    = (*MemoryProfileStore)(nil)
)
