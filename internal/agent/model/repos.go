package model

import "context"

// UserProfile is the persisted user record behind UserContext.
type UserProfile struct {
	UserID          string      `json:"user_id"`
	Name            string      `json:"name"`
	PurchaseHistory []Purchase  `json:"purchase_history"`
	Preferences     Preferences `json:"preferences"`
	Interests       []string    `json:"interests,omitempty"`
	CreatedAt       string      `json:"created_at"`
}

// PreferenceUpdate carries the non-empty preference fields to persist.
type PreferenceUpdate struct {
	Size          string   `json:"size,omitempty"`
	FavoriteColor string   `json:"favorite_color,omitempty"`
	Style         string   `json:"style,omitempty"`
	BudgetRange   string   `json:"budget_range,omitempty"`
	Interests     []string `json:"interests,omitempty"`
}

func (u PreferenceUpdate) Empty() bool {
	return u.Size == "" && u.FavoriteColor == "" && u.Style == "" &&
		u.BudgetRange == "" && len(u.Interests) == 0
}

// CheckpointStore persists the ConversationState between turns. Load returns
// errx.ErrNotFound for unknown conversations.
type CheckpointStore interface {
	Load(ctx context.Context, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
}

// EscalationStore persists escalation requests for the supervisor dashboard.
// Saving is durable independent of the checkpoint path.
type EscalationStore interface {
	Save(ctx context.Context, escalation *EscalationRequest) error
	UpdateStatus(ctx context.Context, id string, status EscalationStatus, supervisorResponse string) error
	ListByStatus(ctx context.Context, status EscalationStatus, limit int) ([]*EscalationRequest, error)
}

// ProfileStore loads and updates user profiles.
type ProfileStore interface {
	// Get returns errx.ErrNotFound when no profile exists for the id.
	Get(ctx context.Context, userID string) (*UserProfile, error)
	Create(ctx context.Context, profile *UserProfile) error
	UpdatePreferences(ctx context.Context, userID string, update PreferenceUpdate) error
}
