package model

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystem     Role = "system"
	RoleSupervisor Role = "supervisor"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

func SupervisorMessage(content string, metadata map[string]any) Message {
	return Message{Role: RoleSupervisor, Content: content, Timestamp: time.Now().UTC(), Metadata: metadata}
}

// Purchase is a single entry in a user's purchase history.
type Purchase struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Preferences are the durable, extracted user preferences.
type Preferences struct {
	Tone          string `json:"tone,omitempty"`
	Size          string `json:"size,omitempty"`
	FavoriteColor string `json:"favorite_color,omitempty"`
	Style         string `json:"style,omitempty"`
	BudgetRange   string `json:"budget_range,omitempty"`
}

// UserContext is the personalization snapshot loaded by the context stage.
// It is read-only for every stage downstream of it.
type UserContext struct {
	UserID          string      `json:"user_id"`
	Name            string      `json:"name"`
	PurchaseHistory []Purchase  `json:"purchase_history,omitempty"`
	Preferences     Preferences `json:"preferences"`
	Tone            string      `json:"tone"`
}

// AgentReasoning is one entry of the rolling audit trace.
type AgentReasoning struct {
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Reasoning string         `json:"reasoning"`
	Timestamp time.Time      `json:"timestamp"`
	Result    map[string]any `json:"result,omitempty"`
}

func NewReasoning(agent, action, reasoning string, result map[string]any) AgentReasoning {
	return AgentReasoning{
		Agent:     agent,
		Action:    action,
		Reasoning: reasoning,
		Timestamp: time.Now().UTC(),
		Result:    result,
	}
}

// Classification is the per-turn safety verdict.
type Classification string

const (
	ClassificationSafe    Classification = "SAFE"
	ClassificationUnsafe  Classification = "UNSAFE"
	ClassificationPending Classification = "PENDING"
)

// Intent selects the specialized agent for a turn.
type Intent string

const (
	IntentSales            Intent = "sales"
	IntentReverseLogistics Intent = "reverse_logistics"
)

// Stage is the inferred phase of the sales funnel.
type Stage string

const (
	StageDiscovery    Stage = "discovery"
	StageProposal     Stage = "proposal"
	StageOptimization Stage = "optimization"
	StageCommitment   Stage = "commitment"
	StageCheckout     Stage = "checkout"
	StageCompleted    Stage = "completed"
)

var stageOrder = []Stage{
	StageDiscovery,
	StageProposal,
	StageOptimization,
	StageCommitment,
	StageCheckout,
	StageCompleted,
}

// Index returns the position of the stage in the funnel, or 0 for unknown values.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// GuardStage applies the regression rule: a detected stage may advance the
// funnel freely but may only fall back one position relative to current.
func GuardStage(current, detected Stage) Stage {
	if detected == "" {
		if current == "" {
			return StageDiscovery
		}
		return current
	}
	if current == "" {
		return detected
	}
	if detected.Index() >= current.Index()-1 {
		return detected
	}
	return current
}

// EscalationStatus is the lifecycle state of an escalation request.
type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationApproved  EscalationStatus = "approved"
	EscalationRewritten EscalationStatus = "rewritten"
	EscalationRejected  EscalationStatus = "rejected"
)

// EscalationRequest asks a human supervisor to take over a conversation.
type EscalationRequest struct {
	ID                 string           `json:"id"`
	ConversationID     string           `json:"conversation_id"`
	Reason             string           `json:"reason"`
	Category           string           `json:"category"`
	OriginalMessage    string           `json:"original_message"`
	Status             EscalationStatus `json:"status"`
	SupervisorResponse string           `json:"supervisor_response,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// CartItem is the state-side view of one reservation. The reservation ledger
// is the source of truth; the cart is refreshed from it after agent turns.
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// ConversationState is the checkpointed record carried between turns.
// It is owned by the graph router and mutated only through Delta merges.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`

	Messages []Message `json:"messages"`
	// Messages evicted from the bounded window, held until the memory
	// optimizer folds them into CompressedHistory. Never user-visible.
	PendingCompression []Message `json:"pending_compression,omitempty"`

	UserContext    *UserContext     `json:"user_context,omitempty"`
	ReasoningTrace []AgentReasoning `json:"reasoning_trace"`

	Classification Classification `json:"classification"`
	Intent         Intent         `json:"intent,omitempty"`

	Stage             Stage `json:"conversation_stage"`
	StageMessageCount int   `json:"stage_message_count"`
	HesitationSignals int   `json:"hesitation_signals"`
	ProductsAdded     int   `json:"products_added_to_cart"`
	ProductsRemoved   int   `json:"products_removed_from_cart"`
	ProductsShown     int   `json:"total_products_shown"`

	Escalation    *EscalationRequest `json:"escalation,omitempty"`
	RequiresHuman bool               `json:"requires_human"`

	Cart []CartItem `json:"cart"`

	MessageCount      int    `json:"message_count"`
	CompressedHistory string `json:"compressed_history,omitempty"`

	CurrentNode string `json:"current_node"`
	NextNode    string `json:"next_node,omitempty"`
}

func NewConversationState(conversationID, userID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Messages:       []Message{},
		ReasoningTrace: []AgentReasoning{},
		Classification: ClassificationPending,
		Stage:          StageDiscovery,
		Cart:           []CartItem{},
		UserContext:    &UserContext{UserID: userID},
		CurrentNode:    "start",
	}
}

// LastUserMessage returns the content of the most recent user message,
// or "" if none exists.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// LastReply returns the most recent assistant- or supervisor-authored content.
func (s *ConversationState) LastReply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		switch s.Messages[i].Role {
		case RoleAssistant, RoleSupervisor:
			return s.Messages[i].Content
		}
	}
	return ""
}

// OpenEscalation reports whether the conversation has a pending escalation.
func (s *ConversationState) OpenEscalation() bool {
	return s.Escalation != nil && s.Escalation.Status == EscalationPending
}
