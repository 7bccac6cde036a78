package model

import "context"

// SafetyVerdict is the result of the LLM classification tier.
type SafetyVerdict struct {
	Label  Classification `json:"label"`
	Reason string         `json:"reason"`
}

// Classifier is the second-opinion safety tier. The deterministic pattern
// tier always runs first and takes precedence.
type Classifier interface {
	Classify(ctx context.Context, text string) (*SafetyVerdict, error)
}

// Summarizer folds messages into a short rolling summary. The existing
// summary, when non-empty, must be merged rather than discarded.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message, existing string) (string, error)
}

// PreferenceExtraction is the structured output of the extraction capability.
type PreferenceExtraction struct {
	Found       bool             `json:"preferences_found"`
	Preferences PreferenceUpdate `json:"preferences"`
	Interests   []string         `json:"interests,omitempty"`
}

type PreferenceExtractor interface {
	Extract(ctx context.Context, messages []Message) (*PreferenceExtraction, error)
}

// AgentAction is a cart or order operation the generator asks the agent to
// perform against the reservation ledger.
type AgentAction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Action names understood by the specialized agents.
const (
	ActionSearchProducts = "search_products"
	ActionAddToCart      = "add_to_cart"
	ActionRemoveFromCart = "remove_from_cart"
	ActionConfirmOrder   = "confirm_order"
	ActionLookupOrder    = "lookup_order"
	ActionInitiateReturn = "initiate_return"
)

// ReplyRequest is the context handed to the generation capability.
type ReplyRequest struct {
	ConversationID    string
	Intent            Intent
	Persona           string
	Personalization   string
	Intervention      string
	CartSummary       string
	CompressedHistory string
	Messages          []Message
}

// Reply is the generator's output: a user-facing text, optional ledger
// actions, and an optional escalation cue.
type Reply struct {
	Content        string
	Actions        []AgentAction
	EscalateReason string
}

type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req *ReplyRequest) (*Reply, error)
}
