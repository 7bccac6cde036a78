// Package nodes implements the stages of the conversation graph. Each node
// receives the current state read-only and returns a Delta; the router owns
// the merge and the transition table.
package nodes

import (
	"context"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

// Node names used by the router's transition table. An empty next node parks
// the conversation until a supervisor decision arrives.
const (
	NodeContext          = "context"
	NodeSafety           = "safety"
	NodeOrchestrator     = "orchestrator"
	NodeSales            = "sales"
	NodeReverseLogistics = "reverse_logistics"
	NodeHuman            = "human"
	NodeMemory           = "memory"
	NodeEnd              = "end"
)

// TurnContext carries per-turn working data between nodes. It is rebuilt at
// the start of every turn and never persisted, unlike ConversationState.
type TurnContext struct {
	ConversationID string
	UserID         string

	// Set by the context node for the reply generator's system prompt.
	Personalization string
	// Set by the orchestrator when a proactive rule fires.
	Intervention string

	LatestUserMessage string
}

// Node is one stage of the graph.
type Node interface {
	Name() string
	Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error)
}
