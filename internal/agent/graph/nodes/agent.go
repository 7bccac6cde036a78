package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/stock"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// AgentDeps are the shared dependencies of the specialized agents.
type AgentDeps struct {
	Generator   model.ReplyGenerator
	Ledger      *stock.Ledger
	Catalog     *catalog.Store
	Escalations model.EscalationStore
}

// runAgent is the common body of the sales and reverse-logistics agents:
// generate a reply, execute the requested ledger actions, and fold the
// results back into the transcript and the metrics.
func runAgent(ctx context.Context, deps AgentDeps, agentName string, intent model.Intent, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	req := &model.ReplyRequest{
		ConversationID:    tc.ConversationID,
		Intent:            intent,
		Personalization:   tc.Personalization,
		Intervention:      tc.Intervention,
		CartSummary:       cartSummary(ctx, deps.Ledger, tc.ConversationID),
		CompressedHistory: st.CompressedHistory,
		Messages:          st.Messages,
	}

	reply, err := deps.Generator.GenerateReply(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s reply generation: %w", agentName, err)
	}

	outcome := executeActions(ctx, deps.Ledger, deps.Catalog, tc.ConversationID, tc.UserID, reply.Actions)

	parts := make([]string, 0, 1+len(outcome.notes))
	if reply.Content != "" {
		parts = append(parts, reply.Content)
	}
	parts = append(parts, outcome.notes...)
	content := strings.Join(parts, "\n\n")
	if content == "" {
		content = "¿En qué más te puedo ayudar?"
	}

	d := &model.Delta{
		Messages:        []model.Message{model.AssistantMessage(content)},
		ProductsAdded:   outcome.added,
		ProductsRemoved: outcome.removed,
		ProductsShown:   outcome.shown,
		Cart:            stateCart(ctx, deps.Ledger, tc.ConversationID),
		CartSet:         true,
		Reasoning: []model.AgentReasoning{
			model.NewReasoning(agentName, "respond",
				fmt.Sprintf("Respuesta generada con %d acciones", len(reply.Actions)),
				map[string]any{"actions": len(reply.Actions), "shown": outcome.shown, "added": outcome.added}),
		},
	}

	if reply.EscalateReason != "" && !st.OpenEscalation() {
		now := time.Now().UTC()
		escalation := &model.EscalationRequest{
			ID:              uuid.NewString()[:8],
			ConversationID:  tc.ConversationID,
			Reason:          reply.EscalateReason,
			Category:        "agent_request",
			OriginalMessage: tc.LatestUserMessage,
			Status:          model.EscalationPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		d.Escalation = escalation
		d.RequiresHuman = model.Bool(true)
		go func(esc model.EscalationRequest) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := deps.Escalations.Save(saveCtx, &esc); err != nil {
				logx.Error().Err(err).Str("escalation_id", esc.ID).Msg("failed to persist escalation")
			}
		}(*escalation)
	}

	return d, nil
}

// SalesNode is the primary selling agent. It owns product discovery, cart
// building and order confirmation.
type SalesNode struct {
	deps AgentDeps
}

func NewSalesNode(deps AgentDeps) *SalesNode { return &SalesNode{deps: deps} }

func (n *SalesNode) Name() string { return NodeSales }

func (n *SalesNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	return runAgent(ctx, n.deps, "SalesAgent", model.IntentSales, st, tc)
}

// ReverseLogisticsNode handles returns, exchanges and order-status questions.
type ReverseLogisticsNode struct {
	deps AgentDeps
}

func NewReverseLogisticsNode(deps AgentDeps) *ReverseLogisticsNode {
	return &ReverseLogisticsNode{deps: deps}
}

func (n *ReverseLogisticsNode) Name() string { return NodeReverseLogistics }

func (n *ReverseLogisticsNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	return runAgent(ctx, n.deps, "ReverseLogisticsAgent", model.IntentReverseLogistics, st, tc)
}

var (
	_ Node = (*SalesNode)(nil)
	_ Node = (*ReverseLogisticsNode)(nil)
)
