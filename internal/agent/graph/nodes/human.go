package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// TransferMessage is the fixed reply sent while a conversation waits for a
// supervisor. It is also replayed for any message received while parked.
const TransferMessage = "Tu consulta ha sido transferida a un supervisor. Un representante te atenderá en breve. Gracias por tu paciencia."

// rejectMessage closes the loop after a supervisor rejects the interaction.
const rejectMessage = "Lo sentimos, no podemos ayudarte con esa solicitud. ¿Hay algo más relacionado con nuestros productos en lo que te pueda apoyar?"

// HumanDecision is a supervisor's ruling on an open escalation.
type HumanDecision struct {
	Action model.EscalationStatus
	// Supervisor-authored reply, required for rewrites.
	Response string
}

// HumanNode is the human-in-the-loop gate. Entering it parks the conversation
// until a supervisor decides; Decide applies the ruling and tells the router
// where to resume.
type HumanNode struct {
	escalations model.EscalationStore
}

func NewHumanNode(escalations model.EscalationStore) *HumanNode {
	return &HumanNode{escalations: escalations}
}

func (n *HumanNode) Name() string { return NodeHuman }

func (n *HumanNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	if !st.OpenEscalation() {
		// Routed here without anything to wait on; hand off to the memory
		// optimizer instead of parking forever.
		return &model.Delta{
			RequiresHuman: model.Bool(false),
			NextNode:      model.String(NodeMemory),
			Reasoning: []model.AgentReasoning{
				model.NewReasoning("HumanNode", "skip", "No hay escalación pendiente", nil),
			},
		}, nil
	}

	escalation := st.Escalation
	return &model.Delta{
		Messages: []model.Message{{
			Role:      model.RoleAssistant,
			Content:   TransferMessage,
			Timestamp: time.Now().UTC(),
			Metadata:  map[string]any{"escalation_id": escalation.ID, "status": "waiting_for_human"},
		}},
		NextNode: model.String(""),
		Reasoning: []model.AgentReasoning{
			model.NewReasoning("HumanNode", "escalate",
				fmt.Sprintf("Conversación escalada: %s. Esperando intervención humana.", escalation.Reason),
				map[string]any{"escalation_id": escalation.ID, "category": escalation.Category}),
		},
	}, nil
}

// Decide applies a supervisor's decision to the parked conversation and
// returns the node the router should resume from.
//
// approve lets the original message through to the specialized agent,
// rewrite publishes the supervisor's text verbatim, and reject answers with
// a fixed refusal. Rewrites and rejects skip the agents and go straight to
// the memory optimizer.
func (n *HumanNode) Decide(ctx context.Context, st *model.ConversationState, decision HumanDecision) (*model.Delta, string, error) {
	if !st.OpenEscalation() {
		return nil, "", errx.ErrNoOpenEscalation
	}

	escalation := *st.Escalation
	escalation.Status = decision.Action
	escalation.SupervisorResponse = decision.Response
	escalation.UpdatedAt = time.Now().UTC()

	if err := n.escalations.UpdateStatus(ctx, escalation.ID, decision.Action, decision.Response); err != nil {
		// The checkpoint is authoritative; dashboard staleness is tolerable.
		logx.Error().Err(err).Str("escalation_id", escalation.ID).Msg("failed to update escalation status")
	}

	d := &model.Delta{
		Escalation:    &escalation,
		RequiresHuman: model.Bool(false),
	}

	switch decision.Action {
	case model.EscalationApproved:
		d.Reasoning = []model.AgentReasoning{
			model.NewReasoning("HumanNode", "approve", "Supervisor aprobó continuar la conversación",
				map[string]any{"escalation_id": escalation.ID}),
		}
		next := NodeSales
		if st.Intent == model.IntentReverseLogistics {
			next = NodeReverseLogistics
		}
		return d, next, nil

	case model.EscalationRewritten:
		d.Messages = []model.Message{
			model.SupervisorMessage(decision.Response, map[string]any{"escalation_id": escalation.ID}),
		}
		d.Reasoning = []model.AgentReasoning{
			model.NewReasoning("HumanNode", "rewrite", "Supervisor respondió manualmente",
				map[string]any{"escalation_id": escalation.ID}),
		}
		return d, NodeMemory, nil

	case model.EscalationRejected:
		d.Messages = []model.Message{model.AssistantMessage(rejectMessage)}
		d.Reasoning = []model.AgentReasoning{
			model.NewReasoning("HumanNode", "reject", "Supervisor rechazó la solicitud",
				map[string]any{"escalation_id": escalation.ID}),
		}
		return d, NodeMemory, nil
	}

	return nil, "", fmt.Errorf("unknown supervisor action %q", decision.Action)
}

var _ Node = (*HumanNode)(nil)
