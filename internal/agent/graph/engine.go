// Package graph runs the conversation state machine: an explicit dispatch
// table over the nodes, with checkpointing between turns and a per
// conversation in-flight guard.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiendahogar/agent-core/internal/agent/graph/nodes"
	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	"github.com/tiendahogar/agent-core/internal/observability"
	"github.com/tiendahogar/agent-core/internal/stock"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// Deps are the stores, capabilities and domain services the engine wires
// into its nodes. Classifier and Extractor may be nil; the corresponding
// tiers are skipped.
type Deps struct {
	Checkpoints model.CheckpointStore
	Escalations model.EscalationStore
	Profiles    model.ProfileStore

	Classifier model.Classifier
	Generator  model.ReplyGenerator
	Summarizer model.Summarizer
	Extractor  model.PreferenceExtractor

	Ledger  *stock.Ledger
	Catalog *catalog.Store
}

// Config groups the engine's tunables.
type Config struct {
	Conversation model.ConversationConfig
	Persona      model.PersonaConfig
}

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	ConversationID string                   `json:"conversation_id"`
	Reply          string                   `json:"reply"`
	RequiresHuman  bool                     `json:"requires_human"`
	Escalation     *model.EscalationRequest `json:"escalation,omitempty"`
	Cart           []model.CartItem         `json:"cart"`
	Stage          model.Stage              `json:"stage"`
}

// Engine owns the conversation graph. One instance serves all conversations;
// per-conversation serialization is enforced with an in-flight set so a
// second message for the same conversation is rejected rather than queued.
type Engine struct {
	checkpoints model.CheckpointStore
	escalations model.EscalationStore
	human       *nodes.HumanNode
	nodes       map[string]nodes.Node
	cfg         Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewEngine(deps Deps, cfg Config) *Engine {
	agentDeps := nodes.AgentDeps{
		Generator:   deps.Generator,
		Ledger:      deps.Ledger,
		Catalog:     deps.Catalog,
		Escalations: deps.Escalations,
	}
	human := nodes.NewHumanNode(deps.Escalations)

	table := map[string]nodes.Node{}
	for _, n := range []nodes.Node{
		nodes.NewContextNode(deps.Profiles),
		nodes.NewSafetyNode(deps.Classifier, deps.Escalations),
		nodes.NewOrchestratorNode(),
		nodes.NewSalesNode(agentDeps),
		nodes.NewReverseLogisticsNode(agentDeps),
		human,
		nodes.NewMemoryNode(deps.Summarizer, deps.Extractor, deps.Profiles, cfg.Conversation),
	} {
		table[n.Name()] = n
	}

	return &Engine{
		checkpoints: deps.Checkpoints,
		escalations: deps.Escalations,
		human:       human,
		nodes:       table,
		cfg:         cfg,
		inflight:    map[string]struct{}{},
	}
}

// StartConversation creates a fresh conversation and greets the customer.
func (e *Engine) StartConversation(ctx context.Context, userID string) (*TurnResult, error) {
	st := model.NewConversationState(uuid.NewString(), userID)

	greeting := fmt.Sprintf("¡Hola! Soy %s de %s. ¿Qué estás buscando para tu hogar hoy?",
		e.cfg.Persona.AgentName, e.cfg.Persona.BusinessName)
	st.Apply(&model.Delta{Messages: []model.Message{model.AssistantMessage(greeting)}}, e.limits())

	if err := e.checkpoints.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save new conversation: %w", err)
	}
	logx.Info().Str("conversation_id", st.ConversationID).Str("user_id", userID).Msg("conversation started")
	return e.result(st), nil
}

// ProcessMessage runs one full turn for an incoming user message.
//
// A parked conversation (open escalation awaiting a supervisor) answers with
// the fixed transfer message and does not run the graph. A conversation with
// a turn already in flight returns errx.ErrTurnInFlight.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, userID, text string) (*TurnResult, error) {
	if err := e.acquire(conversationID); err != nil {
		return nil, err
	}
	defer e.release(conversationID)

	st, err := e.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	if st.RequiresHuman && st.OpenEscalation() {
		st.Apply(&model.Delta{Messages: []model.Message{
			model.UserMessage(text),
			model.AssistantMessage(nodes.TransferMessage),
		}}, e.limits())
		if err := e.checkpoints.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("save checkpoint: %w", err)
		}
		observability.RecordTurn("parked", intentLabel(st), time.Since(start))
		return e.result(st), nil
	}

	st.Apply(&model.Delta{Messages: []model.Message{model.UserMessage(text)}}, e.limits())

	tc := &nodes.TurnContext{
		ConversationID:    conversationID,
		UserID:            userID,
		LatestUserMessage: text,
	}

	if err := e.run(ctx, st, tc, nodes.NodeContext); err != nil {
		observability.RecordTurn("error", intentLabel(st), time.Since(start))
		return nil, err
	}

	if err := e.checkpoints.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	observability.RecordTurn("success", intentLabel(st), time.Since(start))
	return e.result(st), nil
}

// SubmitHumanDecision applies a supervisor ruling to a parked conversation
// and resumes the graph from the node the ruling selects.
func (e *Engine) SubmitHumanDecision(ctx context.Context, conversationID string, decision nodes.HumanDecision) (*TurnResult, error) {
	if err := e.acquire(conversationID); err != nil {
		return nil, err
	}
	defer e.release(conversationID)

	st, err := e.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	originalMessage := ""
	if st.Escalation != nil {
		originalMessage = st.Escalation.OriginalMessage
	}

	d, resume, err := e.human.Decide(ctx, st, decision)
	if err != nil {
		return nil, err
	}
	st.Apply(d, e.limits())
	observability.RecordEscalation(string(decision.Action))

	tc := &nodes.TurnContext{
		ConversationID:    conversationID,
		UserID:            st.UserContext.UserID,
		LatestUserMessage: originalMessage,
	}

	// Approved turns re-enter through the context node so personalization is
	// rebuilt before the agent answers the original message.
	if decision.Action == model.EscalationApproved {
		if err := e.runNode(ctx, st, tc, nodes.NodeContext); err != nil {
			return nil, err
		}
	}
	if err := e.run(ctx, st, tc, resume); err != nil {
		return nil, err
	}

	if err := e.checkpoints.Save(ctx, st); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}
	return e.result(st), nil
}

// PendingEscalations lists open escalations for the supervisor surface.
func (e *Engine) PendingEscalations(ctx context.Context, limit int) ([]*model.EscalationRequest, error) {
	return e.escalations.ListByStatus(ctx, model.EscalationPending, limit)
}

// run executes nodes from start until the graph ends or parks.
func (e *Engine) run(ctx context.Context, st *model.ConversationState, tc *nodes.TurnContext, start string) error {
	current := start
	for current != "" && current != nodes.NodeEnd {
		next, err := e.step(ctx, st, tc, current)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// runNode executes a single node outside the routing loop.
func (e *Engine) runNode(ctx context.Context, st *model.ConversationState, tc *nodes.TurnContext, name string) error {
	_, err := e.step(ctx, st, tc, name)
	return err
}

func (e *Engine) step(ctx context.Context, st *model.ConversationState, tc *nodes.TurnContext, current string) (string, error) {
	node, ok := e.nodes[current]
	if !ok {
		return "", fmt.Errorf("unknown graph node %q", current)
	}

	st.CurrentNode = current
	d, err := node.Run(ctx, st, tc)
	if err != nil {
		observability.RecordNodeExecution(current, "error")
		return "", fmt.Errorf("node %s: %w", current, err)
	}
	observability.RecordNodeExecution(current, "success")

	hadExplicitNext := d != nil && d.NextNode != nil
	st.Apply(d, e.limits())

	if current == nodes.NodeSafety {
		observability.RecordClassification(string(st.Classification))
	}
	if d != nil && d.Escalation != nil && d.Escalation.Status == model.EscalationPending {
		observability.RecordEscalation("opened")
	}

	if hadExplicitNext {
		return st.NextNode, nil
	}
	return e.route(current, st), nil
}

// route is the transition table of the graph.
func (e *Engine) route(current string, st *model.ConversationState) string {
	switch current {
	case nodes.NodeContext:
		return nodes.NodeSafety
	case nodes.NodeSafety:
		if st.Classification == model.ClassificationUnsafe || st.RequiresHuman {
			return nodes.NodeHuman
		}
		return nodes.NodeOrchestrator
	case nodes.NodeOrchestrator:
		if st.Intent == model.IntentReverseLogistics {
			return nodes.NodeReverseLogistics
		}
		return nodes.NodeSales
	case nodes.NodeSales, nodes.NodeReverseLogistics:
		if st.RequiresHuman {
			return nodes.NodeHuman
		}
		return nodes.NodeMemory
	case nodes.NodeMemory:
		return nodes.NodeEnd
	}
	return nodes.NodeEnd
}

func (e *Engine) load(ctx context.Context, conversationID string) (*model.ConversationState, error) {
	st, err := e.checkpoints.Load(ctx, conversationID)
	if err != nil {
		if errors.Is(err, errx.ErrNotFound) {
			return nil, errx.ErrConversationNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return st, nil
}

func (e *Engine) acquire(conversationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[conversationID]; busy {
		return errx.ErrTurnInFlight
	}
	e.inflight[conversationID] = struct{}{}
	return nil
}

func (e *Engine) release(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, conversationID)
}

func (e *Engine) limits() model.Limits {
	return e.cfg.Conversation.Limits()
}

func (e *Engine) result(st *model.ConversationState) *TurnResult {
	return &TurnResult{
		ConversationID: st.ConversationID,
		Reply:          st.LastReply(),
		RequiresHuman:  st.RequiresHuman,
		Escalation:     st.Escalation,
		Cart:           st.Cart,
		Stage:          st.Stage,
	}
}

func intentLabel(st *model.ConversationState) string {
	if st.Intent == "" {
		return "none"
	}
	return string(st.Intent)
}
