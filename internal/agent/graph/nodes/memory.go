package nodes

import (
	"context"
	"fmt"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// MemoryNode is the final stage of every turn. It folds evicted and aging
// messages into the compressed history and periodically extracts durable
// preferences into the user profile. Both paths fail open: a model or store
// error never fails the turn.
type MemoryNode struct {
	summarizer model.Summarizer
	extractor  model.PreferenceExtractor
	profiles   model.ProfileStore
	cfg        model.ConversationConfig
}

func NewMemoryNode(summarizer model.Summarizer, extractor model.PreferenceExtractor, profiles model.ProfileStore, cfg model.ConversationConfig) *MemoryNode {
	return &MemoryNode{summarizer: summarizer, extractor: extractor, profiles: profiles, cfg: cfg}
}

func (n *MemoryNode) Name() string { return NodeMemory }

func (n *MemoryNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	d := &model.Delta{}
	var trace []model.AgentReasoning

	if n.shouldCompress(st) {
		if err := n.compress(ctx, st, d); err != nil {
			logx.Warn().Err(err).Str("conversation_id", tc.ConversationID).
				Msg("history compression failed, keeping raw messages")
			trace = append(trace, model.NewReasoning("MemoryOptimizer", "compress_skip",
				"Resumen no disponible, se conservan los mensajes sin comprimir", nil))
		} else {
			trace = append(trace, model.NewReasoning("MemoryOptimizer", "compress",
				fmt.Sprintf("Historial comprimido, se conservan los últimos %d mensajes", n.cfg.CompressKeep),
				map[string]any{"kept": n.cfg.CompressKeep}))
		}
	}

	if n.shouldExtract(st) {
		n.extractPreferences(ctx, st, tc, &trace)
	}

	if len(trace) == 0 {
		trace = append(trace, model.NewReasoning("MemoryOptimizer", "noop", "Sin optimizaciones pendientes", nil))
	}
	d.Reasoning = trace
	d.NextNode = model.String(NodeEnd)
	return d, nil
}

// shouldCompress triggers when the bounded window evicted messages or the
// raw window reached its cap.
func (n *MemoryNode) shouldCompress(st *model.ConversationState) bool {
	return len(st.PendingCompression) > 0 || len(st.Messages) >= n.cfg.MaxMessages
}

func (n *MemoryNode) compress(ctx context.Context, st *model.ConversationState, d *model.Delta) error {
	keep := n.cfg.CompressKeep
	var toSummarize []model.Message
	toSummarize = append(toSummarize, st.PendingCompression...)
	if len(st.Messages) > keep {
		toSummarize = append(toSummarize, st.Messages[:len(st.Messages)-keep]...)
	}
	if len(toSummarize) == 0 {
		return nil
	}

	summary, err := n.summarizer.Summarize(ctx, toSummarize, st.CompressedHistory)
	if err != nil {
		return err
	}

	d.CompressedHistory = model.String(summary)
	d.KeepMessages = keep
	d.ClearPending = true
	return nil
}

// shouldExtract runs the extractor every PreferenceEvery processed messages.
func (n *MemoryNode) shouldExtract(st *model.ConversationState) bool {
	if n.extractor == nil || n.profiles == nil || n.cfg.PreferenceEvery <= 0 {
		return false
	}
	return st.MessageCount > 0 && st.MessageCount%n.cfg.PreferenceEvery == 0
}

func (n *MemoryNode) extractPreferences(ctx context.Context, st *model.ConversationState, tc *TurnContext, trace *[]model.AgentReasoning) {
	extraction, err := n.extractor.Extract(ctx, st.Messages)
	if err != nil {
		// Malformed model output is discarded without touching the profile.
		logx.Debug().Err(err).Str("conversation_id", tc.ConversationID).Msg("preference extraction discarded")
		return
	}
	if !extraction.Found {
		return
	}
	update := extraction.Preferences
	update.Interests = append(update.Interests, extraction.Interests...)
	if update.Empty() {
		return
	}

	if err := n.profiles.UpdatePreferences(ctx, tc.UserID, update); err != nil {
		logx.Warn().Err(err).Str("user_id", tc.UserID).Msg("failed to persist extracted preferences")
		return
	}
	*trace = append(*trace, model.NewReasoning("MemoryOptimizer", "extract_preferences",
		"Preferencias del cliente actualizadas", map[string]any{"user_id": tc.UserID}))
}

var _ Node = (*MemoryNode)(nil)
