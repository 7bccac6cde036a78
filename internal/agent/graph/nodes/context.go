package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// ContextNode loads the user profile and builds the personalization snapshot
// every downstream stage reads. Profiles are created lazily for first-time
// users; transient store failures are retried once before failing the turn.
type ContextNode struct {
	profiles model.ProfileStore
}

func NewContextNode(profiles model.ProfileStore) *ContextNode {
	return &ContextNode{profiles: profiles}
}

func (n *ContextNode) Name() string { return NodeContext }

func (n *ContextNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	profile, err := n.loadOrCreate(ctx, tc.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user profile %s: %w", tc.UserID, err)
	}

	uc := &model.UserContext{
		UserID:      profile.UserID,
		Name:        profile.Name,
		Preferences: profile.Preferences,
		Tone:        profile.Preferences.Tone,
	}
	if uc.Tone == "" {
		uc.Tone = "amigable y profesional"
	}
	// Only the most recent purchases matter for personalization.
	history := profile.PurchaseHistory
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	uc.PurchaseHistory = history

	tc.Personalization = personalizationDirective(uc)

	return &model.Delta{
		UserContext: uc,
		Reasoning: []model.AgentReasoning{
			model.NewReasoning("ContextInjector", "inject_context",
				fmt.Sprintf("Contexto cargado para %s", displayName(uc)),
				map[string]any{"user_id": uc.UserID, "purchases": len(uc.PurchaseHistory)}),
		},
	}, nil
}

func (n *ContextNode) loadOrCreate(ctx context.Context, userID string) (*model.UserProfile, error) {
	profile, err := n.profiles.Get(ctx, userID)
	if errors.Is(err, errx.ErrNotFound) {
		profile = &model.UserProfile{
			UserID:    userID,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if createErr := n.profiles.Create(ctx, profile); createErr != nil {
			return nil, createErr
		}
		return profile, nil
	}
	if err != nil {
		logx.Warn().Err(err).Str("user_id", userID).Msg("profile load failed, retrying")
		profile, err = n.profiles.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return profile, nil
}

func displayName(uc *model.UserContext) string {
	if uc.Name != "" {
		return uc.Name
	}
	return "cliente invitado"
}

// personalizationDirective renders the hidden profile block injected into the
// generator's system prompt.
func personalizationDirective(uc *model.UserContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s.\n", displayName(uc))
	fmt.Fprintf(&b, "Tono preferido: %s.\n", uc.Tone)

	if len(uc.PurchaseHistory) > 0 {
		names := make([]string, 0, len(uc.PurchaseHistory))
		for _, p := range uc.PurchaseHistory {
			names = append(names, p.ProductName)
		}
		fmt.Fprintf(&b, "Compras recientes: %s.\n", strings.Join(names, ", "))
	}

	var prefs []string
	if uc.Preferences.FavoriteColor != "" {
		prefs = append(prefs, "color favorito "+uc.Preferences.FavoriteColor)
	}
	if uc.Preferences.Style != "" {
		prefs = append(prefs, "estilo "+uc.Preferences.Style)
	}
	if uc.Preferences.Size != "" {
		prefs = append(prefs, "tamaño "+uc.Preferences.Size)
	}
	if uc.Preferences.BudgetRange != "" {
		prefs = append(prefs, "presupuesto "+uc.Preferences.BudgetRange)
	}
	if len(prefs) > 0 {
		fmt.Fprintf(&b, "Preferencias conocidas: %s.\n", strings.Join(prefs, ", "))
	}
	return b.String()
}

var _ Node = (*ContextNode)(nil)
