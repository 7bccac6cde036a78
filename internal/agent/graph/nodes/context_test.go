package nodes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/agent/repo"
)

func TestContextNodeCreatesGuestProfile(t *testing.T) {
	ctx := context.Background()
	profiles := repo.NewMemoryProfileStore()
	st := model.NewConversationState("conv-1", "user-new")
	tc := &TurnContext{ConversationID: "conv-1", UserID: "user-new"}

	d, err := NewContextNode(profiles).Run(ctx, st, tc)
	require.NoError(t, err)

	require.NotNil(t, d.UserContext)
	assert.Equal(t, "user-new", d.UserContext.UserID)
	assert.Contains(t, tc.Personalization, "cliente invitado")

	// The lazily created profile is persisted.
	profile, err := profiles.Get(ctx, "user-new")
	require.NoError(t, err)
	assert.Equal(t, "user-new", profile.UserID)
}

func TestContextNodeBuildsPersonalization(t *testing.T) {
	ctx := context.Background()
	profiles := repo.NewMemoryProfileStore()
	require.NoError(t, profiles.Create(ctx, &model.UserProfile{
		UserID: "user-1",
		Name:   "María",
		PurchaseHistory: []model.Purchase{
			{ProductID: "p1", ProductName: "Mesa Vieja", PurchasedAt: time.Now().Add(-96 * time.Hour)},
			{ProductID: "p2", ProductName: "Silla Roja", PurchasedAt: time.Now().Add(-72 * time.Hour)},
			{ProductID: "p3", ProductName: "Sofá Azul", PurchasedAt: time.Now().Add(-48 * time.Hour)},
			{ProductID: "p4", ProductName: "Lámpara Arco", PurchasedAt: time.Now().Add(-24 * time.Hour)},
		},
		Preferences: model.Preferences{FavoriteColor: "azul", BudgetRange: "500-1000"},
	}))

	st := model.NewConversationState("conv-1", "user-1")
	tc := &TurnContext{ConversationID: "conv-1", UserID: "user-1"}

	d, err := NewContextNode(profiles).Run(ctx, st, tc)
	require.NoError(t, err)

	assert.Contains(t, tc.Personalization, "María")
	assert.Contains(t, tc.Personalization, "color favorito azul")
	assert.Contains(t, tc.Personalization, "presupuesto 500-1000")
	// Only the last three purchases make it into the snapshot.
	assert.NotContains(t, tc.Personalization, "Mesa Vieja")
	assert.Contains(t, tc.Personalization, "Lámpara Arco")
	require.Len(t, d.UserContext.PurchaseHistory, 3)
}
