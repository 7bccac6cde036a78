package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

func runOrchestrator(t *testing.T, st *model.ConversationState, message string) (*model.Delta, *TurnContext) {
	t.Helper()
	tc := &TurnContext{ConversationID: st.ConversationID, UserID: "user-1", LatestUserMessage: message}
	d, err := NewOrchestratorNode().Run(context.Background(), st, tc)
	require.NoError(t, err)
	return d, tc
}

func TestDetectStage(t *testing.T) {
	tests := []struct {
		message string
		want    model.Stage
	}{
		{"hola, busco una lámpara", model.StageDiscovery},
		{"muestrame el catalogo de sillas", model.StageProposal},
		{"¿tienes una alternativa mas barato?", model.StageOptimization},
		{"agrega al carrito el sofá", model.StageCommitment},
		{"quiero pagar y finalizar compra", model.StageCheckout},
		{"mmm ok", ""},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, detectStage(tt.message))
		})
	}
}

func TestStageRegressionGuard(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.Stage = model.StageCheckout
	st.StageMessageCount = 2

	// Discovery is more than one step behind checkout; the stage holds.
	d, _ := runOrchestrator(t, st, "busco algo para decorar")
	assert.Equal(t, model.StageCheckout, d.Stage)
	assert.Equal(t, 3, *d.StageMessageCount)
}

func TestStageChangeResetsCount(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.Stage = model.StageDiscovery
	st.StageMessageCount = 3

	d, _ := runOrchestrator(t, st, "muestrame opciones de mesas")
	assert.Equal(t, model.StageProposal, d.Stage)
	assert.Equal(t, 1, *d.StageMessageCount)
}

func TestHesitationAccumulates(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.HesitationSignals = 1

	d, _ := runOrchestrator(t, st, "no sé, es caro para mí")
	assert.Equal(t, 2, d.HesitationAdd)

	st.Apply(d, model.Limits{MaxMessages: 10, MaxReasoning: 5})
	assert.Equal(t, 3, st.HesitationSignals)
}

func TestIntentDetection(t *testing.T) {
	assert.Equal(t, model.IntentSales, detectIntent("busco una mesa de comedor"))
	assert.Equal(t, model.IntentReverseLogistics, detectIntent("quiero devolver mi pedido"))
	assert.Equal(t, model.IntentReverseLogistics, detectIntent("el producto llegó roto"))
	assert.Equal(t, model.IntentReverseLogistics, detectIntent("estado de ORD-20250101-AB12CD34"))
}

func TestInterventionFirstMatchWins(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.Stage = model.StageDiscovery
	st.StageMessageCount = 5
	st.HesitationSignals = 4

	// Both too_long_in_discovery and hesitation_detected hold; the first
	// rule in the table wins.
	_, tc := runOrchestrator(t, st, "sigo viendo qué comprar")
	assert.Contains(t, tc.Intervention, "propuesta personalizada")
}

func TestInterventionHesitation(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.Stage = model.StageProposal
	st.HesitationSignals = 2

	_, tc := runOrchestrator(t, st, "dame mas detalles")
	assert.Contains(t, tc.Intervention, "decisión importante")
}

func TestInterventionCartAbandonment(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")
	st.Stage = model.StageCommitment
	st.ProductsAdded = 2
	st.ProductsRemoved = 1

	_, tc := runOrchestrator(t, st, "dame un momento")
	assert.Contains(t, tc.Intervention, "quitaste algunos productos")
}

func TestNoInterventionOnCleanTurn(t *testing.T) {
	st := model.NewConversationState("conv-1", "user-1")

	_, tc := runOrchestrator(t, st, "busco una lámpara de pie")
	assert.Empty(t, tc.Intervention)
}
