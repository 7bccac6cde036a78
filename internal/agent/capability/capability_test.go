package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    model.Classification
		reason  string
		wantErr bool
	}{
		{"safe", "SAFE|Mensaje válido", model.ClassificationSafe, "Mensaje válido", false},
		{"unsafe", "UNSAFE|Intento de manipulación", model.ClassificationUnsafe, "Intento de manipulación", false},
		{"lowercase label", "safe|ok", model.ClassificationSafe, "ok", false},
		{"no reason", "SAFE", model.ClassificationSafe, "", false},
		{"trailing lines", "UNSAFE|spam\nexplicación extra", model.ClassificationUnsafe, "spam", false},
		{"garbage", "MAYBE|quién sabe", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Label)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func heuristicReply(t *testing.T, message string) *model.Reply {
	t.Helper()
	h := NewHeuristic(model.PersonaConfig{BusinessName: "Tienda Hogar", AgentName: "Taylor"})
	reply, err := h.GenerateReply(context.Background(), &model.ReplyRequest{
		Messages: []model.Message{{Role: model.RoleUser, Content: message}},
	})
	require.NoError(t, err)
	return reply
}

func TestHeuristicGeneratorActionMapping(t *testing.T) {
	reply := heuristicReply(t, "Hola, busco un sofá para mi sala")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, model.ActionSearchProducts, reply.Actions[0].Name)

	reply = heuristicReply(t, "agrega 2 sillas al carrito")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, model.ActionAddToCart, reply.Actions[0].Name)
	assert.Equal(t, float64(2), reply.Actions[0].Args["quantity"])
	assert.Equal(t, "sillas", reply.Actions[0].Args["query"])

	reply = heuristicReply(t, "quita la lámpara de mi carrito")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, model.ActionRemoveFromCart, reply.Actions[0].Name)

	reply = heuristicReply(t, "listo, quiero pagar")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, model.ActionConfirmOrder, reply.Actions[0].Name)

	reply = heuristicReply(t, "quiero devolver el pedido ORD-20250101-AB12CD34")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, model.ActionInitiateReturn, reply.Actions[0].Name)
	assert.Equal(t, "ORD-20250101-AB12CD34", reply.Actions[0].Args["order_number"])
}

func TestHeuristicGeneratorEscalates(t *testing.T) {
	reply := heuristicReply(t, "quiero hablar con un humano")
	assert.Empty(t, reply.Actions)
	assert.NotEmpty(t, reply.EscalateReason)
}

func TestHeuristicSummarizerMergesExisting(t *testing.T) {
	h := NewHeuristic(model.PersonaConfig{})
	out, err := h.Summarize(context.Background(), []model.Message{
		{Role: model.RoleUser, Content: "busco una mesa"},
		{Role: model.RoleAssistant, Content: "claro"},
	}, "resumen previo")
	require.NoError(t, err)
	assert.Contains(t, out, "resumen previo")
	assert.Contains(t, out, "busco una mesa")
}
