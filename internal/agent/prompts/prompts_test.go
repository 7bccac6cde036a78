package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

func TestRenderPersonaIncludesContextBlocks(t *testing.T) {
	persona := model.PersonaConfig{BusinessName: "Tienda Hogar", AgentName: "Taylor"}
	out := RenderPersona(persona, &model.ReplyRequest{
		Personalization:   "Cliente: María.",
		Intervention:      "Ofrece un incentivo.",
		CartSummary:       "1x Sofá Oslo ($899.99); total $899.99",
		CompressedHistory: "El cliente busca muebles de sala.",
	})

	assert.Contains(t, out, "Taylor")
	assert.Contains(t, out, "Tienda Hogar")
	assert.Contains(t, out, "Cliente: María.")
	assert.Contains(t, out, "GUÍA PROACTIVA")
	assert.Contains(t, out, "CARRITO ACTUAL")
	assert.Contains(t, out, "CONTEXTO PREVIO")
}

func TestRenderPersonaOmitsEmptyBlocks(t *testing.T) {
	persona := model.PersonaConfig{BusinessName: "Tienda Hogar", AgentName: "Taylor"}
	out := RenderPersona(persona, &model.ReplyRequest{Personalization: "Cliente invitado."})

	assert.NotContains(t, out, "GUÍA PROACTIVA")
	assert.NotContains(t, out, "CARRITO ACTUAL")
	assert.NotContains(t, out, "CONTEXTO PREVIO")
}

func TestTranscriptBlockTruncatesAndSkipsEmpty(t *testing.T) {
	long := strings.Repeat("a", 600)
	out := TranscriptBlock([]model.Message{
		{Role: model.RoleUser, Content: long},
		{Role: model.RoleAssistant, Content: ""},
		{Role: model.RoleUser, Content: "corto"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "USER: "))
	assert.True(t, strings.HasSuffix(lines[0], "..."))
	assert.Equal(t, "USER: corto", lines[1])
}

func TestRenderSummaryMergesExisting(t *testing.T) {
	out := RenderSummary([]model.Message{{Role: model.RoleUser, Content: "busco una mesa"}}, "resumen previo")
	assert.Contains(t, out, "RESUMEN ANTERIOR")
	assert.Contains(t, out, "resumen previo")
	assert.Contains(t, out, "USER: busco una mesa")

	fresh := RenderSummary([]model.Message{{Role: model.RoleUser, Content: "hola"}}, "")
	assert.NotContains(t, fresh, "RESUMEN ANTERIOR")
}
