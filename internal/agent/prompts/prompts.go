package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

//go:embed template/safety_prompt.txt
var safetyPrompt string

//go:embed template/summary_prompt.txt
var summaryPrompt string

//go:embed template/persona_prompt.txt
var personaPrompt string

//go:embed template/preferences_prompt.txt
var preferencesPrompt string

// RenderSafety builds the LLM-tier safety classification prompt.
func RenderSafety(message string) string {
	return strings.NewReplacer(
		"{message}", message,
	).Replace(safetyPrompt)
}

// RenderSummary builds the compression prompt. When an existing summary is
// present it is included so the model merges rather than replaces context.
func RenderSummary(messages []model.Message, existing string) string {
	previousBlock := ""
	if existing != "" {
		previousBlock = "RESUMEN ANTERIOR (combínalo con los mensajes nuevos):\n" + existing
	}
	return strings.NewReplacer(
		"{previous_block}", previousBlock,
		"{messages}", TranscriptBlock(messages),
	).Replace(summaryPrompt)
}

// RenderPersona builds the system prompt for the specialized agents.
func RenderPersona(persona model.PersonaConfig, req *model.ReplyRequest) string {
	historyBlock := ""
	if req.CompressedHistory != "" {
		historyBlock = "CONTEXTO PREVIO DE LA CONVERSACIÓN:\n" + req.CompressedHistory
	}
	cartBlock := ""
	if req.CartSummary != "" {
		cartBlock = "CARRITO ACTUAL: " + req.CartSummary
	}
	guidanceBlock := ""
	if req.Intervention != "" {
		guidanceBlock = "GUÍA PROACTIVA (incorpórala de forma natural): " + req.Intervention
	}
	return strings.NewReplacer(
		"{agent_name}", persona.AgentName,
		"{business_name}", persona.BusinessName,
		"{personalization}", req.Personalization,
		"{history_block}", historyBlock,
		"{cart_block}", cartBlock,
		"{guidance_block}", guidanceBlock,
	).Replace(personaPrompt)
}

// RenderPreferences builds the preference-extraction prompt.
func RenderPreferences(messages []model.Message) string {
	return strings.NewReplacer(
		"{messages}", TranscriptBlock(messages),
	).Replace(preferencesPrompt)
}

// TranscriptBlock renders messages as "ROLE: content" lines, truncating
// oversized entries so prompts stay bounded.
func TranscriptBlock(messages []model.Message) string {
	const maxContent = 500
	var b strings.Builder
	for _, msg := range messages {
		content := msg.Content
		if len(content) > maxContent {
			content = content[:maxContent] + "..."
		}
		if content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(msg.Role)), content)
	}
	return b.String()
}
