package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

// hesitationPatterns flag uncertainty in the customer's wording. Each
// matching pattern counts one signal; the counter accumulates across the
// conversation and never decays.
var hesitationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(no se|no sé|no estoy seguro|dejame pensar|lo pienso|mas tarde|después|luego)\b`),
	regexp.MustCompile(`(?i)\b(es caro|muy caro|precio alto|mucho dinero|no tengo|presupuesto)\b`),
	regexp.MustCompile(`(?i)\b(cual recomiendas|que me recomiendas|cual es mejor|no se cual)\b`),
	regexp.MustCompile(`(?i)\b(hmm|mmm|ehh|bueno|pues|este)\b`),
	regexp.MustCompile(`\?.*\?`),
}

// stagePatterns drive funnel-stage detection. Deliberately specific phrasings
// to keep false positives down; an unmatched message keeps the current stage.
var stagePatterns = []struct {
	stage    model.Stage
	patterns []*regexp.Regexp
}{
	{model.StageDiscovery, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(busco|necesito|quiero comprar|me gustaria|estoy buscando)\b`),
		regexp.MustCompile(`(?i)\b(tengo \d+ dolares|presupuesto de|amoblar|decorar|renovar)\b`),
		regexp.MustCompile(`(?i)\b(hola|buenos dias|buenas tardes|buenas noches)\b`),
		regexp.MustCompile(`(?i)\b(que venden|que productos|tienen)\b`),
	}},
	{model.StageProposal, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(muestrame|ver opciones|mostrar|catalogo)\b`),
		regexp.MustCompile(`(?i)\b(que tienes en|que tienen de|hay de)\b`),
		regexp.MustCompile(`(?i)\b(propuesta|sugerencia|recomendacion)\b`),
	}},
	{model.StageOptimization, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(otro color|diferente|alternativa|mas barato|mas economico|mas caro|premium)\b`),
		regexp.MustCompile(`(?i)\b(quitar del carrito|eliminar|reducir cantidad|menos unidades)\b`),
		regexp.MustCompile(`(?i)\b(cambiar por|reemplazar|sustituir)\b`),
	}},
	{model.StageCommitment, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(agrega al carrito|añadir al carrito|quiero este|me llevo este|lo quiero|agregar el \d+)\b`),
		regexp.MustCompile(`(?i)\b(agregar todo|toda la propuesta)\b`),
	}},
	{model.StageCheckout, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(pagar|confirmar orden|finalizar compra|proceder al pago)\b`),
		regexp.MustCompile(`(?i)\b(mi direccion es|entrega en|enviar a|horario de entrega)\b`),
		regexp.MustCompile(`(?i)\b(crear orden|generar orden)\b`),
	}},
}

// reverseLogisticsMarkers route a turn to the reverse-logistics agent instead
// of the sales agent. Substring match, accent-stripped phrasings included.
var reverseLogisticsMarkers = []string{
	"devolucion", "devolución", "devolver", "devuelvo",
	"cambio", "cambiar", "intercambio",
	"reembolso", "reembolsar",
	"return", "refund",
	"no me sirve", "no funciona", "defectuoso",
	"producto danado", "producto dañado", "llego roto", "llegó roto", "llego mal", "llegó mal",
	"quiero regresar", "quiero devolver",
	"politica de devolucion", "politica de cambio",
	"estado de mi devolucion", "estado del cambio",
	"ret-", "ord-",
}

// detectStage scores every stage's patterns against the message and returns
// the best match, or "" when nothing matched. Ties resolve to the earlier
// funnel stage.
func detectStage(message string) model.Stage {
	best := model.Stage("")
	bestScore := 0
	for _, sp := range stagePatterns {
		score := 0
		for _, p := range sp.patterns {
			if p.MatchString(message) {
				score++
			}
		}
		if score > bestScore {
			best = sp.stage
			bestScore = score
		}
	}
	return best
}

func countHesitation(message string) int {
	count := 0
	for _, p := range hesitationPatterns {
		if p.MatchString(message) {
			count++
		}
	}
	return count
}

func detectIntent(message string) model.Intent {
	lower := strings.ToLower(message)
	for _, marker := range reverseLogisticsMarkers {
		if strings.Contains(lower, marker) {
			return model.IntentReverseLogistics
		}
	}
	return model.IntentSales
}

// interventionRule is one proactive-guidance rule. Rules are ordered; the
// first whose condition holds wins for the turn.
type interventionRule struct {
	name      string
	condition func(st *model.ConversationState) bool
	message   string
}

var interventionRules = []interventionRule{
	{
		name: "too_long_in_discovery",
		condition: func(st *model.ConversationState) bool {
			return st.Stage == model.StageDiscovery && st.StageMessageCount > 4
		},
		message: "Veo que tienes varias ideas. ¿Te gustaría que te prepare una propuesta personalizada basada en lo que me has contado?",
	},
	{
		name: "hesitation_detected",
		condition: func(st *model.ConversationState) bool {
			return st.HesitationSignals >= 2
		},
		message: "Entiendo que es una decisión importante. La mayoría de nuestros clientes eligen nuestros productos más populares. ¿Te gustaría que te cuente por qué?",
	},
	{
		name: "cart_abandonment_risk",
		condition: func(st *model.ConversationState) bool {
			return st.ProductsAdded > 0 && st.ProductsRemoved > 0
		},
		message: "Noté que quitaste algunos productos. ¿Hay algo que pueda mejorar? Puedo ofrecerte alternativas o un descuento especial.",
	},
	{
		name: "stuck_in_optimization",
		condition: func(st *model.ConversationState) bool {
			return st.Stage == model.StageOptimization && st.StageMessageCount > 5
		},
		message: "Ya tienes una buena selección en tu carrito. ¿Quieres que procedamos con la compra? Puedo mostrarte las opciones de entrega.",
	},
	{
		name: "empty_cart_after_proposal",
		condition: func(st *model.ConversationState) bool {
			return st.Stage == model.StageProposal && st.ProductsShown > 5 && st.ProductsAdded == 0
		},
		message: "Te mostré varias opciones. ¿Cuál te llamó más la atención? Puedo darte más detalles sobre cualquiera de ellos.",
	},
}

// OrchestratorNode monitors the conversation ahead of the specialized agents:
// it tracks the funnel stage, accumulates hesitation signals, routes intent,
// and injects proactive guidance into the generator's prompt.
type OrchestratorNode struct{}

func NewOrchestratorNode() *OrchestratorNode { return &OrchestratorNode{} }

func (n *OrchestratorNode) Name() string { return NodeOrchestrator }

func (n *OrchestratorNode) Run(ctx context.Context, st *model.ConversationState, tc *TurnContext) (*model.Delta, error) {
	message := tc.LatestUserMessage
	if message == "" {
		return &model.Delta{
			Intent: model.IntentSales,
			Reasoning: []model.AgentReasoning{
				model.NewReasoning("Orchestrator", "skip", "No hay mensaje de usuario para analizar", nil),
			},
		}, nil
	}

	newStage := model.GuardStage(st.Stage, detectStage(message))
	stageCount := st.StageMessageCount + 1
	if newStage != st.Stage {
		stageCount = 1
	}

	hesitation := countHesitation(message)
	intent := detectIntent(message)

	// Interventions evaluate against the post-update picture of the turn.
	projected := *st
	projected.Stage = newStage
	projected.StageMessageCount = stageCount
	projected.HesitationSignals = st.HesitationSignals + hesitation

	ruleName := ""
	for _, rule := range interventionRules {
		if rule.condition(&projected) {
			ruleName = rule.name
			tc.Intervention = rule.message
			break
		}
	}

	return &model.Delta{
		Intent:            intent,
		Stage:             newStage,
		StageMessageCount: model.Int(stageCount),
		HesitationAdd:     hesitation,
		Reasoning: []model.AgentReasoning{
			model.NewReasoning("Orchestrator", "analyze",
				fmt.Sprintf("Etapa %s, intención %s", newStage, intent),
				map[string]any{
					"stage":               string(newStage),
					"stage_message_count": stageCount,
					"hesitation_signals":  projected.HesitationSignals,
					"intervention":        ruleName,
				}),
		},
	}, nil
}

var _ Node = (*OrchestratorNode)(nil)
