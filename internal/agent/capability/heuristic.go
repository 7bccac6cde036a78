package capability

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiendahogar/agent-core/internal/agent/model"
)

// Heuristic is a rule-based stand-in for the model-backed capabilities. It
// keeps the pipeline runnable without an API key and gives tests a
// deterministic generator.
type Heuristic struct {
	persona model.PersonaConfig
}

func NewHeuristic(persona model.PersonaConfig) *Heuristic {
	return &Heuristic{persona: persona}
}

var (
	orderNumberRe = regexp.MustCompile(`ORD-\d{8}-[A-Z0-9]{8}`)
	addRe         = regexp.MustCompile(`(?i)(?:agrega|añade|pon|quiero)(?:r)?\s+(?:(\d+)\s+)?(.+?)(?:\s+(?:al|a mi|en el)\s+carrito)?\s*$`)
	removeRe      = regexp.MustCompile(`(?i)(?:quita|elimina|saca)(?:r)?\s+(?:(\d+)\s+)?(.+?)(?:\s+(?:del|de mi)\s+carrito)?\s*$`)
)

// GenerateReply maps common Spanish phrasings onto cart actions.
func (h *Heuristic) GenerateReply(_ context.Context, req *model.ReplyRequest) (*model.Reply, error) {
	last := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == model.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	lower := strings.ToLower(last)

	reply := &model.Reply{}
	switch {
	case strings.Contains(lower, "supervisor") || strings.Contains(lower, "hablar con un humano") || strings.Contains(lower, "hablar con una persona"):
		reply.EscalateReason = "customer asked for a human"
		reply.Content = "Entiendo, déjame conectarte con una persona del equipo."

	case strings.Contains(lower, "devolver") || strings.Contains(lower, "devolución") || strings.Contains(lower, "devolucion"):
		if num := orderNumberRe.FindString(last); num != "" {
			reply.Actions = append(reply.Actions, model.AgentAction{
				Name: model.ActionInitiateReturn,
				Args: map[string]any{"order_number": num, "reason": last},
			})
			reply.Content = "Claro, inicio la devolución de tu pedido."
		} else {
			reply.Content = "Con gusto te ayudo con la devolución. ¿Me compartes el número de pedido (ORD-...)?"
		}

	case orderNumberRe.MatchString(last):
		reply.Actions = append(reply.Actions, model.AgentAction{
			Name: model.ActionLookupOrder,
			Args: map[string]any{"order_number": orderNumberRe.FindString(last)},
		})
		reply.Content = "Déjame revisar ese pedido."

	case strings.Contains(lower, "confirmar") || strings.Contains(lower, "finalizar compra") || strings.Contains(lower, "pagar"):
		reply.Actions = append(reply.Actions, model.AgentAction{Name: model.ActionConfirmOrder, Args: map[string]any{}})
		reply.Content = "Perfecto, proceso tu pedido."

	case strings.Contains(lower, "carrito") && removeRe.MatchString(last) &&
		(strings.Contains(lower, "quita") || strings.Contains(lower, "elimina") || strings.Contains(lower, "saca")):
		m := removeRe.FindStringSubmatch(last)
		reply.Actions = append(reply.Actions, model.AgentAction{
			Name: model.ActionRemoveFromCart,
			Args: map[string]any{"query": strings.TrimSpace(m[2]), "quantity": parseQuantity(m[1])},
		})
		reply.Content = "Listo, lo quito del carrito."

	case strings.Contains(lower, "carrito") && addRe.MatchString(last):
		m := addRe.FindStringSubmatch(last)
		reply.Actions = append(reply.Actions, model.AgentAction{
			Name: model.ActionAddToCart,
			Args: map[string]any{"query": strings.TrimSpace(m[2]), "quantity": parseQuantity(m[1])},
		})
		reply.Content = "Claro, lo agrego a tu carrito."

	case strings.Contains(lower, "busco") || strings.Contains(lower, "buscas") || strings.Contains(lower, "tienen") ||
		strings.Contains(lower, "muéstrame") || strings.Contains(lower, "muestrame") || strings.Contains(lower, "necesito"):
		reply.Actions = append(reply.Actions, model.AgentAction{
			Name: model.ActionSearchProducts,
			Args: map[string]any{"query": last},
		})
		reply.Content = "Déjame mostrarte lo que tenemos."

	default:
		reply.Content = fmt.Sprintf("Soy %s de %s. ¿En qué te puedo ayudar hoy?", h.persona.AgentName, h.persona.BusinessName)
	}
	return reply, nil
}

func parseQuantity(s string) float64 {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return float64(n)
}

// Summarize concatenates user turns into a crude rolling summary. Good enough
// to keep the compression path exercised without a model.
func (h *Heuristic) Summarize(_ context.Context, messages []model.Message, existing string) (string, error) {
	var topics []string
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		content := m.Content
		if len(content) > 80 {
			content = content[:80]
		}
		topics = append(topics, content)
	}
	summary := "El cliente habló de: " + strings.Join(topics, "; ")
	if existing != "" {
		summary = existing + " " + summary
	}
	return summary, nil
}

// Extract never finds preferences; the heuristic path leaves profiles alone.
func (h *Heuristic) Extract(_ context.Context, _ []model.Message) (*model.PreferenceExtraction, error) {
	return &model.PreferenceExtraction{}, nil
}

var (
	_ model.ReplyGenerator      = (*Heuristic)(nil)
	_ model.Summarizer          = (*Heuristic)(nil)
	_ model.PreferenceExtractor = (*Heuristic)(nil)
)
