package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	"github.com/tiendahogar/agent-core/internal/stock"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// actionOutcome aggregates the ledger effects of one generator turn.
type actionOutcome struct {
	shown   int
	added   int
	removed int
	// User-facing result lines appended to the reply.
	notes []string
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argQuantity(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return 1
}

// resolveProduct maps the generator's product reference (explicit id or a
// free-text query) to a catalog product.
func resolveProduct(ctx context.Context, cat *catalog.Store, args map[string]any) (*catalog.Product, error) {
	if id := argString(args, "product_id"); id != "" {
		return cat.Get(ctx, id)
	}
	query := argString(args, "query")
	if query == "" {
		return nil, errx.ErrProductNotFound
	}
	results := cat.Search(ctx, query, 1)
	if len(results) == 0 {
		return nil, errx.ErrProductNotFound
	}
	return &results[0], nil
}

// executeActions runs the generator's requested operations against the
// catalog and the reservation ledger. Individual failures never abort the
// turn; they become user-facing notes instead.
func executeActions(ctx context.Context, ledger *stock.Ledger, cat *catalog.Store, conversationID, userID string, actions []model.AgentAction) actionOutcome {
	var out actionOutcome
	for _, action := range actions {
		switch action.Name {
		case model.ActionSearchProducts:
			query := argString(action.Args, "query")
			results := cat.Search(ctx, query, 5)
			if len(results) == 0 {
				out.notes = append(out.notes, "No encontré productos que coincidan con tu búsqueda.")
				continue
			}
			out.shown += len(results)
			lines := make([]string, 0, len(results)+1)
			lines = append(lines, "Esto es lo que tenemos:")
			for i, p := range results {
				lines = append(lines, fmt.Sprintf("%d. %s — $%.2f (%d disponibles)",
					i+1, p.Name, p.Price, ledger.AvailableStock(ctx, p.ID)))
			}
			out.notes = append(out.notes, strings.Join(lines, "\n"))

		case model.ActionAddToCart:
			product, err := resolveProduct(ctx, cat, action.Args)
			if err != nil {
				out.notes = append(out.notes, "No encontré ese producto en el catálogo.")
				continue
			}
			quantity := argQuantity(action.Args, "quantity")
			res, err := ledger.Reserve(ctx, conversationID, product.ID, quantity)
			if err != nil {
				if ins, ok := errx.IsInsufficientStock(err); ok {
					out.notes = append(out.notes, fmt.Sprintf(
						"De %s solo quedan %d unidades disponibles en este momento.",
						product.Name, ins.Available))
					continue
				}
				logx.Error().Err(err).Str("product_id", product.ID).Msg("reserve failed")
				out.notes = append(out.notes, "No pude apartar ese producto, intenta de nuevo.")
				continue
			}
			out.added += quantity
			out.notes = append(out.notes, fmt.Sprintf(
				"Aparté %dx %s en tu carrito (reserva válida por unos minutos).",
				res.ReservedQuantity, res.ProductName))

		case model.ActionRemoveFromCart:
			product, err := resolveProduct(ctx, cat, action.Args)
			if err != nil {
				out.notes = append(out.notes, "No encontré ese producto en tu carrito.")
				continue
			}
			removed := ledger.Remove(ctx, conversationID, product.ID, argQuantity(action.Args, "quantity"))
			if removed > 0 {
				out.removed += removed
				out.notes = append(out.notes, fmt.Sprintf("Quité %dx %s de tu carrito.", removed, product.Name))
			}

		case model.ActionConfirmOrder:
			order, err := ledger.Confirm(ctx, conversationID, userID)
			if err != nil {
				switch {
				case errors.Is(err, errx.ErrEmptyCart):
					out.notes = append(out.notes, "Tu carrito está vacío, agrega productos antes de confirmar.")
				default:
					if ins, ok := errx.IsInsufficientStock(err); ok {
						out.notes = append(out.notes, fmt.Sprintf(
							"No pude confirmar el pedido: un producto ya no tiene stock suficiente (quedan %d).",
							ins.Available))
					} else {
						logx.Error().Err(err).Str("conversation_id", conversationID).Msg("order confirmation failed")
						out.notes = append(out.notes, "No pude confirmar el pedido, intenta de nuevo.")
					}
				}
				continue
			}
			out.notes = append(out.notes, fmt.Sprintf(
				"¡Pedido confirmado! Tu número de orden es %s por un total de $%.2f.",
				order.Number, order.Total))

		case model.ActionLookupOrder:
			number := argString(action.Args, "order_number")
			order, err := ledger.LookupOrder(ctx, number)
			if err != nil {
				out.notes = append(out.notes, fmt.Sprintf("No encontré el pedido %s.", number))
				continue
			}
			out.notes = append(out.notes, fmt.Sprintf(
				"El pedido %s está %s, con %d productos por $%.2f.",
				order.Number, order.Status, len(order.Items), order.Total))

		case model.ActionInitiateReturn:
			number := argString(action.Args, "order_number")
			ret, err := ledger.InitiateReturn(ctx, number, argString(action.Args, "reason"))
			if err != nil {
				out.notes = append(out.notes, fmt.Sprintf("No encontré el pedido %s para iniciar la devolución.", number))
				continue
			}
			out.notes = append(out.notes, fmt.Sprintf(
				"Listo, registré tu devolución con el folio %s. Te contactaremos para coordinar la recolección.", ret.ID))

		default:
			logx.Warn().Str("action", action.Name).Msg("generator requested unknown action")
		}
	}
	return out
}

// cartSummary renders the live cart for the generator's prompt.
func cartSummary(ctx context.Context, ledger *stock.Ledger, conversationID string) string {
	items, total := ledger.CartTotal(ctx, conversationID)
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%dx %s ($%.2f)", item.Quantity, item.ProductName, item.Subtotal))
	}
	return fmt.Sprintf("%s; total $%.2f", strings.Join(lines, ", "), total)
}

// stateCart converts the ledger's live view into the checkpointed cart.
func stateCart(ctx context.Context, ledger *stock.Ledger, conversationID string) []model.CartItem {
	items := ledger.Cart(ctx, conversationID)
	cart := make([]model.CartItem, 0, len(items))
	for _, item := range items {
		cart = append(cart, model.CartItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return cart
}
