package stock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	"github.com/tiendahogar/agent-core/internal/observability"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusReserved  Status = "reserved"
	StatusConfirmed Status = "confirmed"
)

// Reservation is a time-bounded hold on inventory tied to a conversation.
type Reservation struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	ProductID      string    `json:"product_id"`
	Quantity       int       `json:"quantity"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Status         Status    `json:"status"`
}

func (r *Reservation) live(now time.Time) bool {
	return r.Status == StatusReserved && r.ExpiresAt.After(now)
}

// OrderItem is one confirmed line of an order.
type OrderItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// Order is the immutable record produced by a confirmed cart.
type Order struct {
	ID             string      `json:"id"`
	Number         string      `json:"order_number"`
	ConversationID string      `json:"conversation_id"`
	CustomerID     string      `json:"customer_id"`
	Items          []OrderItem `json:"items"`
	Total          float64     `json:"total"`
	Status         string      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ReturnRequest tracks a reverse-logistics case against a confirmed order.
type ReturnRequest struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReserveResult reports a successful hold.
type ReserveResult struct {
	ProductID        string    `json:"product_id"`
	ProductName      string    `json:"product_name"`
	ReservedQuantity int       `json:"reserved_quantity"`
	ExpiresAt        time.Time `json:"expires_at"`
	Available        int       `json:"available_stock"`
}

// CartItem is the ledger-side view of one live reservation.
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

type resKey struct {
	conversationID string
	productID      string
}

// Ledger manages temporary stock reservations with a TTL lease model.
// Cross-conversation contention is handled by recomputing availability under
// the ledger mutex at reserve time and re-checking physical stock at confirm
// time; there are no per-cart locks because carts are single-writer.
type Ledger struct {
	mu      sync.Mutex
	catalog *catalog.Store
	ttl     time.Duration
	holds   map[resKey]*Reservation
	orders  map[string]*Order
	returns map[string]*ReturnRequest
	nowFunc func() time.Time
}

const DefaultTTL = 5 * time.Minute

func NewLedger(cat *catalog.Store, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{
		catalog: cat,
		ttl:     ttl,
		holds:   make(map[resKey]*Reservation),
		orders:  make(map[string]*Order),
		returns: make(map[string]*ReturnRequest),
		nowFunc: time.Now,
	}
}

// reservedByOthers sums live holds on a product excluding one conversation.
// Caller must hold l.mu.
func (l *Ledger) reservedByOthers(productID, conversationID string, now time.Time) int {
	total := 0
	for k, r := range l.holds {
		if k.productID != productID || k.conversationID == conversationID {
			continue
		}
		if r.live(now) {
			total += r.Quantity
		}
	}
	return total
}

// Reserve places or extends a hold for (conversationID, productID). The call
// is additive: an existing hold is re-validated against availability for the
// combined quantity, and a successful upsert refreshes the lease.
func (l *Ledger) Reserve(ctx context.Context, conversationID, productID string, quantity int) (*ReserveResult, error) {
	if quantity <= 0 {
		quantity = 1
	}
	product, err := l.catalog.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	available := product.Stock - l.reservedByOthers(productID, conversationID, now)

	key := resKey{conversationID: conversationID, productID: productID}
	existing := l.holds[key]
	held := 0
	if existing != nil && existing.live(now) {
		held = existing.Quantity
	}

	if held+quantity > available {
		observability.RecordReservation("insufficient_stock")
		return nil, &errx.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: max(0, available-held),
		}
	}

	expiresAt := now.Add(l.ttl)
	if existing != nil && existing.live(now) {
		existing.Quantity = held + quantity
		existing.ExpiresAt = expiresAt
	} else {
		l.holds[key] = &Reservation{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			ProductID:      productID,
			Quantity:       quantity,
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
			Status:         StatusReserved,
		}
	}

	observability.RecordReservation("reserved")
	logx.Debug().
		Str("conversation_id", conversationID).
		Str("product_id", productID).
		Int("quantity", held+quantity).
		Time("expires_at", expiresAt).
		Msg("stock reserved")

	return &ReserveResult{
		ProductID:        productID,
		ProductName:      product.Name,
		ReservedQuantity: held + quantity,
		ExpiresAt:        expiresAt,
		Available:        available - held - quantity,
	}, nil
}

// Remove decrements or deletes a hold. Removing more than held clamps to
// deletion; removing an absent hold is a no-op. quantity <= 0 removes all.
func (l *Ledger) Remove(ctx context.Context, conversationID, productID string, quantity int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := resKey{conversationID: conversationID, productID: productID}
	r, ok := l.holds[key]
	if !ok || r.Status != StatusReserved {
		return 0
	}

	if quantity <= 0 || quantity >= r.Quantity {
		removed := r.Quantity
		delete(l.holds, key)
		observability.RecordReservation("released")
		return removed
	}
	r.Quantity -= quantity
	observability.RecordReservation("released")
	return quantity
}

// Cart returns the live reservations of a conversation joined with product
// data, ordered by product id for stable output.
func (l *Ledger) Cart(ctx context.Context, conversationID string) []CartItem {
	l.mu.Lock()
	now := l.nowFunc()
	var live []*Reservation
	for k, r := range l.holds {
		if k.conversationID == conversationID && r.live(now) {
			live = append(live, r)
		}
	}
	l.mu.Unlock()

	items := make([]CartItem, 0, len(live))
	for _, r := range live {
		product, err := l.catalog.Get(ctx, r.ProductID)
		if err != nil {
			continue
		}
		items = append(items, CartItem{
			ProductID:   r.ProductID,
			ProductName: product.Name,
			Quantity:    r.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    product.Price * float64(r.Quantity),
		})
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].ProductID < items[j-1].ProductID; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items
}

// CartTotal sums the live cart of a conversation.
func (l *Ledger) CartTotal(ctx context.Context, conversationID string) (items []CartItem, total float64) {
	items = l.Cart(ctx, conversationID)
	for _, it := range items {
		total += it.Subtotal
	}
	return items, total
}

// Confirm converts every live reservation of the conversation into a single
// immutable order, permanently decrementing stock. It is all-or-nothing: a
// failed re-check on any item aborts the whole confirmation and leaves all
// reservations untouched for retry.
func (l *Ledger) Confirm(ctx context.Context, conversationID, customerID string) (*Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	var live []*Reservation
	for k, r := range l.holds {
		if k.conversationID == conversationID && r.live(now) {
			live = append(live, r)
		}
	}
	if len(live) == 0 {
		return nil, errx.ErrEmptyCart
	}
	for i := 1; i < len(live); i++ {
		for j := i; j > 0 && live[j].ProductID < live[j-1].ProductID; j-- {
			live[j], live[j-1] = live[j-1], live[j]
		}
	}

	// Re-check against current physical stock before touching anything;
	// concurrent confirmations may have depleted it since reservation time.
	for _, r := range live {
		if avail := l.catalog.TotalStock(ctx, r.ProductID); avail < r.Quantity {
			return nil, &errx.InsufficientStockError{
				ProductID: r.ProductID,
				Requested: r.Quantity,
				Available: avail,
			}
		}
	}

	order := &Order{
		ID:             uuid.NewString(),
		Number:         newOrderNumber(now),
		ConversationID: conversationID,
		CustomerID:     customerID,
		Status:         "confirmed",
		CreatedAt:      now,
	}

	deducted := make([]*Reservation, 0, len(live))
	for _, r := range live {
		product, err := l.catalog.Get(ctx, r.ProductID)
		if err == nil {
			err = l.catalog.DeductStock(ctx, r.ProductID, r.Quantity)
		}
		if err != nil {
			// Roll back already-deducted lines so no partial confirmation
			// is observable.
			for _, d := range deducted {
				l.restoreStock(ctx, d.ProductID, d.Quantity)
			}
			return nil, err
		}
		deducted = append(deducted, r)
		subtotal := product.Price * float64(r.Quantity)
		order.Items = append(order.Items, OrderItem{
			ProductID:   r.ProductID,
			ProductName: product.Name,
			Quantity:    r.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		order.Total += subtotal
	}

	for _, r := range live {
		r.Status = StatusConfirmed
	}
	l.orders[order.Number] = order

	observability.RecordOrderConfirmed(order.Total)
	logx.Info().
		Str("conversation_id", conversationID).
		Str("order_number", order.Number).
		Float64("total", order.Total).
		Int("items", len(order.Items)).
		Msg("order confirmed")

	return order, nil
}

// restoreStock undoes a deduction during confirm rollback. Caller holds l.mu.
func (l *Ledger) restoreStock(ctx context.Context, productID string, quantity int) {
	l.catalog.RestoreStock(ctx, productID, quantity)
}

// ReleaseExpired deletes every hold whose lease has lapsed without
// confirmation. It is the only mechanism that reclaims abandoned carts.
func (l *Ledger) ReleaseExpired(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	released := 0
	for k, r := range l.holds {
		if r.Status == StatusReserved && !r.ExpiresAt.After(now) {
			delete(l.holds, k)
			observability.RecordReservation("expired")
			released++
		}
	}
	if released > 0 {
		logx.Info().Int("count", released).Msg("released expired reservations")
	}
	return released
}

// AvailableStock returns physical stock minus all live holds, clamped at 0.
func (l *Ledger) AvailableStock(ctx context.Context, productID string) int {
	total := l.catalog.TotalStock(ctx, productID)

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	for k, r := range l.holds {
		if k.productID == productID && r.live(now) {
			total -= r.Quantity
		}
	}
	return max(0, total)
}

// LookupOrder returns a confirmed order by its number.
func (l *Ledger) LookupOrder(ctx context.Context, orderNumber string) (*Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[strings.TrimSpace(orderNumber)]
	if !ok {
		return nil, errx.ErrNotFound
	}
	return order, nil
}

// InitiateReturn opens a reverse-logistics case for a confirmed order.
func (l *Ledger) InitiateReturn(ctx context.Context, orderNumber, reason string) (*ReturnRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.orders[strings.TrimSpace(orderNumber)]; !ok {
		return nil, errx.ErrNotFound
	}
	ret := &ReturnRequest{
		ID:          "RET-" + strings.ToUpper(uuid.NewString()[:8]),
		OrderNumber: orderNumber,
		Reason:      reason,
		Status:      "requested",
		CreatedAt:   l.nowFunc(),
	}
	l.returns[ret.ID] = ret
	return ret, nil
}

// RunSweeper releases expired reservations on a fixed interval until the
// context is cancelled. Run it in its own goroutine.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.ReleaseExpired(ctx)
		}
	}
}

func newOrderNumber(now time.Time) string {
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(uuid.NewString()[:8])
}
