package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tiendahogar/agent-core/internal/core/errx"
)

// Product is a catalog entry with its physical stock level. Reserved
// quantities live in the stock ledger, not here; Stock only changes on
// confirmed orders.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Stock       int     `json:"stock"`
}

// Store is an in-memory product catalog. The orchestration core treats
// catalog persistence as an external collaborator, so a seeded map behind a
// mutex is enough here.
type Store struct {
	mu       sync.RWMutex
	products map[string]*Product
}

func NewStore(products []Product) *Store {
	m := make(map[string]*Product, len(products))
	for i := range products {
		p := products[i]
		m[p.ID] = &p
	}
	return &Store{products: m}
}

// Get returns a copy of the product, or errx.ErrProductNotFound.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, errx.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// Search matches query against name, category and description. A full-phrase
// match is preferred; when the phrase matches nothing the individual words
// are tried instead, so conversational queries still hit.
func (s *Store) Search(ctx context.Context, query string, limit int) []Product {
	if limit <= 0 {
		limit = 5
	}
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(func(p *Product) bool { return q == "" || productContains(p, q) })
	if len(matched) == 0 {
		tokens := searchTokens(q)
		matched = s.matchLocked(func(p *Product) bool {
			for _, tok := range tokens {
				if productContains(p, tok) {
					return true
				}
			}
			return false
		})
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func (s *Store) matchLocked(match func(*Product) bool) []Product {
	var matched []Product
	for _, p := range s.products {
		if match(p) {
			matched = append(matched, *p)
		}
	}
	return matched
}

func productContains(p *Product, q string) bool {
	return strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Category), q) ||
		strings.Contains(strings.ToLower(p.Description), q)
}

var searchStopwords = map[string]struct{}{
	"hola": {}, "busco": {}, "quiero": {}, "necesito": {}, "tienen": {},
	"para": {}, "este": {}, "esta": {}, "donde": {}, "algo": {},
	"comprar": {}, "estoy": {}, "buscando": {}, "muestrame": {}, "muéstrame": {},
}

// searchTokens splits a conversational query into lookup-worthy words,
// dropping short filler words and conversational verbs.
func searchTokens(q string) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '¿' || r == '!' || r == '¡'
	})
	var tokens []string
	for _, f := range fields {
		if len([]rune(f)) < 4 {
			continue
		}
		if _, skip := searchStopwords[f]; skip {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// TotalStock returns the physical stock for a product, 0 when unknown.
func (s *Store) TotalStock(ctx context.Context, productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.products[productID]; ok {
		return p.Stock
	}
	return 0
}

// DeductStock permanently decrements stock for a confirmed order line.
// Fails when the deduction would drive stock negative.
func (s *Store) DeductStock(ctx context.Context, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return errx.ErrProductNotFound
	}
	if p.Stock < quantity {
		return &errx.InsufficientStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	p.Stock -= quantity
	return nil
}

// RestoreStock adds quantity back after a rolled-back confirmation.
func (s *Store) RestoreStock(ctx context.Context, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		p.Stock += quantity
	}
}

// SeedProducts is the default home-goods catalog used by the demo and tests.
var SeedProducts = []Product{
	{
		ID:          "sofa-001",
		Name:        "Sofá Modular Oslo 3 Cuerpos",
		Category:    "sala",
		Price:       899.99,
		Description: "Sofá modular tapizado en lino gris, ideal para salas amplias. sofa living couch",
		Stock:       5,
	},
	{
		ID:          "sofa-002",
		Name:        "Sofá Cama Bergen",
		Category:    "sala",
		Price:       649.99,
		Description: "Sofá cama convertible con almacenamiento interior. sofa bed futón",
		Stock:       8,
	},
	{
		ID:          "mesa-001",
		Name:        "Mesa de Comedor Nórdica Extensible",
		Category:    "comedor",
		Price:       459.50,
		Description: "Mesa de roble para 6-8 personas, tablero extensible. dining table",
		Stock:       10,
	},
	{
		ID:          "silla-001",
		Name:        "Set 4 Sillas Eames",
		Category:    "comedor",
		Price:       189.99,
		Description: "Sillas estilo escandinavo con patas de haya. chair dining",
		Stock:       20,
	},
	{
		ID:          "lamp-001",
		Name:        "Lámpara de Pie Arco Dorada",
		Category:    "iluminacion",
		Price:       129.90,
		Description: "Lámpara de pie con pantalla ajustable y base de mármol. lamp light",
		Stock:       15,
	},
	{
		ID:          "deco-001",
		Name:        "Alfombra Kilim 200x290",
		Category:    "decoracion",
		Price:       239.00,
		Description: "Alfombra tejida a mano con motivos geométricos. rug carpet",
		Stock:       12,
	},
	{
		ID:          "cama-001",
		Name:        "Cama King Toscana con Velador",
		Category:    "dormitorio",
		Price:       1099.00,
		Description: "Cama king con respaldo capitoné y dos veladores flotantes. bed bedroom",
		Stock:       4,
	},
}
