package repositories

import (
	"context"
	"time"

	domain "github.com/wahret-zmen/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products and applies transactional stock movements.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)

	// ApplyStockDeltas mutates variant stock counters for every delta inside a
	// single transaction. Missing products or unresolved variants are reported
	// in the result rather than failing the batch.
	ApplyStockDeltas(ctx context.Context, deltas []StockDelta, now time.Time) ([]StockMovement, error)
}

// StockDelta requests one variant stock adjustment. Quantity is signed: negative
// consumes stock, positive restores it.
type StockDelta struct {
	ProductID string
	Key       domain.VariantKey
	Quantity  int
}

// StockMovement reports the applied adjustment after clamping.
type StockMovement struct {
	ProductID      string
	VariantID      string
	VariantName    string
	Requested      int
	Applied        int
	ResultingStock int
	ResultingTotal int
	Missing        bool
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category     string
	TrendingOnly bool
	Limit        int
}

// OrderRepository persists order documents and query helpers for customers and staff.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Order, error)
	ListAll(ctx context.Context, limit int) ([]domain.Order, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Ping(ctx context.Context) error
}
