package services

import (
	"context"
	"time"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/repositories"
)

// StockLedger applies signed stock adjustments for order lines. Implementations
// must clamp stock at zero, keep the product's aggregate counter in sync, and
// treat publishing failures as best-effort.
type StockLedger interface {
	Apply(ctx context.Context, cmd StockLedgerCommand) ([]repositories.StockMovement, error)
}

// StockLedgerCommand batches the per-line adjustments triggered by one order
// operation. Reason is carried onto the published audit events.
type StockLedgerCommand struct {
	OrderID string
	Reason  string
	Deltas  []repositories.StockDelta
}

// Stock ledger event reasons.
const (
	StockReasonOrderCreated = "order_created"
	StockReasonLineRemoved  = "line_removed"
	StockReasonOrderDeleted = "order_deleted"
)

// StockLedgerEvent is the audit record published after one applied adjustment.
type StockLedgerEvent struct {
	OrderID        string    `json:"orderId,omitempty"`
	ProductID      string    `json:"productId"`
	VariantID      string    `json:"variantId,omitempty"`
	VariantName    string    `json:"variantName,omitempty"`
	Delta          int       `json:"delta"`
	ResultingStock int       `json:"resultingStock"`
	ResultingTotal int       `json:"resultingTotal"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// StockEventPublisher delivers ledger events to the audit stream.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockLedgerEvent) (string, error)
}

// OrderService encapsulates order intake, mutation, and query flows.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetByID(ctx context.Context, orderID string) (OrderView, error)
	ListByEmail(ctx context.Context, email string) ([]OrderView, error)
	ListAll(ctx context.Context, limit int) ([]OrderView, error)
	RemoveLine(ctx context.Context, cmd RemoveLineCommand) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	UpdateFlags(ctx context.Context, cmd UpdateOrderFlagsCommand) (domain.Order, error)
}

// CreateOrderCommand carries the intake request. Client-supplied prices are
// never trusted; the catalog is the authority.
type CreateOrderCommand struct {
	CustomerName string
	Email        string
	Phone        string
	Address      domain.Address
	Lines        []OrderLineInput
}

// OrderLineInput requests one product variant at intake.
type OrderLineInput struct {
	ProductID string
	Quantity  int
	Key       domain.VariantKey
}

// RemoveLineCommand decrements or drops one order line.
type RemoveLineCommand struct {
	OrderID   string
	ProductID string
	Key       domain.VariantKey
	Quantity  int
}

// UpdateOrderFlagsCommand patches fulfilment flags. Nil pointers leave the
// field untouched; progress values are clamped to [0,100].
type UpdateOrderFlagsCommand struct {
	OrderID      string
	IsPaid       *bool
	IsDelivered  *bool
	LineProgress map[string]int
}

// OrderView is an order enriched with current catalog display fields for the
// referenced products. Missing products leave the display fields empty.
type OrderView struct {
	Order domain.Order
	Lines []OrderLineView
}

// OrderLineView pairs a stored line with live product display data.
type OrderLineView struct {
	Line         domain.OrderLine
	ProductTitle string
	ProductCover string
}

// CatalogService manages the product catalog.
type CatalogService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	ListProducts(ctx context.Context, filter CatalogFilter) ([]domain.Product, error)
	Reprice(ctx context.Context, cmd RepriceCommand) (domain.Product, error)
}

// UpsertProductCommand creates or replaces a product. ID is ignored on create.
type UpsertProductCommand struct {
	ID          string
	Title       string
	Description string
	Category    string
	Craft       string
	CoverImage  string
	PriceBase   float64
	PriceNow    float64
	Trending    bool
	Rating      float64
	Variants    []VariantInput
}

// VariantInput accepts both historical name shapes and both image shapes.
// Exactly one of Name/NameLocalized should be set; Image is folded into Images.
type VariantInput struct {
	ID            string
	Name          string
	NameLocalized map[string]string
	Image         string
	Images        []string
	Stock         int
}

// CatalogFilter narrows product listings.
type CatalogFilter struct {
	Category     string
	TrendingOnly bool
	Limit        int
}

// RepriceCommand applies a percentage discount off the base price.
type RepriceCommand struct {
	ProductID  string
	Percentage float64
}

// NotificationService sends the progress email for one order line.
type NotificationService interface {
	SendOrderProgress(ctx context.Context, cmd OrderProgressNotification) error
}

// OrderProgressNotification identifies the line and the progress to report.
// ArticleIndex is a 1-based position used only for display; zero means unset.
type OrderProgressNotification struct {
	OrderID      string
	ProductID    string
	Key          domain.VariantKey
	Progress     int
	ArticleIndex int
}
