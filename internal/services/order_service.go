package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/repositories"
)

// placeholderVariantName labels snapshots created without a resolvable variant.
const placeholderVariantName = "Original"

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderLineNotFound indicates no line matched the product and variant key.
	ErrOrderLineNotFound = errors.New("order: line not found")
	// ErrOrderInvalidQuantity indicates the removal quantity is out of bounds.
	ErrOrderInvalidQuantity = errors.New("order: invalid quantity")
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Ledger      StockLedger
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	ledger   StockLedger
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("order service: stock ledger is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		ledger:   deps.Ledger,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create validates the whole request before any write, prices lines from the
// current catalog, persists the order, then decrements stock per line with
// best-effort semantics.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if err := validateIntake(cmd); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	deltas := make([]repositories.StockDelta, 0, len(cmd.Lines))
	for _, input := range cmd.Lines {
		product, err := s.products.FindByID(ctx, input.ProductID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return domain.Order{}, fmt.Errorf("%w: product %s", ErrOrderInvalidInput, input.ProductID)
			}
			return domain.Order{}, err
		}

		snapshot := captureSnapshot(product, input.Key)
		lines = append(lines, domain.OrderLine{
			ProductID: product.ID,
			Quantity:  input.Quantity,
			UnitPrice: product.PriceNow,
			Variant:   snapshot,
		})
		deltas = append(deltas, repositories.StockDelta{
			ProductID: product.ID,
			Key: domain.VariantKey{
				VariantID: snapshot.VariantID,
				Image:     snapshot.Image,
				Name:      snapshot.Name,
			},
			Quantity: -input.Quantity,
		})
	}

	progress := make(map[string]int, len(lines))
	for _, line := range lines {
		progress[domain.LineKey(line.ProductID, line.Variant.Name)] = 0
	}

	order := domain.Order{
		ID:           s.newID(),
		CustomerName: strings.TrimSpace(cmd.CustomerName),
		Email:        strings.ToLower(strings.TrimSpace(cmd.Email)),
		Phone:        strings.TrimSpace(cmd.Phone),
		Address:      cmd.Address,
		Lines:        lines,
		TotalPrice:   domain.OrderTotal(lines),
		Status:       domain.OrderStatusPending,
		LineProgress: progress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, err
	}

	s.applyLedger(ctx, StockLedgerCommand{
		OrderID: order.ID,
		Reason:  StockReasonOrderCreated,
		Deltas:  deltas,
	})

	return order, nil
}

// GetByID fetches one order with current catalog display fields attached.
func (s *orderService) GetByID(ctx context.Context, orderID string) (OrderView, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return OrderView{}, err
	}
	views := s.buildViews(ctx, []domain.Order{order})
	return views[0], nil
}

// ListByEmail returns the customer's orders, oldest first.
func (s *orderService) ListByEmail(ctx context.Context, email string) ([]OrderView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.buildViews(ctx, orders), nil
}

// ListAll returns orders across all customers, newest first.
func (s *orderService) ListAll(ctx context.Context, limit int) ([]OrderView, error) {
	orders, err := s.orders.ListAll(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.buildViews(ctx, orders), nil
}

// RemoveLine decrements or drops one line, restores the removed quantity to
// stock, and re-prices the remaining lines from the current catalog. When the
// last line goes, the whole order goes with it.
func (s *orderService) RemoveLine(ctx context.Context, cmd RemoveLineCommand) (domain.Order, error) {
	if strings.TrimSpace(cmd.OrderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.ProductID) == "" {
		return domain.Order{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return domain.Order{}, fmt.Errorf("%w: quantity to remove must be positive", ErrOrderInvalidQuantity)
	}

	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	idx, err := locateLine(order.Lines, cmd.ProductID, cmd.Key)
	if err != nil {
		return domain.Order{}, err
	}

	line := order.Lines[idx]
	if cmd.Quantity > line.Quantity {
		return domain.Order{}, fmt.Errorf("%w: %d exceeds line quantity %d", ErrOrderInvalidQuantity, cmd.Quantity, line.Quantity)
	}

	now := s.clock()
	remaining := line.Quantity - cmd.Quantity
	if remaining == 0 {
		order.Lines = append(order.Lines[:idx], order.Lines[idx+1:]...)
		delete(order.LineProgress, domain.LineKey(line.ProductID, line.Variant.Name))
	} else {
		order.Lines[idx].Quantity = remaining
	}

	restore := StockLedgerCommand{
		OrderID: order.ID,
		Reason:  StockReasonLineRemoved,
		Deltas: []repositories.StockDelta{{
			ProductID: line.ProductID,
			Key: domain.VariantKey{
				VariantID: line.Variant.VariantID,
				Image:     line.Variant.Image,
				Name:      line.Variant.Name,
			},
			Quantity: cmd.Quantity,
		}},
	}

	// An order with zero lines must not persist.
	if len(order.Lines) == 0 {
		if err := s.orders.Delete(ctx, order.ID); err != nil {
			return domain.Order{}, err
		}
		s.applyLedger(ctx, restore)
		order.TotalPrice = 0
		order.UpdatedAt = now
		return order, nil
	}

	order.TotalPrice = s.repriceFromCatalog(ctx, order.Lines)
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, err
	}
	s.applyLedger(ctx, restore)

	return order, nil
}

// locateLine finds the single line the variant key points at. A key with no
// signal, or one matching more than one line of the product, never resolves
// to a line; ambiguity is not settled by picking one.
func locateLine(lines []domain.OrderLine, productID string, key domain.VariantKey) (int, error) {
	if key.IsZero() {
		return 0, fmt.Errorf("%w: variant key is required for product %s", ErrOrderLineNotFound, productID)
	}
	idx := -1
	for i, line := range lines {
		if line.ProductID != productID || !key.MatchesSnapshot(line.Variant) {
			continue
		}
		if idx >= 0 {
			return 0, fmt.Errorf("%w: variant key matches more than one line for product %s", ErrOrderLineNotFound, productID)
		}
		idx = i
	}
	if idx < 0 {
		return 0, fmt.Errorf("%w: no line for product %s", ErrOrderLineNotFound, productID)
	}
	return idx, nil
}

// Delete restores stock for every line, then removes the order.
func (s *orderService) Delete(ctx context.Context, orderID string) error {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return err
	}

	deltas := make([]repositories.StockDelta, 0, len(order.Lines))
	for _, line := range order.Lines {
		deltas = append(deltas, repositories.StockDelta{
			ProductID: line.ProductID,
			Key: domain.VariantKey{
				VariantID: line.Variant.VariantID,
				Image:     line.Variant.Image,
				Name:      line.Variant.Name,
			},
			Quantity: line.Quantity,
		})
	}
	if len(deltas) > 0 {
		s.applyLedger(ctx, StockLedgerCommand{
			OrderID: order.ID,
			Reason:  StockReasonOrderDeleted,
			Deltas:  deltas,
		})
	}

	if err := s.orders.Delete(ctx, order.ID); err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return err
	}
	return nil
}

// UpdateFlags patches payment/delivery flags and per-line progress. Progress
// values are clamped to [0,100]; stock is never touched.
func (s *orderService) UpdateFlags(ctx context.Context, cmd UpdateOrderFlagsCommand) (domain.Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	if cmd.IsPaid != nil {
		order.IsPaid = *cmd.IsPaid
	}
	if cmd.IsDelivered != nil {
		order.IsDelivered = *cmd.IsDelivered
	}
	if len(cmd.LineProgress) > 0 {
		if order.LineProgress == nil {
			order.LineProgress = make(map[string]int, len(cmd.LineProgress))
		}
		for key, value := range cmd.LineProgress {
			order.LineProgress[key] = clampProgress(value)
		}
	}

	order.UpdatedAt = s.clock()
	if err := s.orders.Update(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) findOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, err
	}
	return order, nil
}

func (s *orderService) applyLedger(ctx context.Context, cmd StockLedgerCommand) {
	if _, err := s.ledger.Apply(ctx, cmd); err != nil {
		s.logger(ctx, "stock_ledger_apply_failed", map[string]any{
			"orderId": cmd.OrderID,
			"reason":  cmd.Reason,
			"error":   err.Error(),
		})
	}
}

// repriceFromCatalog totals the remaining lines at current catalog prices.
// Line snapshots keep their original unit price; only the order total moves.
// Products gone from the catalog fall back to the snapshot price.
func (s *orderService) repriceFromCatalog(ctx context.Context, lines []domain.OrderLine) float64 {
	prices := make(map[string]float64, len(lines))
	for _, line := range lines {
		if _, ok := prices[line.ProductID]; ok {
			continue
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			prices[line.ProductID] = line.UnitPrice
			continue
		}
		prices[line.ProductID] = product.PriceNow
	}

	sum := 0.0
	for _, line := range lines {
		sum += prices[line.ProductID] * float64(line.Quantity)
	}
	return domain.RoundToCents(sum)
}

func (s *orderService) buildViews(ctx context.Context, orders []domain.Order) []OrderView {
	products := make(map[string]domain.Product)
	for _, order := range orders {
		for _, line := range order.Lines {
			if _, ok := products[line.ProductID]; ok {
				continue
			}
			product, err := s.products.FindByID(ctx, line.ProductID)
			if err != nil {
				products[line.ProductID] = domain.Product{}
				continue
			}
			products[line.ProductID] = product
		}
	}

	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		lines := make([]OrderLineView, 0, len(order.Lines))
		for _, line := range order.Lines {
			product := products[line.ProductID]
			lines = append(lines, OrderLineView{
				Line:         line,
				ProductTitle: product.Title,
				ProductCover: product.CoverImage,
			})
		}
		views = append(views, OrderView{Order: order, Lines: lines})
	}
	return views
}

func validateIntake(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(cmd.Phone) == "" {
		return fmt.Errorf("%w: phone is required", ErrOrderInvalidInput)
	}
	if !cmd.Address.Complete() {
		return fmt.Errorf("%w: address is incomplete", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: line product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, line.ProductID)
		}
	}
	return nil
}

// captureSnapshot freezes the display name and image for one line. Unresolved
// keys fall back to the product cover image and a placeholder name so the
// order stays presentable even when the variant data is incomplete.
func captureSnapshot(product domain.Product, key domain.VariantKey) domain.VariantSnapshot {
	if idx, ok := domain.ResolveVariant(key, product.Variants); ok {
		variant := product.Variants[idx]
		image := variant.PrimaryImage()
		if image == "" {
			image = product.CoverImage
		}
		return domain.VariantSnapshot{
			VariantID: variant.ID,
			Name:      variant.Name.Display(placeholderVariantName),
			Image:     image,
		}
	}

	name := strings.TrimSpace(key.Name)
	if name == "" {
		name = placeholderVariantName
	}
	image := strings.TrimSpace(key.Image)
	if image == "" {
		image = product.CoverImage
	}
	return domain.VariantSnapshot{
		VariantID: strings.TrimSpace(key.VariantID),
		Name:      name,
		Image:     image,
	}
}

func clampProgress(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
