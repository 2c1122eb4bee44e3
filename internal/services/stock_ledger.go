package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wahret-zmen/api/internal/repositories"
)

// ErrStockInvalidInput signals the caller provided invalid arguments.
var ErrStockInvalidInput = errors.New("stock: invalid input")

// StockLedgerDeps bundles the collaborators required to construct a stock ledger.
type StockLedgerDeps struct {
	Products repositories.ProductRepository
	Events   StockEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type stockLedger struct {
	products repositories.ProductRepository
	events   StockEventPublisher
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewStockLedger wires dependencies into a concrete StockLedger implementation.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("stock ledger: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &stockLedger{
		products: deps.Products,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Apply adjusts variant stock counters for every delta in a single transaction
// and publishes one audit event per applied movement. Unresolved products and
// variants are logged and skipped rather than failing the batch; publishing
// failures never propagate to the caller.
func (l *stockLedger) Apply(ctx context.Context, cmd StockLedgerCommand) ([]repositories.StockMovement, error) {
	if len(cmd.Deltas) == 0 {
		return nil, fmt.Errorf("%w: at least one delta is required", ErrStockInvalidInput)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrStockInvalidInput)
	}
	for _, delta := range cmd.Deltas {
		if strings.TrimSpace(delta.ProductID) == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
		}
		if delta.Quantity == 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be non-zero", ErrStockInvalidInput, delta.ProductID)
		}
	}

	now := l.clock()
	movements, err := l.products.ApplyStockDeltas(ctx, cmd.Deltas, now)
	if err != nil {
		return nil, err
	}

	for _, movement := range movements {
		if movement.Missing {
			l.logger(ctx, "stock_variant_unresolved", map[string]any{
				"orderId":   cmd.OrderID,
				"productId": movement.ProductID,
				"requested": movement.Requested,
				"reason":    reason,
			})
			continue
		}
		l.publish(ctx, StockLedgerEvent{
			OrderID:        cmd.OrderID,
			ProductID:      movement.ProductID,
			VariantID:      movement.VariantID,
			VariantName:    movement.VariantName,
			Delta:          movement.Applied,
			ResultingStock: movement.ResultingStock,
			ResultingTotal: movement.ResultingTotal,
			Reason:         reason,
			OccurredAt:     now,
		})
	}

	return movements, nil
}

func (l *stockLedger) publish(ctx context.Context, event StockLedgerEvent) {
	if l.events == nil {
		return
	}
	if _, err := l.events.PublishStockEvent(ctx, event); err != nil {
		l.logger(ctx, "stock_event_publish_failed", map[string]any{
			"productId": event.ProductID,
			"variantId": event.VariantID,
			"reason":    event.Reason,
			"error":     err.Error(),
		})
	}
}
