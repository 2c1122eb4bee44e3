package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/repositories"
)

type stubProductRepo struct {
	insertFn func(context.Context, domain.Product) error
	updateFn func(context.Context, domain.Product) error
	deleteFn func(context.Context, string) error
	findFn   func(context.Context, string) (domain.Product, error)
	listFn   func(context.Context, repositories.ProductListFilter) ([]domain.Product, error)
	applyFn  func(context.Context, []repositories.StockDelta, time.Time) ([]repositories.StockMovement, error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Delete(ctx context.Context, productID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, productID)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubProductRepo) ApplyStockDeltas(ctx context.Context, deltas []repositories.StockDelta, now time.Time) ([]repositories.StockMovement, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, deltas, now)
	}
	return nil, nil
}

type stubOrderRepo struct {
	insertFn      func(context.Context, domain.Order) error
	updateFn      func(context.Context, domain.Order) error
	deleteFn      func(context.Context, string) error
	findFn        func(context.Context, string) (domain.Order, error)
	listByEmailFn func(context.Context, string) ([]domain.Order, error)
	listAllFn     func(context.Context, int) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	if s.listByEmailFn != nil {
		return s.listByEmailFn(ctx, email)
	}
	return nil, nil
}

func (s *stubOrderRepo) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, limit)
	}
	return nil, nil
}

type stubLedger struct {
	applyFn  func(context.Context, StockLedgerCommand) ([]repositories.StockMovement, error)
	commands []StockLedgerCommand
}

func (s *stubLedger) Apply(ctx context.Context, cmd StockLedgerCommand) ([]repositories.StockMovement, error) {
	s.commands = append(s.commands, cmd)
	if s.applyFn != nil {
		return s.applyFn(ctx, cmd)
	}
	return nil, nil
}

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string       { return e.msg }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testProduct() domain.Product {
	return domain.Product{
		ID:         "p1",
		Title:      "Kaftan",
		CoverImage: "https://img/cover.jpg",
		PriceNow:   49.99,
		PriceBase:  60,
		Variants: []domain.ProductVariant{
			{ID: "var-red", Name: domain.PlainName("Rouge"), Images: []string{"https://img/red.jpg"}, Stock: 5},
			{ID: "var-blue", Name: domain.PlainName("Bleu"), Images: []string{"https://img/blue.jpg"}, Stock: 2},
		},
		TotalStock: 7,
	}
}

func newTestOrderService(t *testing.T, orders *stubOrderRepo, products *stubProductRepo, ledger *stubLedger) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Products:    products,
		Ledger:      ledger,
		Clock:       fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "order-1" },
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func TestCreateOrderPricesFromCatalogAndDecrementsStock(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			if id != "p1" {
				return domain.Product{}, &notFoundError{msg: "missing"}
			}
			return testProduct(), nil
		},
	}
	var inserted *domain.Order
	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = &order
			return nil
		},
	}
	ledger := &stubLedger{}
	svc := newTestOrderService(t, orders, products, ledger)

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		CustomerName: "Amina",
		Email:        "Amina@Example.com",
		Phone:        "+216 20 000 000",
		Address:      domain.Address{Street: "1 rue", City: "Tunis", State: "Tunis", Country: "TN", Zipcode: "1000"},
		Lines: []OrderLineInput{
			{ProductID: "p1", Quantity: 3, Key: domain.VariantKey{Name: "Rouge"}},
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if inserted == nil {
		t.Fatal("expected order to be persisted")
	}
	if order.Email != "amina@example.com" {
		t.Fatalf("email not normalised: %q", order.Email)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %q", order.Status)
	}
	if got := order.Lines[0].UnitPrice; got != 49.99 {
		t.Fatalf("unit price = %v, want catalog price 49.99", got)
	}
	if got := order.TotalPrice; got != 149.97 {
		t.Fatalf("total = %v, want 149.97", got)
	}
	if got := order.Lines[0].Variant.VariantID; got != "var-red" {
		t.Fatalf("variant id = %q", got)
	}
	if got, ok := order.LineProgress[domain.LineKey("p1", "Rouge")]; !ok || got != 0 {
		t.Fatalf("line progress not initialised: %v", order.LineProgress)
	}

	if len(ledger.commands) != 1 {
		t.Fatalf("ledger commands = %d, want 1", len(ledger.commands))
	}
	cmd := ledger.commands[0]
	if cmd.Reason != StockReasonOrderCreated {
		t.Fatalf("reason = %q", cmd.Reason)
	}
	if len(cmd.Deltas) != 1 || cmd.Deltas[0].Quantity != -3 {
		t.Fatalf("unexpected deltas: %+v", cmd.Deltas)
	}
	if cmd.Deltas[0].Key.VariantID != "var-red" {
		t.Fatalf("delta key = %+v", cmd.Deltas[0].Key)
	}
}

func TestCreateOrderRejectsBeforeAnyWrite(t *testing.T) {
	inserts := 0
	orders := &stubOrderRepo{
		insertFn: func(context.Context, domain.Order) error {
			inserts++
			return nil
		},
	}
	products := &stubProductRepo{
		findFn: func(_ context.Context, id string) (domain.Product, error) {
			if id == "missing" {
				return domain.Product{}, &notFoundError{msg: "missing"}
			}
			return testProduct(), nil
		},
	}
	ledger := &stubLedger{}
	svc := newTestOrderService(t, orders, products, ledger)

	valid := CreateOrderCommand{
		CustomerName: "Amina",
		Email:        "amina@example.com",
		Phone:        "123",
		Address:      domain.Address{Street: "1 rue", City: "Tunis", State: "Tunis", Country: "TN", Zipcode: "1000"},
		Lines:        []OrderLineInput{{ProductID: "p1", Quantity: 1}},
	}

	cases := []struct {
		name   string
		mutate func(*CreateOrderCommand)
	}{
		{"missing name", func(c *CreateOrderCommand) { c.CustomerName = " " }},
		{"incomplete address", func(c *CreateOrderCommand) { c.Address.Zipcode = "" }},
		{"no lines", func(c *CreateOrderCommand) { c.Lines = nil }},
		{"zero quantity", func(c *CreateOrderCommand) { c.Lines[0].Quantity = 0 }},
		{"unknown product", func(c *CreateOrderCommand) { c.Lines[0].ProductID = "missing" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := valid
			cmd.Lines = append([]OrderLineInput(nil), valid.Lines...)
			tc.mutate(&cmd)
			if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("err = %v, want ErrOrderInvalidInput", err)
			}
		})
	}
	if inserts != 0 {
		t.Fatalf("inserts = %d, want 0", inserts)
	}
	if len(ledger.commands) != 0 {
		t.Fatalf("ledger touched on rejected intake: %+v", ledger.commands)
	}
}

func TestCreateOrderSnapshotFallsBackToCover(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			product := testProduct()
			product.Variants = nil
			return product, nil
		},
	}
	orders := &stubOrderRepo{}
	svc := newTestOrderService(t, orders, products, &stubLedger{})

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		CustomerName: "Amina",
		Email:        "amina@example.com",
		Phone:        "123",
		Address:      domain.Address{Street: "1 rue", City: "Tunis", State: "Tunis", Country: "TN", Zipcode: "1000"},
		Lines:        []OrderLineInput{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	snapshot := order.Lines[0].Variant
	if snapshot.Name != "Original" {
		t.Fatalf("snapshot name = %q, want placeholder", snapshot.Name)
	}
	if snapshot.Image != "https://img/cover.jpg" {
		t.Fatalf("snapshot image = %q, want cover image", snapshot.Image)
	}
}

func TestCreateOrderSurvivesLedgerFailure(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) { return testProduct(), nil },
	}
	orders := &stubOrderRepo{}
	ledger := &stubLedger{
		applyFn: func(context.Context, StockLedgerCommand) ([]repositories.StockMovement, error) {
			return nil, errors.New("firestore down")
		},
	}
	svc := newTestOrderService(t, orders, products, ledger)

	order, err := svc.Create(context.Background(), CreateOrderCommand{
		CustomerName: "Amina",
		Email:        "amina@example.com",
		Phone:        "123",
		Address:      domain.Address{Street: "1 rue", City: "Tunis", State: "Tunis", Country: "TN", Zipcode: "1000"},
		Lines:        []OrderLineInput{{ProductID: "p1", Quantity: 2, Key: domain.VariantKey{VariantID: "var-red"}}},
	})
	if err != nil {
		t.Fatalf("Create should tolerate ledger failure, got %v", err)
	}
	if order.ID == "" {
		t.Fatal("expected a created order")
	}
}

func storedOrder() domain.Order {
	return domain.Order{
		ID:           "order-1",
		CustomerName: "Amina",
		Email:        "amina@example.com",
		Phone:        "123",
		Address:      domain.Address{Street: "1 rue", City: "Tunis", State: "Tunis", Country: "TN", Zipcode: "1000"},
		Lines: []domain.OrderLine{
			{
				ProductID: "p1",
				Quantity:  2,
				UnitPrice: 49.99,
				Variant:   domain.VariantSnapshot{VariantID: "var-red", Name: "Rouge", Image: "https://img/red.jpg"},
			},
		},
		TotalPrice:   99.98,
		Status:       domain.OrderStatusPending,
		LineProgress: map[string]int{"p1|Rouge": 40},
		CreatedAt:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRemoveLineRejectsExcessQuantity(t *testing.T) {
	updates := 0
	orders := &stubOrderRepo{
		findFn:   func(context.Context, string) (domain.Order, error) { return storedOrder(), nil },
		updateFn: func(context.Context, domain.Order) error { updates++; return nil },
	}
	ledger := &stubLedger{}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, ledger)

	_, err := svc.RemoveLine(context.Background(), RemoveLineCommand{
		OrderID:   "order-1",
		ProductID: "p1",
		Key:       domain.VariantKey{Name: "Rouge"},
		Quantity:  5,
	})
	if !errors.Is(err, ErrOrderInvalidQuantity) {
		t.Fatalf("err = %v, want ErrOrderInvalidQuantity", err)
	}
	if updates != 0 || len(ledger.commands) != 0 {
		t.Fatal("order or stock mutated on rejected removal")
	}
}

func TestRemoveLineLastLineDeletesOrder(t *testing.T) {
	deleted := ""
	orders := &stubOrderRepo{
		findFn:   func(context.Context, string) (domain.Order, error) { return storedOrder(), nil },
		deleteFn: func(_ context.Context, id string) error { deleted = id; return nil },
	}
	ledger := &stubLedger{}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, ledger)

	order, err := svc.RemoveLine(context.Background(), RemoveLineCommand{
		OrderID:   "order-1",
		ProductID: "p1",
		Key:       domain.VariantKey{Name: "Rouge"},
		Quantity:  2,
	})
	if err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if deleted != "order-1" {
		t.Fatalf("deleted = %q, want order-1", deleted)
	}
	if len(order.Lines) != 0 {
		t.Fatalf("lines = %d, want 0", len(order.Lines))
	}
	if len(ledger.commands) != 1 {
		t.Fatalf("ledger commands = %d, want 1", len(ledger.commands))
	}
	cmd := ledger.commands[0]
	if cmd.Reason != StockReasonLineRemoved {
		t.Fatalf("reason = %q", cmd.Reason)
	}
	if cmd.Deltas[0].Quantity != 2 {
		t.Fatalf("restore quantity = %d, want 2", cmd.Deltas[0].Quantity)
	}
}

func TestRemoveLineRepricesFromCurrentCatalog(t *testing.T) {
	stored := storedOrder()
	stored.Lines[0].Quantity = 3
	var updated *domain.Order
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return stored, nil },
		updateFn: func(_ context.Context, order domain.Order) error {
			updated = &order
			return nil
		},
	}
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			product := testProduct()
			product.PriceNow = 39.99
			return product, nil
		},
	}
	svc := newTestOrderService(t, orders, products, &stubLedger{})

	order, err := svc.RemoveLine(context.Background(), RemoveLineCommand{
		OrderID:   "order-1",
		ProductID: "p1",
		Key:       domain.VariantKey{VariantID: "var-red"},
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if updated == nil {
		t.Fatal("expected order update")
	}
	if got := order.Lines[0].Quantity; got != 2 {
		t.Fatalf("remaining quantity = %d, want 2", got)
	}
	// The total follows the current catalog price while the line snapshot
	// keeps the price captured at intake.
	if got := order.TotalPrice; got != 79.98 {
		t.Fatalf("total = %v, want 79.98", got)
	}
	if got := order.Lines[0].UnitPrice; got != 49.99 {
		t.Fatalf("snapshot unit price moved: %v", got)
	}
}

func TestRemoveLineUnknownLine(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return storedOrder(), nil },
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &stubLedger{})

	_, err := svc.RemoveLine(context.Background(), RemoveLineCommand{
		OrderID:   "order-1",
		ProductID: "p1",
		Key:       domain.VariantKey{Name: "Vert"},
		Quantity:  1,
	})
	if !errors.Is(err, ErrOrderLineNotFound) {
		t.Fatalf("err = %v, want ErrOrderLineNotFound", err)
	}
}

func TestRemoveLineNeverGuessesBetweenVariants(t *testing.T) {
	// Two colourways of the same product, both labelled Rouge.
	twoVariants := storedOrder()
	twoVariants.Lines = append(twoVariants.Lines, domain.OrderLine{
		ProductID: "p1",
		Quantity:  2,
		UnitPrice: 49.99,
		Variant:   domain.VariantSnapshot{VariantID: "var-red-2", Name: "Rouge", Image: "https://img/blue.jpg"},
	})

	cases := []struct {
		name string
		key  domain.VariantKey
	}{
		{"empty key", domain.VariantKey{}},
		{"name matching both lines", domain.VariantKey{Name: "Rouge"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mutations := 0
			orders := &stubOrderRepo{
				findFn:   func(context.Context, string) (domain.Order, error) { return twoVariants, nil },
				updateFn: func(context.Context, domain.Order) error { mutations++; return nil },
				deleteFn: func(context.Context, string) error { mutations++; return nil },
			}
			ledger := &stubLedger{}
			svc := newTestOrderService(t, orders, &stubProductRepo{}, ledger)

			_, err := svc.RemoveLine(context.Background(), RemoveLineCommand{
				OrderID:   "order-1",
				ProductID: "p1",
				Key:       tc.key,
				Quantity:  1,
			})
			if !errors.Is(err, ErrOrderLineNotFound) {
				t.Fatalf("err = %v, want ErrOrderLineNotFound", err)
			}
			if mutations != 0 {
				t.Fatalf("order mutations = %d, want 0", mutations)
			}
			if len(ledger.commands) != 0 {
				t.Fatalf("ledger commands = %d, want 0", len(ledger.commands))
			}
		})
	}
}

func TestDeleteRestoresEveryLine(t *testing.T) {
	stored := storedOrder()
	stored.Lines = append(stored.Lines, domain.OrderLine{
		ProductID: "p2",
		Quantity:  1,
		UnitPrice: 10,
		Variant:   domain.VariantSnapshot{Name: "Bleu"},
	})
	deleted := ""
	orders := &stubOrderRepo{
		findFn:   func(context.Context, string) (domain.Order, error) { return stored, nil },
		deleteFn: func(_ context.Context, id string) error { deleted = id; return nil },
	}
	ledger := &stubLedger{}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, ledger)

	if err := svc.Delete(context.Background(), "order-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted != "order-1" {
		t.Fatalf("deleted = %q", deleted)
	}
	if len(ledger.commands) != 1 {
		t.Fatalf("ledger commands = %d, want 1", len(ledger.commands))
	}
	cmd := ledger.commands[0]
	if cmd.Reason != StockReasonOrderDeleted {
		t.Fatalf("reason = %q", cmd.Reason)
	}
	if len(cmd.Deltas) != 2 || cmd.Deltas[0].Quantity != 2 || cmd.Deltas[1].Quantity != 1 {
		t.Fatalf("unexpected restore deltas: %+v", cmd.Deltas)
	}
}

func TestDeleteUnknownOrder(t *testing.T) {
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return domain.Order{}, &notFoundError{msg: "gone"}
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &stubLedger{})

	if err := svc.Delete(context.Background(), "nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestUpdateFlagsClampsProgress(t *testing.T) {
	var updated *domain.Order
	orders := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) { return storedOrder(), nil },
		updateFn: func(_ context.Context, order domain.Order) error {
			updated = &order
			return nil
		},
	}
	svc := newTestOrderService(t, orders, &stubProductRepo{}, &stubLedger{})

	paid := true
	order, err := svc.UpdateFlags(context.Background(), UpdateOrderFlagsCommand{
		OrderID: "order-1",
		IsPaid:  &paid,
		LineProgress: map[string]int{
			"p1|Rouge": 150,
			"p1|Bleu":  -5,
		},
	})
	if err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	if updated == nil {
		t.Fatal("expected order update")
	}
	if !order.IsPaid {
		t.Fatal("isPaid not applied")
	}
	if order.IsDelivered {
		t.Fatal("isDelivered should be untouched")
	}
	if got := order.LineProgress["p1|Rouge"]; got != 100 {
		t.Fatalf("progress = %d, want clamped 100", got)
	}
	if got := order.LineProgress["p1|Bleu"]; got != 0 {
		t.Fatalf("progress = %d, want clamped 0", got)
	}
}

func TestListByEmailAttachesDisplayFields(t *testing.T) {
	orders := &stubOrderRepo{
		listByEmailFn: func(_ context.Context, email string) ([]domain.Order, error) {
			if email != "amina@example.com" {
				t.Fatalf("email not normalised: %q", email)
			}
			return []domain.Order{storedOrder()}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) { return testProduct(), nil },
	}
	svc := newTestOrderService(t, orders, products, &stubLedger{})

	views, err := svc.ListByEmail(context.Background(), " Amina@Example.com ")
	if err != nil {
		t.Fatalf("ListByEmail: %v", err)
	}
	if len(views) != 1 || len(views[0].Lines) != 1 {
		t.Fatalf("unexpected views: %+v", views)
	}
	line := views[0].Lines[0]
	if line.ProductTitle != "Kaftan" || line.ProductCover != "https://img/cover.jpg" {
		t.Fatalf("display fields not attached: %+v", line)
	}
}

func TestListAllToleratesMissingProducts(t *testing.T) {
	orders := &stubOrderRepo{
		listAllFn: func(context.Context, int) ([]domain.Order, error) {
			return []domain.Order{storedOrder()}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, &notFoundError{msg: "gone"}
		},
	}
	svc := newTestOrderService(t, orders, products, &stubLedger{})

	views, err := svc.ListAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if got := views[0].Lines[0].ProductTitle; got != "" {
		t.Fatalf("title = %q, want empty for missing product", got)
	}
}
