package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/platform/auth"
	"github.com/wahret-zmen/api/internal/services"
)

type stubOrderService struct {
	createFn      func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	getFn         func(context.Context, string) (services.OrderView, error)
	listByEmailFn func(context.Context, string) ([]services.OrderView, error)
	listAllFn     func(context.Context, int) ([]services.OrderView, error)
	removeFn      func(context.Context, services.RemoveLineCommand) (domain.Order, error)
	deleteFn      func(context.Context, string) error
	updateFn      func(context.Context, services.UpdateOrderFlagsCommand) (domain.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetByID(ctx context.Context, orderID string) (services.OrderView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return services.OrderView{}, errors.New("not implemented")
}

func (s *stubOrderService) ListByEmail(ctx context.Context, email string) ([]services.OrderView, error) {
	if s.listByEmailFn != nil {
		return s.listByEmailFn(ctx, email)
	}
	return nil, nil
}

func (s *stubOrderService) ListAll(ctx context.Context, limit int) ([]services.OrderView, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx, limit)
	}
	return nil, nil
}

func (s *stubOrderService) RemoveLine(ctx context.Context, cmd services.RemoveLineCommand) (domain.Order, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderService) UpdateFlags(ctx context.Context, cmd services.UpdateOrderFlagsCommand) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubNotificationService struct {
	sendFn func(context.Context, services.OrderProgressNotification) error
}

func (s *stubNotificationService) SendOrderProgress(ctx context.Context, cmd services.OrderProgressNotification) error {
	if s.sendFn != nil {
		return s.sendFn(ctx, cmd)
	}
	return nil
}

func newAdminGuard(t *testing.T) *auth.AdminGuard {
	t.Helper()
	guard, err := auth.NewAdminGuard("test-secret")
	if err != nil {
		t.Fatalf("NewAdminGuard: %v", err)
	}
	return guard
}

func adminHeader(t *testing.T, guard *auth.AdminGuard) string {
	t.Helper()
	token, err := guard.IssueToken("staff-1", "staff@example.com")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return "Bearer " + token
}

func newOrderRouter(guard *auth.AdminGuard, orders services.OrderService, notify services.NotificationService) http.Handler {
	handlers := NewOrderHandlers(guard, nil, orders, notify)
	return NewRouter(WithOrderRoutes(handlers.Routes))
}

func sampleOrder() domain.Order {
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
		LineProgress: map[string]int{"p1|Rouge": 0},
		CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	guard := newAdminGuard(t)
	var captured services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	body := `{
		"name": "Amina",
		"email": "amina@example.com",
		"phone": "123",
		"address": {"street": "1 rue", "city": "Tunis", "state": "Tunis", "country": "TN", "zipcode": "1000"},
		"products": [{"productId": "p1", "quantity": 2, "color": {"id": "var-red", "colorName": "Rouge"}}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rr.Code, rr.Body.String())
	}
	if len(captured.Lines) != 1 || captured.Lines[0].Key.VariantID != "var-red" {
		t.Fatalf("command not decoded: %+v", captured)
	}
	var payload orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.ID != "order-1" || payload.TotalPrice != 99.98 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Products[0].Color.Name != "Rouge" {
		t.Fatalf("snapshot missing: %+v", payload.Products[0])
	}
}

func TestCreateOrderRequiresAdminToken(t *testing.T) {
	router := newOrderRouter(newAdminGuard(t), &stubOrderService{}, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestCreateOrderValidationFailure(t *testing.T) {
	guard := newAdminGuard(t)
	orders := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: address is incomplete", services.ErrOrderInvalidInput)
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("error code = %v", body["error"])
	}
}

func TestRemoveLineInvalidQuantity(t *testing.T) {
	guard := newAdminGuard(t)
	orders := &stubOrderService{
		removeFn: func(context.Context, services.RemoveLineCommand) (domain.Order, error) {
			return domain.Order{}, fmt.Errorf("%w: 5 exceeds line quantity 2", services.ErrOrderInvalidQuantity)
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	body := `{"productId": "p1", "quantity": 5, "color": {"colorName": "Rouge"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/order-1:remove-line", strings.NewReader(body))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var respBody map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &respBody); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if respBody["error"] != "invalid_quantity" {
		t.Fatalf("error code = %v", respBody["error"])
	}
}

func TestRemoveLineReportsDeletedOrder(t *testing.T) {
	guard := newAdminGuard(t)
	orders := &stubOrderService{
		removeFn: func(_ context.Context, cmd services.RemoveLineCommand) (domain.Order, error) {
			order := sampleOrder()
			order.Lines = nil
			order.TotalPrice = 0
			return order, nil
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	body := `{"productId": "p1", "quantity": 2, "color": {"colorName": "Rouge"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/order-1:remove-line", strings.NewReader(body))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp removeLineResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Deleted || resp.Order != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpdateOrderFlagsEndpoint(t *testing.T) {
	guard := newAdminGuard(t)
	var captured services.UpdateOrderFlagsCommand
	orders := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderFlagsCommand) (domain.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.IsPaid = true
			return order, nil
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	body := `{"isPaid": true, "productProgress": {"p1|Rouge": 60}}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/orders/order-1", strings.NewReader(body))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if captured.IsPaid == nil || !*captured.IsPaid {
		t.Fatalf("isPaid not decoded: %+v", captured)
	}
	if captured.IsDelivered != nil {
		t.Fatal("isDelivered should stay nil when absent")
	}
	if captured.LineProgress["p1|Rouge"] != 60 {
		t.Fatalf("progress not decoded: %+v", captured.LineProgress)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, string) (services.OrderView, error) {
			return services.OrderView{}, fmt.Errorf("%w: nope", services.ErrOrderNotFound)
		},
	}
	router := newOrderRouter(newAdminGuard(t), orders, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestListByEmailEndpoint(t *testing.T) {
	orders := &stubOrderService{
		listByEmailFn: func(_ context.Context, email string) ([]services.OrderView, error) {
			if email != "amina@example.com" {
				t.Fatalf("email = %q", email)
			}
			view := services.OrderView{Order: sampleOrder()}
			view.Lines = []services.OrderLineView{{
				Line:         view.Order.Lines[0],
				ProductTitle: "Kaftan",
				ProductCover: "https://img/cover.jpg",
			}}
			return []services.OrderView{view}, nil
		},
	}
	router := newOrderRouter(newAdminGuard(t), orders, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/email/amina@example.com", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(resp.Items))
	}
	if resp.Items[0].Products[0].ProductTitle != "Kaftan" {
		t.Fatalf("display fields missing: %+v", resp.Items[0].Products[0])
	}
}

func TestNotifyEndpoint(t *testing.T) {
	guard := newAdminGuard(t)
	var captured services.OrderProgressNotification
	notify := &stubNotificationService{
		sendFn: func(_ context.Context, cmd services.OrderProgressNotification) error {
			captured = cmd
			return nil
		},
	}
	router := newOrderRouter(guard, &stubOrderService{}, notify)

	body := `{"productId": "p1", "color": {"colorName": "Rouge"}, "progress": 100, "articleIndex": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/order-1:notify", strings.NewReader(body))
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "order-1" || captured.Progress != 100 || captured.ArticleIndex != 2 {
		t.Fatalf("command not decoded: %+v", captured)
	}
	if captured.Key.Name != "Rouge" {
		t.Fatalf("variant key not decoded: %+v", captured.Key)
	}
}

func TestDeleteOrderEndpoint(t *testing.T) {
	guard := newAdminGuard(t)
	deleted := ""
	orders := &stubOrderService{
		deleteFn: func(_ context.Context, orderID string) error {
			deleted = orderID
			return nil
		},
	}
	router := newOrderRouter(guard, orders, &stubNotificationService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/orders/order-1", nil)
	req.Header.Set("Authorization", adminHeader(t, guard))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if deleted != "order-1" {
		t.Fatalf("deleted = %q", deleted)
	}
}
