package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/platform/auth"
	"github.com/wahret-zmen/api/internal/platform/httpx"
	"github.com/wahret-zmen/api/internal/services"
)

const (
	maxOrderBodySize   = 64 * 1024
	defaultAdminLimit  = 200
	maxAdminOrderLimit = 500
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is empty")
)

// OrderHandlers exposes order intake, mutation, and query endpoints. Customer
// reads ride on Firebase identities; everything else is staff-only.
type OrderHandlers struct {
	guard  *auth.AdminGuard
	authn  *auth.Authenticator
	orders services.OrderService
	notify services.NotificationService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(guard *auth.AdminGuard, authn *auth.Authenticator, orders services.OrderService, notify services.NotificationService) *OrderHandlers {
	return &OrderHandlers{
		guard:  guard,
		authn:  authn,
		orders: orders,
		notify: notify,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth())
		}
		r.Get("/email/{email}", h.listByEmail)
		r.Get("/{orderID}", h.getOrder)
	})

	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard.RequireAdmin())
		}
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Patch("/{orderID}", h.updateOrder)
		r.Delete("/{orderID}", h.deleteOrder)
		r.Post("/{orderID}:remove-line", h.removeLine)
		r.Post("/{orderID}:notify", h.notifyProgress)
	})
}

type addressPayload struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	Zipcode string `json:"zipcode"`
}

type variantKeyPayload struct {
	ID    string `json:"id"`
	Image string `json:"image"`
	Name  string `json:"colorName"`
}

func (p variantKeyPayload) toKey() domain.VariantKey {
	return domain.VariantKey{
		VariantID: strings.TrimSpace(p.ID),
		Image:     strings.TrimSpace(p.Image),
		Name:      strings.TrimSpace(p.Name),
	}
}

type createOrderRequest struct {
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Phone    string             `json:"phone"`
	Address  addressPayload     `json:"address"`
	Products []orderLineRequest `json:"products"`
}

type orderLineRequest struct {
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Color     variantKeyPayload `json:"color"`
}

type updateOrderRequest struct {
	IsPaid          *bool          `json:"isPaid"`
	IsDelivered     *bool          `json:"isDelivered"`
	ProductProgress map[string]int `json:"productProgress"`
}

type removeLineRequest struct {
	ProductID string            `json:"productId"`
	Quantity  int               `json:"quantity"`
	Color     variantKeyPayload `json:"color"`
}

type notifyRequest struct {
	ProductID    string            `json:"productId"`
	Color        variantKeyPayload `json:"color"`
	Progress     int               `json:"progress"`
	ArticleIndex int               `json:"articleIndex"`
}

type orderPayload struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Email           string             `json:"email"`
	Phone           string             `json:"phone"`
	Address         addressPayload     `json:"address"`
	Products        []orderLinePayload `json:"products"`
	TotalPrice      float64            `json:"totalPrice"`
	Status          string             `json:"status"`
	IsPaid          bool               `json:"isPaid"`
	IsDelivered     bool               `json:"isDelivered"`
	ProductProgress map[string]int     `json:"productProgress"`
	CreatedAt       string             `json:"createdAt"`
	UpdatedAt       string             `json:"updatedAt"`
}

type orderLinePayload struct {
	ProductID    string                 `json:"productId"`
	ProductTitle string                 `json:"productTitle,omitempty"`
	CoverImage   string                 `json:"coverImage,omitempty"`
	Quantity     int                    `json:"quantity"`
	UnitPrice    float64                `json:"unitPrice"`
	Color        variantSnapshotPayload `json:"color"`
}

type variantSnapshotPayload struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"colorName"`
	Image string `json:"image,omitempty"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type removeLineResponse struct {
	Deleted bool          `json:"deleted"`
	Order   *orderPayload `json:"order,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	lines := make([]services.OrderLineInput, 0, len(req.Products))
	for _, line := range req.Products {
		lines = append(lines, services.OrderLineInput{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
			Key:       line.Color.toKey(),
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		CustomerName: req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Address: domain.Address{
			Street:  strings.TrimSpace(req.Address.Street),
			City:    strings.TrimSpace(req.Address.City),
			State:   strings.TrimSpace(req.Address.State),
			Country: strings.TrimSpace(req.Address.Country),
			Zipcode: strings.TrimSpace(req.Address.Zipcode),
		},
		Lines: lines,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(services.OrderView{Order: order, Lines: bareLineViews(order)}))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	limit := parseLimitParam(r.URL.Query().Get("limit"), defaultAdminLimit, maxAdminOrderLimit)
	views, err := h.orders.ListAll(ctx, limit)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: buildOrderPayloads(views)})
}

func (h *OrderHandlers) listByEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	email := strings.TrimSpace(chi.URLParam(r, "email"))
	views, err := h.orders.ListByEmail(ctx, email)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: buildOrderPayloads(views)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	view, err := h.orders.GetByID(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(view))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	var req updateOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdateFlags(ctx, services.UpdateOrderFlagsCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		IsPaid:       req.IsPaid,
		IsDelivered:  req.IsDelivered,
		LineProgress: req.ProductProgress,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(services.OrderView{Order: order, Lines: bareLineViews(order)}))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	if err := h.orders.Delete(ctx, strings.TrimSpace(chi.URLParam(r, "orderID"))); err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *OrderHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w, "order")
		return
	}

	var req removeLineRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.RemoveLine(ctx, services.RemoveLineCommand{
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		ProductID: strings.TrimSpace(req.ProductID),
		Key:       req.Color.toKey(),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if len(order.Lines) == 0 {
		writeJSONResponse(w, http.StatusOK, removeLineResponse{Deleted: true})
		return
	}
	payload := buildOrderPayload(services.OrderView{Order: order, Lines: bareLineViews(order)})
	writeJSONResponse(w, http.StatusOK, removeLineResponse{Order: &payload})
}

func (h *OrderHandlers) notifyProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notify == nil {
		writeServiceUnavailable(ctx, w, "notification")
		return
	}

	var req notifyRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	err := h.notify.SendOrderProgress(ctx, services.OrderProgressNotification{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		ProductID:    strings.TrimSpace(req.ProductID),
		Key:          req.Color.toKey(),
		Progress:     req.Progress,
		ArticleIndex: req.ArticleIndex,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "sent"})
}

func buildOrderPayloads(views []services.OrderView) []orderPayload {
	payloads := make([]orderPayload, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, buildOrderPayload(view))
	}
	return payloads
}

func buildOrderPayload(view services.OrderView) orderPayload {
	order := view.Order
	lines := make([]orderLinePayload, 0, len(view.Lines))
	for _, line := range view.Lines {
		lines = append(lines, orderLinePayload{
			ProductID:    line.Line.ProductID,
			ProductTitle: line.ProductTitle,
			CoverImage:   line.ProductCover,
			Quantity:     line.Line.Quantity,
			UnitPrice:    line.Line.UnitPrice,
			Color: variantSnapshotPayload{
				ID:    line.Line.Variant.VariantID,
				Name:  line.Line.Variant.Name,
				Image: line.Line.Variant.Image,
			},
		})
	}
	return orderPayload{
		ID:    order.ID,
		Name:  order.CustomerName,
		Email: order.Email,
		Phone: order.Phone,
		Address: addressPayload{
			Street:  order.Address.Street,
			City:    order.Address.City,
			State:   order.Address.State,
			Country: order.Address.Country,
			Zipcode: order.Address.Zipcode,
		},
		Products:        lines,
		TotalPrice:      order.TotalPrice,
		Status:          order.Status,
		IsPaid:          order.IsPaid,
		IsDelivered:     order.IsDelivered,
		ProductProgress: order.LineProgress,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
}

// bareLineViews wraps an order's lines without catalog display lookups, for
// responses to mutations where the caller already knows the products.
func bareLineViews(order domain.Order) []services.OrderLineView {
	lines := make([]services.OrderLineView, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, services.OrderLineView{Line: line})
	}
	return lines
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_line_not_found", "order line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func parseLimitParam(raw string, fallback, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
