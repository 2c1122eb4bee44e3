package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/wahret-zmen/api/internal/domain"
	pfirestore "github.com/wahret-zmen/api/internal/platform/firestore"
)

const ordersCollection = "orders"

// OrderRepository persists customer orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs an OrderRepository bound to the orders collection.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

type orderDocument struct {
	CustomerName string              `firestore:"name"`
	Email        string              `firestore:"email"`
	Phone        string              `firestore:"phone"`
	Address      addressDocument     `firestore:"address"`
	Lines        []orderLineDocument `firestore:"products"`
	TotalPrice   float64             `firestore:"totalPrice"`
	Status       string              `firestore:"status"`
	IsPaid       bool                `firestore:"isPaid"`
	IsDelivered  bool                `firestore:"isDelivered"`
	LineProgress map[string]int      `firestore:"productProgress"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
}

type addressDocument struct {
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Country string `firestore:"country"`
	Zipcode string `firestore:"zipcode"`
}

type orderLineDocument struct {
	ProductID string           `firestore:"productId"`
	Quantity  int              `firestore:"quantity"`
	UnitPrice float64          `firestore:"unitPrice"`
	Variant   snapshotDocument `firestore:"color"`
}

type snapshotDocument struct {
	VariantID string `firestore:"id"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Variant: snapshotDocument{
				VariantID: line.Variant.VariantID,
				Name:      line.Variant.Name,
				Image:     line.Variant.Image,
			},
		})
	}
	progress := make(map[string]int, len(order.LineProgress))
	for key, value := range order.LineProgress {
		progress[key] = value
	}
	return orderDocument{
		CustomerName: order.CustomerName,
		Email:        order.Email,
		Phone:        order.Phone,
		Address: addressDocument{
			Street:  order.Address.Street,
			City:    order.Address.City,
			State:   order.Address.State,
			Country: order.Address.Country,
			Zipcode: order.Address.Zipcode,
		},
		Lines:        lines,
		TotalPrice:   order.TotalPrice,
		Status:       order.Status,
		IsPaid:       order.IsPaid,
		IsDelivered:  order.IsDelivered,
		LineProgress: progress,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Lines))
	for _, line := range d.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Variant: domain.VariantSnapshot{
				VariantID: line.Variant.VariantID,
				Name:      line.Variant.Name,
				Image:     line.Variant.Image,
			},
		})
	}
	progress := make(map[string]int, len(d.LineProgress))
	for key, value := range d.LineProgress {
		progress[key] = value
	}
	return domain.Order{
		ID:           id,
		CustomerName: d.CustomerName,
		Email:        d.Email,
		Phone:        d.Phone,
		Address: domain.Address{
			Street:  d.Address.Street,
			City:    d.Address.City,
			State:   d.Address.State,
			Country: d.Address.Country,
			Zipcode: d.Address.Zipcode,
		},
		Lines:        lines,
		TotalPrice:   d.TotalPrice,
		Status:       d.Status,
		IsPaid:       d.IsPaid,
		IsDelivered:  d.IsDelivered,
		LineProgress: progress,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.orders.Set(ctx, order.ID, newOrderDocument(order))
	return err
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	_, err := r.orders.Delete(ctx, orderID, firestore.Exists)
	return err
}

// FindByID fetches one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByEmail returns the customer's orders, oldest first.
func (r *OrderRepository) ListByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("orders.list: email is required")
	}
	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("email", "==", email).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs), nil
}

// ListAll returns orders across all customers, newest first.
func (r *OrderRepository) ListAll(ctx context.Context, limit int) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	docs, err := r.orders.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			query = query.Limit(limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}
	return decodeOrders(docs), nil
}

func decodeOrders(docs []pfirestore.Document[orderDocument]) []domain.Order {
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders
}
