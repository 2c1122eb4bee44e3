package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/wahret-zmen/api/internal/platform/firestore"
	"github.com/wahret-zmen/api/internal/repositories"
)

// Registry bundles the Firestore backed repositories behind the repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	orders   *OrderRepository
	health   *HealthRepository
}

// NewRegistry wires every repository against a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		health:   &HealthRepository{provider: provider},
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Products returns the catalog repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Health returns the health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// HealthRepository reports Firestore connectivity for readiness probes.
type HealthRepository struct {
	provider *pfirestore.Provider
}

// Ping verifies the backing client can be initialised and reached.
func (r *HealthRepository) Ping(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return errors.New("health repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	// A read against a sentinel document exercises the connection; the
	// document itself is not required to exist.
	_, err = client.Collection("health").Doc("ping").Get(ctx)
	if err != nil {
		wrapped := pfirestore.WrapError("health.ping", err)
		if repositories.IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}
