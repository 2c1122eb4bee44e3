package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/wahret-zmen/api/internal/domain"
	pfirestore "github.com/wahret-zmen/api/internal/platform/firestore"
	"github.com/wahret-zmen/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products in Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a ProductRepository bound to the products collection.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: products}, nil
}

type productDocument struct {
	Title       string            `firestore:"title"`
	Description string            `firestore:"description"`
	Category    string            `firestore:"category"`
	Craft       string            `firestore:"craft"`
	CoverImage  string            `firestore:"coverImage"`
	Variants    []variantDocument `firestore:"colors"`
	PriceBase   float64           `firestore:"oldPrice"`
	PriceNow    float64           `firestore:"newPrice"`
	TotalStock  int               `firestore:"stockQuantity"`
	Trending    bool              `firestore:"trending"`
	Rating      float64           `firestore:"rating"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

type variantDocument struct {
	ID     string   `firestore:"id"`
	Name   any      `firestore:"colorName"`
	Images []string `firestore:"images"`
	Stock  int      `firestore:"stock"`
}

func newProductDocument(product domain.Product) productDocument {
	variants := make([]variantDocument, 0, len(product.Variants))
	for _, variant := range product.Variants {
		variants = append(variants, variantDocument{
			ID:     variant.ID,
			Name:   encodeVariantName(variant.Name),
			Images: append([]string(nil), variant.Images...),
			Stock:  variant.Stock,
		})
	}
	return productDocument{
		Title:       product.Title,
		Description: product.Description,
		Category:    product.Category,
		Craft:       product.Craft,
		CoverImage:  product.CoverImage,
		Variants:    variants,
		PriceBase:   product.PriceBase,
		PriceNow:    product.PriceNow,
		TotalStock:  product.TotalStock,
		Trending:    product.Trending,
		Rating:      product.Rating,
		CreatedAt:   product.CreatedAt.UTC(),
		UpdatedAt:   product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make([]domain.ProductVariant, 0, len(d.Variants))
	for _, variant := range d.Variants {
		variants = append(variants, variant.toDomain())
	}
	return domain.Product{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Craft:       d.Craft,
		CoverImage:  d.CoverImage,
		Variants:    variants,
		PriceBase:   d.PriceBase,
		PriceNow:    d.PriceNow,
		TotalStock:  d.TotalStock,
		Trending:    d.Trending,
		Rating:      d.Rating,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d variantDocument) toDomain() domain.ProductVariant {
	return domain.ProductVariant{
		ID:     d.ID,
		Name:   decodeVariantName(d.Name),
		Images: append([]string(nil), d.Images...),
		Stock:  d.Stock,
	}
}

// encodeVariantName stores the plain form as a string and the localized form as a map,
// preserving the two historical shapes of the colorName field.
func encodeVariantName(name domain.VariantName) any {
	if name.Plain != "" {
		return name.Plain
	}
	if len(name.Localized) > 0 {
		forms := make(map[string]any, len(name.Localized))
		for locale, form := range name.Localized {
			forms[locale] = form
		}
		return forms
	}
	return ""
}

func decodeVariantName(raw any) domain.VariantName {
	switch v := raw.(type) {
	case string:
		return domain.PlainName(v)
	case map[string]any:
		forms := make(map[string]string, len(v))
		for locale, value := range v {
			if form, ok := value.(string); ok {
				forms[locale] = form
			}
		}
		return domain.LocalizedName(forms)
	default:
		return domain.VariantName{}
	}
}

// Insert creates the product document, failing when the ID already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	ref, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	_, err := r.products.Set(ctx, product.ID, newProductDocument(product))
	return err
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	_, err := r.products.Delete(ctx, productID, firestore.Exists)
	return err
}

// FindByID fetches one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns catalog products matching the filter, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	if r == nil || r.products == nil {
		return nil, errors.New("product repository not initialised")
	}
	docs, err := r.products.Query(ctx, func(query firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			query = query.Where("category", "==", category)
		}
		if filter.TrendingOnly {
			query = query.Where("trending", "==", true)
		}
		query = query.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return products, nil
}

// ApplyStockDeltas mutates variant counters inside a single transaction. Stock
// never goes below zero; the clamped remainder is reported via Applied. Missing
// products and unresolved variants do not fail the batch.
func (r *ProductRepository) ApplyStockDeltas(ctx context.Context, deltas []repositories.StockDelta, now time.Time) ([]repositories.StockMovement, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}
	if len(deltas) == 0 {
		return nil, nil
	}
	for _, delta := range deltas {
		if strings.TrimSpace(delta.ProductID) == "" {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidDelta, "stock delta: product id is required", nil)
		}
		if delta.Quantity == 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidDelta, fmt.Sprintf("stock delta for %s: quantity must be non-zero", delta.ProductID), nil)
		}
	}

	var movements []repositories.StockMovement
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		movements = movements[:0]

		type pendingProduct struct {
			ref   *firestore.DocumentRef
			doc   productDocument
			found bool
			dirty bool
		}

		// All reads must complete before the first write.
		pending := make(map[string]*pendingProduct)
		order := make([]string, 0, len(deltas))
		for _, delta := range deltas {
			if _, ok := pending[delta.ProductID]; ok {
				continue
			}
			ref, err := r.products.DocumentRef(ctx, delta.ProductID)
			if err != nil {
				return err
			}
			entry := &pendingProduct{ref: ref}
			snap, err := tx.Get(ref)
			switch {
			case err == nil:
				if decodeErr := snap.DataTo(&entry.doc); decodeErr != nil {
					return fmt.Errorf("decode product %s: %w", delta.ProductID, decodeErr)
				}
				entry.found = true
			case status.Code(err) == codes.NotFound:
				// Best effort: the order references a product that has since
				// been removed from the catalog.
			default:
				return err
			}
			pending[delta.ProductID] = entry
			order = append(order, delta.ProductID)
		}

		movementProduct := make([]string, 0, len(deltas))
		for _, delta := range deltas {
			entry := pending[delta.ProductID]
			movement := repositories.StockMovement{
				ProductID: delta.ProductID,
				Requested: delta.Quantity,
			}
			if !entry.found {
				movement.Missing = true
				movements = append(movements, movement)
				movementProduct = append(movementProduct, delta.ProductID)
				continue
			}

			variants := make([]domain.ProductVariant, 0, len(entry.doc.Variants))
			for _, variant := range entry.doc.Variants {
				variants = append(variants, variant.toDomain())
			}
			idx, ok := domain.ResolveVariant(delta.Key, variants)
			if !ok {
				movement.Missing = true
				movements = append(movements, movement)
				movementProduct = append(movementProduct, delta.ProductID)
				continue
			}

			current := entry.doc.Variants[idx].Stock
			next := current + delta.Quantity
			if next < 0 {
				next = 0
			}
			entry.doc.Variants[idx].Stock = next
			entry.dirty = true

			movement.VariantID = entry.doc.Variants[idx].ID
			movement.VariantName = variants[idx].Name.Display("")
			movement.Applied = next - current
			movement.ResultingStock = next
			movements = append(movements, movement)
			movementProduct = append(movementProduct, delta.ProductID)
		}

		totals := make(map[string]int, len(order))
		for _, productID := range order {
			entry := pending[productID]
			if !entry.dirty {
				continue
			}
			total := 0
			for _, variant := range entry.doc.Variants {
				if variant.Stock > 0 {
					total += variant.Stock
				}
			}
			entry.doc.TotalStock = total
			entry.doc.UpdatedAt = now.UTC()
			totals[productID] = total
			if err := tx.Set(entry.ref, entry.doc); err != nil {
				return err
			}
		}

		for i := range movements {
			if movements[i].Missing {
				continue
			}
			movements[i].ResultingTotal = totals[movementProduct[i]]
		}
		return nil
	})
	if err != nil {
		return nil, pfirestore.WrapError("products.stock", err)
	}
	return movements, nil
}
