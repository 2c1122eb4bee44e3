package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid arguments.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
)

// CatalogServiceDeps bundles the collaborators required to construct a catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products  repositories.ProductRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
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

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

// CreateProduct validates, normalises, and persists a new catalog entry.
func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	product, err := s.buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.clock()
	product.ID = s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logger(ctx, "catalog_product_created", map[string]any{
		"productId": product.ID,
		"category":  product.Category,
	})
	return product, nil
}

// UpdateProduct replaces an existing catalog entry, keeping its creation time.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	existing, err := s.findProduct(ctx, cmd.ID)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}

	product.ID = existing.ID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// DeleteProduct removes a catalog entry.
func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		if repositories.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return err
	}
	return nil
}

// GetProduct fetches one catalog entry.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return s.findProduct(ctx, productID)
}

// ListProducts returns catalog entries matching the filter, newest first.
func (s *catalogService) ListProducts(ctx context.Context, filter CatalogFilter) ([]domain.Product, error) {
	return s.products.List(ctx, repositories.ProductListFilter{
		Category:     strings.TrimSpace(filter.Category),
		TrendingOnly: filter.TrendingOnly,
		Limit:        filter.Limit,
	})
}

// Reprice discounts the current price by a percentage of the base price,
// rounded half-up to the cent.
func (s *catalogService) Reprice(ctx context.Context, cmd RepriceCommand) (domain.Product, error) {
	if cmd.Percentage < 0 || cmd.Percentage > 100 {
		return domain.Product{}, fmt.Errorf("%w: percentage must be within [0,100]", ErrCatalogInvalidInput)
	}

	product, err := s.findProduct(ctx, cmd.ProductID)
	if err != nil {
		return domain.Product{}, err
	}

	base := product.PriceBase
	if base <= 0 {
		base = product.PriceNow
	}
	product.PriceNow = domain.RoundToCents(base * (1 - cmd.Percentage/100))
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logger(ctx, "catalog_product_repriced", map[string]any{
		"productId":  product.ID,
		"percentage": cmd.Percentage,
		"newPrice":   product.PriceNow,
	})
	return product, nil
}

func (s *catalogService) findProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *catalogService) buildProduct(cmd UpsertProductCommand) (domain.Product, error) {
	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		return domain.Product{}, fmt.Errorf("%w: title is required", ErrCatalogInvalidInput)
	}
	if cmd.PriceNow < 0 || cmd.PriceBase < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices must be non-negative", ErrCatalogInvalidInput)
	}

	variants, err := s.normaliseVariants(cmd.Variants)
	if err != nil {
		return domain.Product{}, err
	}

	return domain.Product{
		Title:       title,
		Description: s.sanitizer.Sanitize(strings.TrimSpace(cmd.Description)),
		Category:    strings.TrimSpace(cmd.Category),
		Craft:       strings.TrimSpace(cmd.Craft),
		CoverImage:  strings.TrimSpace(cmd.CoverImage),
		Variants:    variants,
		PriceBase:   domain.RoundToCents(cmd.PriceBase),
		PriceNow:    domain.RoundToCents(cmd.PriceNow),
		TotalStock:  domain.SumVariantStock(variants),
		Trending:    cmd.Trending,
		Rating:      cmd.Rating,
	}, nil
}

// normaliseVariants folds the two accepted input shapes into the stored form:
// a single image becomes a one-element gallery, and variants without any image
// are dropped entirely.
func (s *catalogService) normaliseVariants(inputs []VariantInput) ([]domain.ProductVariant, error) {
	variants := make([]domain.ProductVariant, 0, len(inputs))
	for _, input := range inputs {
		images := make([]string, 0, len(input.Images)+1)
		for _, image := range input.Images {
			if image = strings.TrimSpace(image); image != "" {
				images = append(images, image)
			}
		}
		if image := strings.TrimSpace(input.Image); image != "" && len(images) == 0 {
			images = append(images, image)
		}
		if len(images) == 0 {
			continue
		}

		if input.Stock < 0 {
			return nil, fmt.Errorf("%w: variant stock must be non-negative", ErrCatalogInvalidInput)
		}

		var name domain.VariantName
		if len(input.NameLocalized) > 0 {
			name = domain.LocalizedName(input.NameLocalized)
		} else {
			name = domain.PlainName(input.Name)
		}

		id := strings.TrimSpace(input.ID)
		if id == "" {
			id = s.newID()
		}

		variants = append(variants, domain.ProductVariant{
			ID:     id,
			Name:   name,
			Images: images,
			Stock:  input.Stock,
		})
	}
	return variants, nil
}
