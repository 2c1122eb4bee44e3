package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/wahret-zmen/api/internal/domain"
)

func newTestCatalogService(t *testing.T, products *stubProductRepo) CatalogService {
	t.Helper()
	ids := 0
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products: products,
		Clock:    fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		IDGenerator: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return svc
}

func TestCreateProductNormalisesVariants(t *testing.T) {
	var inserted *domain.Product
	products := &stubProductRepo{
		insertFn: func(_ context.Context, product domain.Product) error {
			inserted = &product
			return nil
		},
	}
	svc := newTestCatalogService(t, products)

	product, err := svc.CreateProduct(context.Background(), UpsertProductCommand{
		Title:       "Kaftan",
		Description: `<p>Hand made</p><script>alert(1)</script>`,
		Category:    "women",
		PriceBase:   60,
		PriceNow:    49.991,
		Variants: []VariantInput{
			{Name: "Rouge", Image: "https://img/red.jpg", Stock: 5},
			{NameLocalized: map[string]string{"AR": "أحمر", "fr": "Rouge"}, Images: []string{"https://img/red2.jpg"}, Stock: 3},
			{Name: "Sans image", Stock: 9},
		},
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if inserted == nil {
		t.Fatal("expected product to be persisted")
	}
	if strings.Contains(product.Description, "script") {
		t.Fatalf("description not sanitised: %q", product.Description)
	}
	if !strings.Contains(product.Description, "Hand made") {
		t.Fatalf("description content lost: %q", product.Description)
	}
	// The imageless variant is dropped; the single image becomes a gallery.
	if len(product.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(product.Variants))
	}
	if got := product.Variants[0].Images; len(got) != 1 || got[0] != "https://img/red.jpg" {
		t.Fatalf("images = %v", got)
	}
	if got := product.Variants[1].Name.Localized["ar"]; got != "أحمر" {
		t.Fatalf("locale keys not canonicalised: %v", product.Variants[1].Name.Localized)
	}
	if product.TotalStock != 8 {
		t.Fatalf("total stock = %d, want 8", product.TotalStock)
	}
	if product.PriceNow != 49.99 {
		t.Fatalf("price = %v, want rounded 49.99", product.PriceNow)
	}
	if product.ID == "" || product.CreatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", product)
	}
}

func TestCreateProductRequiresTitle(t *testing.T) {
	svc := newTestCatalogService(t, &stubProductRepo{})
	if _, err := svc.CreateProduct(context.Background(), UpsertProductCommand{}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("err = %v, want ErrCatalogInvalidInput", err)
	}
}

func TestUpdateProductKeepsCreationTime(t *testing.T) {
	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	var updated *domain.Product
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			product := testProduct()
			product.CreatedAt = created
			return product, nil
		},
		updateFn: func(_ context.Context, product domain.Product) error {
			updated = &product
			return nil
		},
	}
	svc := newTestCatalogService(t, products)

	product, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{
		ID:       "p1",
		Title:    "Kaftan brodé",
		PriceNow: 45,
		Variants: []VariantInput{{ID: "var-red", Name: "Rouge", Image: "https://img/red.jpg", Stock: 4}},
	})
	if err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	if updated == nil {
		t.Fatal("expected product update")
	}
	if !product.CreatedAt.Equal(created) {
		t.Fatalf("createdAt = %v, want original %v", product.CreatedAt, created)
	}
	if product.ID != "p1" {
		t.Fatalf("id = %q", product.ID)
	}
	if product.TotalStock != 4 {
		t.Fatalf("total stock = %d, want 4", product.TotalStock)
	}
}

func TestUpdateProductUnknownID(t *testing.T) {
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) {
			return domain.Product{}, &notFoundError{msg: "gone"}
		},
	}
	svc := newTestCatalogService(t, products)
	if _, err := svc.UpdateProduct(context.Background(), UpsertProductCommand{ID: "nope", Title: "x"}); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestRepriceDiscountsBasePrice(t *testing.T) {
	var updated *domain.Product
	products := &stubProductRepo{
		findFn: func(context.Context, string) (domain.Product, error) { return testProduct(), nil },
		updateFn: func(_ context.Context, product domain.Product) error {
			updated = &product
			return nil
		},
	}
	svc := newTestCatalogService(t, products)

	product, err := svc.Reprice(context.Background(), RepriceCommand{ProductID: "p1", Percentage: 25})
	if err != nil {
		t.Fatalf("Reprice: %v", err)
	}
	if updated == nil {
		t.Fatal("expected product update")
	}
	// 25% off the base price of 60.
	if product.PriceNow != 45 {
		t.Fatalf("price = %v, want 45", product.PriceNow)
	}
}

func TestRepriceRejectsOutOfRangePercentage(t *testing.T) {
	svc := newTestCatalogService(t, &stubProductRepo{})
	for _, pct := range []float64{-1, 101} {
		if _, err := svc.Reprice(context.Background(), RepriceCommand{ProductID: "p1", Percentage: pct}); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("pct %v: err = %v, want ErrCatalogInvalidInput", pct, err)
		}
	}
}

func TestDeleteProductUnknownID(t *testing.T) {
	products := &stubProductRepo{
		deleteFn: func(context.Context, string) error { return &notFoundError{msg: "gone"} },
	}
	svc := newTestCatalogService(t, products)
	if err := svc.DeleteProduct(context.Background(), "nope"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}
