package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/wahret-zmen/api/internal/domain"
	"github.com/wahret-zmen/api/internal/platform/auth"
	"github.com/wahret-zmen/api/internal/platform/httpx"
	"github.com/wahret-zmen/api/internal/services"
)

const (
	defaultProductLimit = 100
	maxProductLimit     = 500
)

// ProductHandlers exposes the catalog endpoints. Reads are public; every
// mutation is staff-only.
type ProductHandlers struct {
	guard   *auth.AdminGuard
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(guard *auth.AdminGuard, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		guard:   guard,
		catalog: catalog,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard.RequireAdmin())
		}
		r.Post("/", h.createProduct)
		r.Put("/{productID}", h.updateProduct)
		r.Delete("/{productID}", h.deleteProduct)
		r.Put("/{productID}:reprice", h.repriceProduct)
	})
}

type upsertProductRequest struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Category    string                  `json:"category"`
	Craft       string                  `json:"craft"`
	CoverImage  string                  `json:"coverImage"`
	OldPrice    float64                 `json:"oldPrice"`
	NewPrice    float64                 `json:"newPrice"`
	Trending    bool                    `json:"trending"`
	Rating      float64                 `json:"rating"`
	Colors      []productVariantRequest `json:"colors"`
}

type productVariantRequest struct {
	ID        string          `json:"id"`
	ColorName json.RawMessage `json:"colorName"`
	Image     string          `json:"image"`
	Images    []string        `json:"images"`
	Stock     int             `json:"stock"`
}

type repriceRequest struct {
	Percentage float64 `json:"percentage"`
}

type productPayload struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	Category      string                  `json:"category"`
	Craft         string                  `json:"craft,omitempty"`
	CoverImage    string                  `json:"coverImage"`
	Colors        []productVariantPayload `json:"colors"`
	OldPrice      float64                 `json:"oldPrice"`
	NewPrice      float64                 `json:"newPrice"`
	StockQuantity int                     `json:"stockQuantity"`
	Trending      bool                    `json:"trending"`
	Rating        float64                 `json:"rating"`
	CreatedAt     string                  `json:"createdAt"`
	UpdatedAt     string                  `json:"updatedAt"`
}

type productVariantPayload struct {
	ID        string   `json:"id"`
	ColorName any      `json:"colorName"`
	Images    []string `json:"images"`
	Stock     int      `json:"stock"`
}

type productListResponse struct {
	Items []productPayload `json:"items"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	query := r.URL.Query()
	products, err := h.catalog.ListProducts(ctx, services.CatalogFilter{
		Category:     strings.TrimSpace(query.Get("category")),
		TrendingOnly: strings.EqualFold(query.Get("trending"), "true"),
		Limit:        parseLimitParam(query.Get("limit"), defaultProductLimit, maxProductLimit),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(products))
	for _, product := range products {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{Items: items})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	var req upsertProductRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd, ok := buildUpsertCommand(ctx, w, req)
	if !ok {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	var req upsertProductRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd, ok := buildUpsertCommand(ctx, w, req)
	if !ok {
		return
	}
	cmd.ID = strings.TrimSpace(chi.URLParam(r, "productID"))

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	if err := h.catalog.DeleteProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID"))); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *ProductHandlers) repriceProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		writeServiceUnavailable(ctx, w, "catalog")
		return
	}

	var req repriceRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	product, err := h.catalog.Reprice(ctx, services.RepriceCommand{
		ProductID:  strings.TrimSpace(chi.URLParam(r, "productID")),
		Percentage: req.Percentage,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func buildUpsertCommand(ctx context.Context, w http.ResponseWriter, req upsertProductRequest) (services.UpsertProductCommand, bool) {
	variants := make([]services.VariantInput, 0, len(req.Colors))
	for _, color := range req.Colors {
		plain, localized, err := decodeColorName(color.ColorName)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "colorName must be a string or a locale map", http.StatusBadRequest))
			return services.UpsertProductCommand{}, false
		}
		variants = append(variants, services.VariantInput{
			ID:            color.ID,
			Name:          plain,
			NameLocalized: localized,
			Image:         color.Image,
			Images:        color.Images,
			Stock:         color.Stock,
		})
	}

	return services.UpsertProductCommand{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Craft:       req.Craft,
		CoverImage:  req.CoverImage,
		PriceBase:   req.OldPrice,
		PriceNow:    req.NewPrice,
		Trending:    req.Trending,
		Rating:      req.Rating,
		Variants:    variants,
	}, true
}

// decodeColorName accepts the two historical shapes of the colorName field:
// a bare string or a locale-to-form object.
func decodeColorName(raw json.RawMessage) (string, map[string]string, error) {
	if len(raw) == 0 {
		return "", nil, nil
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil, nil
	}
	var localized map[string]string
	if err := json.Unmarshal(raw, &localized); err == nil {
		return "", localized, nil
	}
	return "", nil, errors.New("unsupported colorName shape")
}

func buildProductPayload(product domain.Product) productPayload {
	colors := make([]productVariantPayload, 0, len(product.Variants))
	for _, variant := range product.Variants {
		colors = append(colors, productVariantPayload{
			ID:        variant.ID,
			ColorName: encodeColorName(variant.Name),
			Images:    variant.Images,
			Stock:     variant.Stock,
		})
	}
	return productPayload{
		ID:            product.ID,
		Title:         product.Title,
		Description:   product.Description,
		Category:      product.Category,
		Craft:         product.Craft,
		CoverImage:    product.CoverImage,
		Colors:        colors,
		OldPrice:      product.PriceBase,
		NewPrice:      product.PriceNow,
		StockQuantity: product.TotalStock,
		Trending:      product.Trending,
		Rating:        product.Rating,
		CreatedAt:     formatTime(product.CreatedAt),
		UpdatedAt:     formatTime(product.UpdatedAt),
	}
}

func encodeColorName(name domain.VariantName) any {
	if name.Plain != "" {
		return name.Plain
	}
	if len(name.Localized) > 0 {
		return name.Localized
	}
	return ""
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
