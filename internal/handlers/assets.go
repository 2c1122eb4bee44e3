package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/wahret-zmen/api/internal/platform/auth"
	"github.com/wahret-zmen/api/internal/platform/httpx"
	"github.com/wahret-zmen/api/internal/platform/storage"
)

// AssetHandlers issues signed upload URLs for product imagery. Staff-only.
type AssetHandlers struct {
	guard  *auth.AdminGuard
	images *storage.ImageStore
	newID  func() string
}

// NewAssetHandlers constructs a new AssetHandlers instance.
func NewAssetHandlers(guard *auth.AdminGuard, images *storage.ImageStore) *AssetHandlers {
	return &AssetHandlers{
		guard:  guard,
		images: images,
		newID: func() string {
			return strings.ToLower(ulid.Make().String())
		},
	}
}

// Routes registers the /assets endpoints.
func (h *AssetHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.guard != nil {
		r.Use(h.guard.RequireAdmin())
	}
	r.Post("/product-images", h.signProductImageUpload)
}

type signUploadRequest struct {
	ProductID   string `json:"productId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type signUploadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Object    string            `json:"object"`
	ExpiresAt string            `json:"expiresAt"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (h *AssetHandlers) signProductImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.images == nil {
		writeServiceUnavailable(ctx, w, "asset")
		return
	}

	var req signUploadRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "filename is required", http.StatusBadRequest))
		return
	}

	object := storage.ObjectPath(productID, h.newID(), filename)
	result, err := h.images.SignedUploadURL(ctx, object, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrContentTypeDenied):
			httpx.WriteError(ctx, w, httpx.NewError("unsupported_content_type", err.Error(), http.StatusBadRequest))
		case errors.Is(err, storage.ErrInvalidObject):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("asset_error", "failed to sign upload url", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, signUploadResponse{
		URL:       result.URL,
		Method:    result.Method,
		Object:    result.Object,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
		Headers:   result.Headers,
	})
}
