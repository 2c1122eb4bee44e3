package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wahret-zmen/api/internal/platform/storage"
)

type staticSigner struct{}

func (staticSigner) Email() string { return "signer@test.iam.gserviceaccount.com" }

func (staticSigner) SignBytes(context.Context, []byte) ([]byte, error) {
	return []byte("signature"), nil
}

func newAssetRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	guard := newAdminGuard(t)
	images, err := storage.NewImageStore(staticSigner{}, "test-bucket")
	if err != nil {
		t.Fatalf("new image store: %v", err)
	}
	handlers := NewAssetHandlers(guard, images)
	return NewRouter(WithAssetRoutes(handlers.Routes)), adminHeader(t, guard)
}

func TestSignProductImageUpload(t *testing.T) {
	router, header := newAssetRouter(t)

	body := `{"productId": "p1", "filename": "front.JPG", "contentType": "image/jpeg"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/product-images", strings.NewReader(body))
	req.Header.Set("Authorization", header)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp signUploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Method != http.MethodPut {
		t.Fatalf("method = %q, want PUT", resp.Method)
	}
	if !strings.HasPrefix(resp.Object, "products/p1/") || !strings.HasSuffix(resp.Object, ".jpg") {
		t.Fatalf("object = %q", resp.Object)
	}
	if !strings.Contains(resp.URL, "test-bucket") {
		t.Fatalf("url missing bucket: %q", resp.URL)
	}
	if resp.Headers["Content-Type"] != "image/jpeg" {
		t.Fatalf("headers = %v", resp.Headers)
	}
	if resp.ExpiresAt == "" {
		t.Fatal("expiresAt missing")
	}
}

func TestSignProductImageUploadRequiresAdmin(t *testing.T) {
	router, _ := newAssetRouter(t)

	body := `{"productId": "p1", "filename": "front.jpg", "contentType": "image/jpeg"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/product-images", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSignProductImageUploadRejectsContentType(t *testing.T) {
	router, header := newAssetRouter(t)

	body := `{"productId": "p1", "filename": "movie.mp4", "contentType": "video/mp4"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/product-images", strings.NewReader(body))
	req.Header.Set("Authorization", header)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if envelope["error"] != "unsupported_content_type" {
		t.Fatalf("error code = %v", envelope["error"])
	}
}

func TestSignProductImageUploadValidatesInput(t *testing.T) {
	router, header := newAssetRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing product id", `{"filename": "front.jpg", "contentType": "image/jpeg"}`},
		{"missing filename", `{"productId": "p1", "contentType": "image/jpeg"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/product-images", strings.NewReader(tc.body))
			req.Header.Set("Authorization", header)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}
