package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultSignedURLExpiry = 15 * time.Minute
	maxDownloadExpiry      = 15 * time.Minute
	maxUploadSizeBytes     = 10 << 20
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")

	// ErrInvalidObject signals an empty or unusable object name.
	ErrInvalidObject = errors.New("storage: object name is required")
	// ErrContentTypeDenied signals a content type outside the image allowlist.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")
	// ErrExpiryTooLong signals a requested expiry beyond the permitted maximum.
	ErrExpiryTooLong = errors.New("storage: expiry exceeds permitted maximum")
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/avif"}

// SignedURLResult describes the generated signed URL details.
type SignedURLResult struct {
	URL       string
	Method    string
	Object    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// ImageStore generates signed upload and download URLs for product imagery.
type ImageStore struct {
	signer Signer
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// ImageStoreOption customises ImageStore behaviour.
type ImageStoreOption func(*ImageStore)

// WithUploadExpiry overrides the signed upload URL lifetime.
func WithUploadExpiry(d time.Duration) ImageStoreOption {
	return func(s *ImageStore) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ImageStoreOption {
	return func(s *ImageStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewImageStore constructs an ImageStore bound to a bucket.
func NewImageStore(signer Signer, bucket string, opts ...ImageStoreOption) (*ImageStore, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	store := &ImageStore{
		signer: signer,
		bucket: bucket,
		expiry: defaultSignedURLExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// ObjectPath composes the canonical object name for a product image.
func ObjectPath(productID, imageID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("products/%s/%s%s", strings.TrimSpace(productID), strings.TrimSpace(imageID), ext)
}

// SignedUploadURL produces a PUT URL the storefront admin can upload an image to.
func (s *ImageStore) SignedUploadURL(ctx context.Context, object, contentType string) (SignedURLResult, error) {
	if s == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, ErrInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !imageTypeAllowed(contentType) {
		return SignedURLResult{}, ErrContentTypeDenied
	}

	sizeRange := fmt.Sprintf("0,%d", maxUploadSizeBytes)
	expiresAt := s.now().Add(s.expiry)
	opts := storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, &opts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "PUT",
		Object:    object,
		ExpiresAt: expiresAt,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
	}, nil
}

// SignedDownloadURL produces a short-lived GET URL for a stored image.
func (s *ImageStore) SignedDownloadURL(ctx context.Context, object string, expiry time.Duration) (SignedURLResult, error) {
	if s == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, ErrInvalidObject
	}
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	if expiry > maxDownloadExpiry {
		return SignedURLResult{}, ErrExpiryTooLong
	}

	expiresAt := s.now().Add(expiry)
	opts := storage.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(s.bucket, object, &opts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "GET",
		Object:    object,
		ExpiresAt: expiresAt,
	}, nil
}

func imageTypeAllowed(contentType string) bool {
	for _, candidate := range allowedImageTypes {
		if contentType == candidate {
			return true
		}
	}
	return false
}
