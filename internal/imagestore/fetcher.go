// Package imagestore fetches design image bytes from where designers uploaded them.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"earnings-service/internal/apperr"

	"github.com/cloudinary/cloudinary-go/v2"
)

const defaultMaxBytes = 20 << 20

// Fetcher returns the raw bytes behind an image reference
type Fetcher interface {
	FetchImageBytes(ctx context.Context, reference string) ([]byte, error)
}

// HTTPFetcher downloads absolute http(s) URLs
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given timeout and size limit
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// FetchImageBytes downloads the image at reference
func (f *HTTPFetcher) FetchImageBytes(ctx context.Context, reference string) ([]byte, error) {
	const op = "imagestore.FetchImageBytes"

	u, err := url.Parse(reference)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation(op, "image reference %q is not an http(s) url", reference)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Validation(op, "invalid image request: %v", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.NotFound(op, "image %s not found", reference)
	case resp.StatusCode >= 500:
		return nil, apperr.Storage(op, fmt.Errorf("image store returned %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Validation(op, "image store returned %s for %s", resp.Status, reference)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, apperr.Validation(op, "image exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}

// CloudinaryFetcher resolves Cloudinary public IDs to delivery URLs and
// downloads them. Absolute URLs are fetched as-is.
type CloudinaryFetcher struct {
	cld  *cloudinary.Cloudinary
	http *HTTPFetcher
}

// NewCloudinaryFetcher creates a fetcher from a cloudinary:// URL
func NewCloudinaryFetcher(cloudinaryURL string, httpFetcher *HTTPFetcher) (*CloudinaryFetcher, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary init: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryFetcher{cld: cld, http: httpFetcher}, nil
}

// ResolveURL returns the delivery URL for a reference
func (f *CloudinaryFetcher) ResolveURL(reference string) (string, error) {
	const op = "imagestore.ResolveURL"

	if strings.HasPrefix(reference, "http://") || strings.HasPrefix(reference, "https://") {
		return reference, nil
	}
	publicID := strings.TrimPrefix(reference, "cloudinary:")
	if publicID == "" {
		return "", apperr.Validation(op, "empty image reference")
	}

	img, err := f.cld.Image(publicID)
	if err != nil {
		return "", apperr.Validation(op, "invalid cloudinary public id %q: %v", publicID, err)
	}
	u, err := img.String()
	if err != nil {
		return "", apperr.Validation(op, "failed to build url for %q: %v", publicID, err)
	}
	return u, nil
}

// FetchImageBytes resolves and downloads the image
func (f *CloudinaryFetcher) FetchImageBytes(ctx context.Context, reference string) ([]byte, error) {
	u, err := f.ResolveURL(reference)
	if err != nil {
		return nil, err
	}
	return f.http.FetchImageBytes(ctx, u)
}
