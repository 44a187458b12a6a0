package slideshow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	// Formats the photo library is known to contain.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ImageFetcher confirms an image is fully decodable before it is ever
// assigned to a visible surface.
type ImageFetcher interface {
	FetchDecoded(ctx context.Context, url string) error
}

// maxImageBytes caps a single slideshow asset download.
const maxImageBytes = 32 << 20 // 32 MB

// HTTPFetcher downloads the asset and runs it through the stdlib decoders.
// An unknown image format is not fatal: the successful fetch itself is then
// taken as readiness, matching the load-event fallback of display shells
// whose decode API is unavailable.
type HTTPFetcher struct {
	http *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{http: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) FetchDecoded(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build image request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	_, _, err = image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if errors.Is(err, image.ErrFormat) {
		// Fetched fine, just not a format we can verify here.
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}
