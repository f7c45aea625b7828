// Package diagram talks to the external diagram renderer (an HTTP service
// such as PlantUML's server). The renderer itself is out of scope for
// this repository; this package only implements the client side.
package diagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Renderer turns diagram source text into rendered image bytes.
type Renderer interface {
	Render(ctx context.Context, format, sourceLanguage, source string) ([]byte, error)
}

// HTTPRenderer posts diagram source to an external rendering service and
// retries transient network/5xx failures with exponential backoff,
// mirroring the retry shape the LLM Gateway uses for its own external
// calls.
type HTTPRenderer struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
}

// NewHTTPRenderer wires a Renderer to baseURL (e.g. a PlantUML server).
func NewHTTPRenderer(baseURL string) *HTTPRenderer {
	return &HTTPRenderer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
}

// Render posts source to baseURL/render/{format} and returns the rendered
// bytes, retrying transient failures.
func (r *HTTPRenderer) Render(ctx context.Context, format, sourceLanguage, source string) ([]byte, error) {
	var out []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/render/%s", r.baseURL, format), bytes.NewBufferString(source))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build render request: %w", err))
		}
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("X-Source-Language", sourceLanguage)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("render request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read render response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("renderer returned HTTP %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("renderer returned HTTP %d", resp.StatusCode))
		}

		out = body
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return out, nil
}
