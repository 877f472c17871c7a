package transferdemo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// HTTPConfig names the presigned-URL template a PUT-leg transfer uploads
// to: each transfer's name is appended as a path segment. Grounded in the
// teacher's use of go-retryablehttp as a wrapper around outbound HTTP
// (internal/http), generalized from "API calls" to "upload PUTs" since
// this repo has no API client of its own to wrap.
type HTTPConfig struct {
	// BaseURL is a presigned-URL-style endpoint; each transfer PUTs to
	// BaseURL + "/" + transfer.Name.
	BaseURL string

	// MaxRetries bounds retryablehttp's backoff retries per PUT.
	MaxRetries int
}

// HTTPProvider uploads each transfer as a retried HTTP PUT, standing in
// for the non-SDK "presigned URL" upload leg a real transfer tool also
// has to support.
type HTTPProvider struct {
	client  *retryablehttp.Client
	baseURL string
}

// NewHTTPProvider builds an HTTPProvider whose retry logging is silenced
// to log's Debug level (retryablehttp logs each retry at a level the
// caller doesn't usually want at Info).
func NewHTTPProvider(cfg HTTPConfig, log zerolog.Logger) *HTTPProvider {
	client := retryablehttp.NewClient()
	client.Logger = nil
	if cfg.MaxRetries > 0 {
		client.RetryMax = cfg.MaxRetries
	}
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Debug().Str("url", req.URL.String()).Int("attempt", attempt).Msg("retrying transfer PUT")
		}
	}
	return &HTTPProvider{client: client, baseURL: cfg.BaseURL}
}

// Name identifies this provider for logging/display.
func (p *HTTPProvider) Name() string { return "http" }

// Upload PUTs t's zero-filled payload to baseURL/t.Name.
func (p *HTTPProvider) Upload(ctx context.Context, t Transfer) error {
	url := fmt.Sprintf("%s/%s", p.baseURL, t.Name)
	body := bytes.NewReader(make([]byte, t.Size))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("build PUT request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("PUT %s: unexpected status %s", url, resp.Status)
	}
	return nil
}
