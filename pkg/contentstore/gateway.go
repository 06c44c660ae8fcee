package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxBlobBytes = 1 << 20

// Gateway fetches blobs over HTTP from a base URL that serves content at
// <base>/<hash>, such as an IPFS gateway or a CDN delivery prefix.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway constructs a gateway fetcher. A zero timeout defaults to 10s.
func NewGateway(baseURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) Fetch(ctx context.Context, hash string) ([]byte, error) {
	parsed, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/"+parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build content request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("content gateway responded with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if len(data) > maxBlobBytes {
		return nil, fmt.Errorf("content exceeds %d bytes", maxBlobBytes)
	}

	if err := Verify(hash, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Fallback tries each fetcher in order and returns the first blob found. It
// lets verification read documents published elsewhere, such as a pinned copy
// behind a public gateway.
type Fallback []Fetcher

func (f Fallback) Fetch(ctx context.Context, hash string) ([]byte, error) {
	lastErr := ErrNotFound
	for _, fetcher := range f {
		if fetcher == nil {
			continue
		}
		data, err := fetcher.Fetch(ctx, hash)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrInvalidHash) || ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, ErrNotFound) || lastErr == ErrNotFound {
			lastErr = err
		}
	}
	return nil, lastErr
}
