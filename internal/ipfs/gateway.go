// Package ipfs fetches program metadata and artwork pinned behind ipfs://
// URLs through a public HTTP gateway.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGatewayURL = "https://ipfs.io/ipfs/"

// maxObjectSize caps gateway downloads; program metadata and artwork are
// small and anything larger indicates a bad CID.
const maxObjectSize = 8 << 20

// Gateway is a read-only IPFS gateway client.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewGateway creates a gateway client. An empty URL uses the public ipfs.io
// gateway.
func NewGateway(gatewayURL string, timeout time.Duration) *Gateway {
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	if !strings.HasSuffix(gatewayURL, "/") {
		gatewayURL += "/"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		baseURL:    gatewayURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CIDFromURL extracts the CID path from an ipfs:// URL.
func CIDFromURL(rawURL string) (string, bool) {
	if !strings.HasPrefix(rawURL, "ipfs://") {
		return "", false
	}
	cid := strings.TrimPrefix(rawURL, "ipfs://")
	cid = strings.TrimPrefix(cid, "ipfs/")
	if cid == "" {
		return "", false
	}
	return cid, true
}

// Fetch downloads the object behind a CID or ipfs:// URL.
func (g *Gateway) Fetch(ctx context.Context, cidOrURL string) ([]byte, error) {
	cid := cidOrURL
	if extracted, ok := CIDFromURL(cidOrURL); ok {
		cid = extracted
	}
	if cid == "" {
		return nil, fmt.Errorf("empty cid")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+cid, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway fetch %s: HTTP %d", cid, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", cid, maxObjectSize)
	}
	return data, nil
}
