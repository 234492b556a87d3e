package policy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls a remote policy server.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *slog.Logger
	compress bool
}

// NewClient returns a client for the server at baseURL. A nil httpClient
// gets a 30 second timeout, enough for a cold model on first call.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		logger:   logger,
		compress: true,
	}
}

// SetCompression toggles zstd compression of outgoing pixel buffers.
func (c *Client) SetCompression(on bool) { c.compress = on }

func (c *Client) Infer(ctx context.Context, req *Request) (*Response, error) {
	wire := *req
	if c.compress {
		wire.EgoCamera = Compress(wire.EgoCamera)
		wire.WristLeft = Compress(wire.WristLeft)
		wire.WristRight = Compress(wire.WristRight)
	}
	body, err := marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	data, err := c.do(ctx, http.MethodPost, "/infer", body)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := unmarshal(data, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("policy inference",
		"chunk_len", len(resp.Actions),
		"request_bytes", len(body),
		"elapsed", time.Since(start),
	)
	return &resp, nil
}

// Metadata fetches the server's self-description.
func (c *Client) Metadata(ctx context.Context) (map[string]any, error) {
	data, err := c.do(ctx, http.MethodGet, "/metadata", nil)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{}
	if err := unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("policy %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("policy %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("%w: %s %s returned %d: %s", ErrServer, method, path, resp.StatusCode, msg)
	}
	return data, nil
}
