package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	httpclient "github.com/nimbusoft/datagate/pkg/http"
)

// Client talks to the data engine's REST surface using the engine's own
// service credentials. It implements Database, Storage and Procedures.
type Client struct {
	baseURL    string
	serviceKey string
	timeout    time.Duration
}

func NewClient(baseURL, serviceKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: serviceKey,
		timeout:    timeout,
	}
}

var (
	_ Database   = (*Client)(nil)
	_ Storage    = (*Client)(nil)
	_ Procedures = (*Client)(nil)
)

func (c *Client) authOptions() []httpclient.RequestOption {
	return []httpclient.RequestOption{
		httpclient.WithHeader("apikey", c.serviceKey),
		httpclient.WithAuthToken(c.serviceKey),
	}
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	opts ...httpclient.RequestOption,
) (*resty.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts = append(c.authOptions(), opts...)
	resp, err := httpclient.Request(ctx, method, c.baseURL+path, opts...)
	if err != nil {
		return nil, fmt.Errorf("data engine request failed: %w", err)
	}
	if resp.IsError() {
		return nil, newError(resp.StatusCode(), resp.Body())
	}
	return resp, nil
}

// rowResult interprets a returned representation: a JSON array of rows, whose
// length is the affected-row count.
func rowResult(body []byte) (*Result, error) {
	if len(body) == 0 {
		return &Result{Data: json.RawMessage("[]"), Count: 0}, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("unexpected data engine response: %w", err)
	}
	return &Result{Data: json.RawMessage(body), Count: len(rows)}, nil
}

func escapeSegment(s string) string {
	return url.PathEscape(s)
}

// escapePath escapes an object path segment by segment, preserving slashes.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
