package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	httpclient "github.com/nimbusoft/datagate/pkg/http"
)

const (
	objectPathPrefix  = "/storage/v1/object/"
	listPathPrefix    = "/storage/v1/object/list/"
	defaultListLimit  = 100
	octetStreamType   = "application/octet-stream"
)

func (c *Client) Upload(
	ctx context.Context,
	bucket, path string,
	content []byte,
	contentType string,
) error {
	if contentType == "" {
		contentType = octetStreamType
	}

	_, err := c.do(ctx, http.MethodPost,
		objectPathPrefix+escapeSegment(bucket)+"/"+escapePath(path),
		httpclient.WithContentType(contentType),
		httpclient.WithHeader("x-upsert", "true"),
		httpclient.WithBody(content),
	)
	return err
}

func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet,
		objectPathPrefix+escapeSegment(bucket)+"/"+escapePath(path),
	)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	body := map[string]any{"prefixes": paths}

	_, err := c.do(ctx, http.MethodDelete, objectPathPrefix+escapeSegment(bucket),
		httpclient.WithContentType("application/json"),
		httpclient.WithBody(body),
	)
	return err
}

func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	body := map[string]any{
		"prefix": prefix,
		"limit":  defaultListLimit,
	}

	resp, err := c.do(ctx, http.MethodPost, listPathPrefix+escapeSegment(bucket),
		httpclient.WithContentType("application/json"),
		httpclient.WithBody(body),
	)
	if err != nil {
		return nil, err
	}

	var objects []Object
	if err := json.Unmarshal(resp.Body(), &objects); err != nil {
		return nil, fmt.Errorf("unexpected storage listing response: %w", err)
	}
	return objects, nil
}
