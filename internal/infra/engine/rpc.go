package engine

import (
	"context"
	"encoding/json"
	"net/http"

	httpclient "github.com/nimbusoft/datagate/pkg/http"
)

func (c *Client) Call(
	ctx context.Context,
	function string,
	args map[string]any,
) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.do(ctx, http.MethodPost, procedurePathPrefix+escapeSegment(function),
		httpclient.WithContentType("application/json"),
		httpclient.WithBody(args),
	)
	if err != nil {
		return nil, err
	}

	body := resp.Body()
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(body), nil
}
