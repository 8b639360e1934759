package engine

import (
	"context"
	"net/http"
	"strings"

	httpclient "github.com/nimbusoft/datagate/pkg/http"
)

const (
	preferHeader        = "Prefer"
	preferRepresent     = "return=representation"
	preferMergeUpsert   = "resolution=merge-duplicates,return=representation"
	equalityPrefix      = "eq."
	selectParam         = "select"
	databasePathPrefix  = "/rest/v1/"
	procedurePathPrefix = "/rest/v1/rpc/"
)

// queryParams builds the query string for a table operation: the column
// projection plus one equality match per filter.
func queryParams(columns []string, filters map[string]string) map[string]string {
	params := make(map[string]string, len(filters)+1)
	if len(columns) > 0 {
		params[selectParam] = strings.Join(columns, ",")
	} else {
		params[selectParam] = "*"
	}
	for column, value := range filters {
		params[column] = equalityPrefix + value
	}
	return params
}

func (c *Client) Select(
	ctx context.Context,
	table string,
	columns []string,
	filters map[string]string,
) (*Result, error) {
	resp, err := c.do(ctx, http.MethodGet, databasePathPrefix+escapeSegment(table),
		httpclient.WithQueryParams(queryParams(columns, filters)),
	)
	if err != nil {
		return nil, err
	}
	return rowResult(resp.Body())
}

func (c *Client) Insert(ctx context.Context, table string, rows []Row) (*Result, error) {
	resp, err := c.do(ctx, http.MethodPost, databasePathPrefix+escapeSegment(table),
		httpclient.WithContentType("application/json"),
		httpclient.WithHeader(preferHeader, preferRepresent),
		httpclient.WithBody(rows),
	)
	if err != nil {
		return nil, err
	}
	return rowResult(resp.Body())
}

func (c *Client) Upsert(ctx context.Context, table string, rows []Row) (*Result, error) {
	resp, err := c.do(ctx, http.MethodPost, databasePathPrefix+escapeSegment(table),
		httpclient.WithContentType("application/json"),
		httpclient.WithHeader(preferHeader, preferMergeUpsert),
		httpclient.WithBody(rows),
	)
	if err != nil {
		return nil, err
	}
	return rowResult(resp.Body())
}

func (c *Client) Update(
	ctx context.Context,
	table string,
	values Row,
	filters map[string]string,
) (*Result, error) {
	resp, err := c.do(ctx, http.MethodPatch, databasePathPrefix+escapeSegment(table),
		httpclient.WithQueryParams(queryParams(nil, filters)),
		httpclient.WithContentType("application/json"),
		httpclient.WithHeader(preferHeader, preferRepresent),
		httpclient.WithBody(values),
	)
	if err != nil {
		return nil, err
	}
	return rowResult(resp.Body())
}

func (c *Client) Delete(
	ctx context.Context,
	table string,
	filters map[string]string,
) (*Result, error) {
	resp, err := c.do(ctx, http.MethodDelete, databasePathPrefix+escapeSegment(table),
		httpclient.WithQueryParams(queryParams(nil, filters)),
		httpclient.WithHeader(preferHeader, preferRepresent),
	)
	if err != nil {
		return nil, err
	}
	return rowResult(resp.Body())
}
