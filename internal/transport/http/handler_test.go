package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nimbusoft/datagate/internal/config"
	"github.com/nimbusoft/datagate/internal/domain/identity"
	"github.com/nimbusoft/datagate/internal/domain/proxy"
	"github.com/nimbusoft/datagate/internal/infra/engine"
)

const testTokenHeader = "X-Identity-Token"

type mockAppService struct {
	execute func(ctx context.Context, rawToken string, body []byte) (any, error)
}

func (m *mockAppService) Execute(ctx context.Context, rawToken string, body []byte) (any, error) {
	return m.execute(ctx, rawToken, body)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	cfg.Identity.TokenHeader = testTokenHeader
	cfg.CORS.AllowedOrigin = "*"
	return cfg
}

func newTestRouter(app *mockAppService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	return NewRouter(NewHandler(app, cfg), cfg)
}

func doProxy(router *gin.Engine, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/proxy", strings.NewReader(body))
	if token != "" {
		req.Header.Set(testTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (any, *string) {
	t.Helper()
	var env struct {
		Data  any     `json:"data"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("undecodable response %q: %v", rec.Body.String(), err)
	}
	return env.Data, env.Error
}

func TestProxy_Success(t *testing.T) {
	app := &mockAppService{
		execute: func(_ context.Context, rawToken string, body []byte) (any, error) {
			if rawToken != "token-abc" {
				t.Errorf("unexpected token %q", rawToken)
			}
			if string(body) != `{"resource":"health"}` {
				t.Errorf("unexpected body %q", body)
			}
			return map[string]string{"status": "ok"}, nil
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "token-abc", `{"resource":"health"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, errMsg := decodeEnvelope(t, rec)
	if errMsg != nil {
		t.Errorf("expected null error, got %q", *errMsg)
	}
	if m, ok := data.(map[string]any); !ok || m["status"] != "ok" {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestProxy_MissingTokenHeader(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			t.Error("app service must not run without a token")
			return nil, nil
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "", `{"resource":"health"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	data, errMsg := decodeEnvelope(t, rec)
	if data != nil {
		t.Errorf("expected null data, got %v", data)
	}
	if errMsg == nil || *errMsg != "Missing "+testTokenHeader+" header" {
		t.Errorf("unexpected error message: %v", errMsg)
	}
}

func TestProxy_InvalidToken(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, fmt.Errorf("%w: signature is invalid", identity.ErrInvalidToken)
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "forged", `{"resource":"health"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProxy_UnsupportedOperation(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, fmt.Errorf("%w: unknown resource %q", proxy.ErrUnsupported, "mailbox")
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "token-abc", `{"resource":"mailbox"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProxy_InvalidRequest(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, fmt.Errorf("%w: table is required", proxy.ErrInvalidRequest)
		},
	}
	router := newTestRouter(app)

	if rec := doProxy(router, "token-abc", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestProxy_EngineValidationErrorKeepsMessage(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, &engine.Error{StatusCode: http.StatusNotFound, Message: "relation does not exist"}
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "token-abc", `{"resource":"database"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	_, errMsg := decodeEnvelope(t, rec)
	if errMsg == nil || *errMsg != "relation does not exist" {
		t.Errorf("engine message not preserved: %v", errMsg)
	}
}

func TestProxy_EngineServerErrorKeepsMessage(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, &engine.Error{StatusCode: http.StatusBadGateway, Message: "connection refused"}
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "token-abc", `{"resource":"database"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	_, errMsg := decodeEnvelope(t, rec)
	if errMsg == nil || *errMsg != "connection refused" {
		t.Errorf("engine message not preserved: %v", errMsg)
	}
}

func TestProxy_InternalErrorMasked(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			return nil, errors.New("redis: connection pool exhausted at 10.0.0.5")
		},
	}
	router := newTestRouter(app)

	rec := doProxy(router, "token-abc", `{"resource":"health"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	_, errMsg := decodeEnvelope(t, rec)
	if errMsg == nil || *errMsg != "internal server error" {
		t.Errorf("internal detail leaked: %v", errMsg)
	}
}

func TestProxy_Preflight(t *testing.T) {
	app := &mockAppService{
		execute: func(context.Context, string, []byte) (any, error) {
			t.Error("app service must not run on preflight")
			return nil, nil
		},
	}
	router := newTestRouter(app)

	req := httptest.NewRequest(http.MethodOptions, "/v1/proxy", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing allow-origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), testTokenHeader) {
		t.Errorf("token header not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&mockAppService{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
