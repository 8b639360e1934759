package http

import (
	"errors"
	"io"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	proxyapp "github.com/nimbusoft/datagate/internal/app/proxy"
	"github.com/nimbusoft/datagate/internal/config"
	"github.com/nimbusoft/datagate/internal/domain/identity"
	"github.com/nimbusoft/datagate/internal/domain/proxy"
	"github.com/nimbusoft/datagate/internal/infra/engine"
	"github.com/nimbusoft/datagate/pkg/logger"
	"github.com/nimbusoft/datagate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

type Handler struct {
	appService  proxyapp.Service
	tokenHeader string
}

func NewHandler(appService proxyapp.Service, cfg *config.Config) *Handler {
	return &Handler{
		appService:  appService,
		tokenHeader: cfg.Identity.TokenHeader,
	}
}

// envelope is the fixed response shape: exactly one of data and error is set.
type envelope struct {
	Data  any     `json:"data"`
	Error *string `json:"error"`
}

func dataEnvelope(data any) envelope {
	return envelope{Data: data}
}

func errorEnvelope(msg string) envelope {
	return envelope{Error: &msg}
}

func (h *Handler) Proxy(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "transport.http.Proxy")
	defer span.End()

	rawToken := c.GetHeader(h.tokenHeader)
	if rawToken == "" {
		span.SetAttributes(attribute.Bool("proxy.missing_token", true))
		c.JSON(http.StatusUnauthorized, errorEnvelope("Missing "+h.tokenHeader+" header"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("failed to read request body"))
		return
	}

	data, err := h.appService.Execute(ctx, rawToken, body)
	if err != nil {
		status := statusFor(err)
		span.RecordError(err)

		// Engine failures keep the engine's own message regardless of the
		// mapped status; only unexpected internal failures are masked.
		var engineErr *engine.Error
		if status >= http.StatusInternalServerError && !errors.As(err, &engineErr) {
			logger.ErrorContext(ctx, "proxy operation failed", slog.String("error", err.Error()))
			c.JSON(status, errorEnvelope("internal server error"))
			return
		}
		c.JSON(status, errorEnvelope(err.Error()))
		return
	}

	c.JSON(http.StatusOK, dataEnvelope(data))
}

// statusFor maps the error taxonomy onto HTTP statuses: authentication
// failures are 401, malformed or unsupported operations 400, engine errors
// keep 400 for validation-shaped failures and fall back to 500, everything
// else is 500.
func statusFor(err error) int {
	var engineErr *engine.Error

	switch {
	case errors.Is(err, identity.ErrMissingToken), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, proxy.ErrUnsupported), errors.Is(err, proxy.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &engineErr):
		if engineErr.StatusCode >= http.StatusBadRequest && engineErr.StatusCode < http.StatusInternalServerError {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
