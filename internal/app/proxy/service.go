package proxy

import (
	"context"

	"github.com/nimbusoft/datagate/internal/domain/identity"
	proxydomain "github.com/nimbusoft/datagate/internal/domain/proxy"
	"github.com/nimbusoft/datagate/pkg/tracer"
	"go.opentelemetry.io/otel/attribute"
)

type Service interface {
	Execute(ctx context.Context, rawToken string, body []byte) (any, error)
}

type service struct {
	verifier identity.Service
	router   *proxydomain.Router
}

func NewService(verifier identity.Service, router *proxydomain.Router) Service {
	return &service{
		verifier: verifier,
		router:   router,
	}
}

// Execute verifies the caller, parses the operation and routes it. Every
// failure surfaces as an error the transport maps to a status and envelope.
func (s *service) Execute(ctx context.Context, rawToken string, body []byte) (any, error) {
	ctx, span := tracer.Start(ctx, "app.proxy.Execute")
	defer span.End()

	ident, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("proxy.subject", ident.Subject))

	op, err := proxydomain.ParseRequest(body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	data, err := s.router.Route(ctx, op, ident)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return data, nil
}
