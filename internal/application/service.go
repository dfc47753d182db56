package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/viralforge/sessionauth/internal/ports"
)

const serviceName = "session-auth-service"

var tracer = otel.Tracer("github.com/viralforge/sessionauth/internal/application")

// Service is the authentication engine. It holds no mutable state of its own;
// every per-user mutation goes through a UserStore transactional scope.
type Service struct {
	cfg    Config
	users  ports.UserStore
	hasher ports.PasswordHasher
	tokens ports.TokenCodec
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config
	Users  ports.UserStore
	Hasher ports.PasswordHasher
	Tokens ports.TokenCodec
	// Clock overrides the wall clock, mainly for tests.
	Clock func() time.Time
}

func NewService(deps Dependencies) *Service {
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:    deps.Config,
		users:  deps.Users,
		hasher: deps.Hasher,
		tokens: deps.Tokens,
		nowFn:  nowFn,
	}
}

// PublicJWKs exposes verification keys for asymmetric signing setups.
func (s *Service) PublicJWKs() ([]map[string]any, error) {
	return s.tokens.PublicJWKs()
}

func startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+operation, trace.WithAttributes(attrs...))
}

// endSpan records err on the span unless it is an expected domain outcome.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("auth.outcome", outcomeLabel(err)))
		if isInternal(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
