package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nimbusoft/datagate/internal/infra/cache"
	"github.com/nimbusoft/datagate/pkg/logger"
)

// KeyProvider supplies the identity provider's current verification keys.
type KeyProvider interface {
	Keys(ctx context.Context) (jwk.Set, error)
	Refresh(ctx context.Context) (jwk.Set, error)
}

type Service interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// Options pin the claims a token must carry to be accepted.
type Options struct {
	Issuer   string
	Audience string
	CacheTTL time.Duration
}

type service struct {
	keys          KeyProvider
	identityCache cache.IdentityCache
	opts          Options
	parser        *jwt.Parser
}

var errKeyNotFound = errors.New("no key in set matches token key id")

func NewService(keys KeyProvider, identityCache cache.IdentityCache, opts Options) Service {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	return &service{
		keys:          keys,
		identityCache: identityCache,
		opts:          opts,
		parser:        jwt.NewParser(parserOpts...),
	}
}

func (s *service) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	rawToken = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rawToken), "Bearer "))
	if rawToken == "" {
		return nil, ErrMissingToken
	}

	tokenHash := hashToken(rawToken)

	if s.identityCache != nil {
		cached, err := s.identityCache.Get(ctx, tokenHash)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.WarnContext(ctx, "identity cache lookup failed, verifying token",
				slog.String("error", err.Error()))
		}
		if err == nil && cached != nil {
			return &Identity{Subject: cached.Subject, Claims: cached.Claims}, nil
		}
	}

	set, err := s.keys.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("key set unavailable: %w", err)
	}

	ident, expiresAt, err := s.parse(rawToken, set)
	if errors.Is(err, errKeyNotFound) {
		// The provider may have rotated keys inside the cache window. One
		// forced refresh is allowed before the token is rejected.
		set, err = s.keys.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("key set refresh failed: %w", err)
		}
		ident, expiresAt, err = s.parse(rawToken, set)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if s.identityCache != nil {
		if ttl := cacheTTL(s.opts.CacheTTL, expiresAt); ttl > 0 {
			entry := &cache.CachedIdentity{Subject: ident.Subject, Claims: ident.Claims}
			if setErr := s.identityCache.Set(ctx, tokenHash, entry, ttl); setErr != nil {
				logger.WarnContext(ctx, "failed to cache verified identity",
					slog.String("error", setErr.Error()))
			}
		}
	}

	return ident, nil
}

func (s *service) parse(rawToken string, set jwk.Set) (*Identity, time.Time, error) {
	claims := jwt.MapClaims{}

	_, err := s.parser.ParseWithClaims(rawToken, claims, keyfuncFor(set))
	if err != nil {
		return nil, time.Time{}, err
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, time.Time{}, errors.New("token has no subject claim")
	}

	var expiresAt time.Time
	if exp, expErr := claims.GetExpirationTime(); expErr == nil && exp != nil {
		expiresAt = exp.Time
	}

	return &Identity{Subject: subject, Claims: claims}, expiresAt, nil
}

// keyfuncFor resolves the token's kid header against the key set and hands the
// raw public key to the JWT parser.
func keyfuncFor(set jwk.Set) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errKeyNotFound
		}
		key, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, errKeyNotFound
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			return nil, fmt.Errorf("failed to materialize verification key: %w", err)
		}
		return raw, nil
	}
}

// cacheTTL caps the configured TTL at the token's own remaining lifetime so a
// cached identity can never outlive the token that proved it.
func cacheTTL(configured time.Duration, expiresAt time.Time) time.Duration {
	if configured <= 0 {
		return 0
	}
	if expiresAt.IsZero() {
		return configured
	}
	remaining := time.Until(expiresAt)
	if remaining < configured {
		return remaining
	}
	return configured
}

func hashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}
