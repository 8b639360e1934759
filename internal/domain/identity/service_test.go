package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nimbusoft/datagate/internal/domain/identity"
	"github.com/nimbusoft/datagate/internal/infra/cache"
)

const (
	testIssuer   = "https://idp.example.test"
	testAudience = "datagate"
)

type signingKey struct {
	kid     string
	private *rsa.PrivateKey
}

func newSigningKey(t *testing.T, kid string) *signingKey {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return &signingKey{kid: kid, private: private}
}

func keySetOf(t *testing.T, keys ...*signingKey) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	for _, k := range keys {
		pub, err := jwk.FromRaw(&k.private.PublicKey)
		if err != nil {
			t.Fatalf("failed to build jwk: %v", err)
		}
		if err := pub.Set(jwk.KeyIDKey, k.kid); err != nil {
			t.Fatalf("failed to set kid: %v", err)
		}
		if err := set.AddKey(pub); err != nil {
			t.Fatalf("failed to add key: %v", err)
		}
	}
	return set
}

func (k *signingKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.private)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": testIssuer,
		"aud": testAudience,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// staticKeys serves a fixed key set; Refresh swaps in the rotated set when
// one is configured and counts how often it was forced.
type staticKeys struct {
	current   jwk.Set
	rotated   jwk.Set
	refreshes int
}

func (s *staticKeys) Keys(_ context.Context) (jwk.Set, error) {
	return s.current, nil
}

func (s *staticKeys) Refresh(_ context.Context) (jwk.Set, error) {
	s.refreshes++
	if s.rotated != nil {
		s.current = s.rotated
	}
	return s.current, nil
}

type memoryCache struct {
	entries map[string]*cache.CachedIdentity
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cache.CachedIdentity)}
}

func (m *memoryCache) Get(_ context.Context, tokenHash string) (*cache.CachedIdentity, error) {
	if entry, ok := m.entries[tokenHash]; ok {
		return entry, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *memoryCache) Set(_ context.Context, tokenHash string, value *cache.CachedIdentity, _ time.Duration) error {
	m.entries[tokenHash] = value
	return nil
}

func defaultOptions() identity.Options {
	return identity.Options{Issuer: testIssuer, Audience: testAudience}
}

func TestVerify_ValidToken(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	ident, err := svc.Verify(context.Background(), key.sign(t, validClaims("user-42")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ident.Subject != "user-42" {
		t.Errorf("unexpected subject %q", ident.Subject)
	}
	if ident.Claims["iss"] != testIssuer {
		t.Errorf("claims not carried through: %v", ident.Claims)
	}
	if keys.refreshes != 0 {
		t.Errorf("no refresh expected, got %d", keys.refreshes)
	}
}

func TestVerify_BearerPrefixStripped(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	ident, err := svc.Verify(context.Background(), "Bearer "+key.sign(t, validClaims("user-42")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.Subject != "user-42" {
		t.Errorf("unexpected subject %q", ident.Subject)
	}
}

func TestVerify_MissingToken(t *testing.T) {
	keys := &staticKeys{current: jwk.NewSet()}
	svc := identity.NewService(keys, nil, defaultOptions())

	if _, err := svc.Verify(context.Background(), "  "); !errors.Is(err, identity.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestVerify_RotatedKeyTriggersSingleRefresh(t *testing.T) {
	oldKey := newSigningKey(t, "kid-old")
	newKey := newSigningKey(t, "kid-new")
	keys := &staticKeys{
		current: keySetOf(t, oldKey),
		rotated: keySetOf(t, oldKey, newKey),
	}
	svc := identity.NewService(keys, nil, defaultOptions())

	ident, err := svc.Verify(context.Background(), newKey.sign(t, validClaims("user-42")))
	if err != nil {
		t.Fatalf("expected verification after refresh, got %v", err)
	}

	if ident.Subject != "user-42" {
		t.Errorf("unexpected subject %q", ident.Subject)
	}
	if keys.refreshes != 1 {
		t.Errorf("expected exactly one forced refresh, got %d", keys.refreshes)
	}
}

func TestVerify_UnknownKeyFailsAfterOneRefresh(t *testing.T) {
	knownKey := newSigningKey(t, "kid-1")
	strangerKey := newSigningKey(t, "kid-stranger")
	keys := &staticKeys{current: keySetOf(t, knownKey)}
	svc := identity.NewService(keys, nil, defaultOptions())

	_, err := svc.Verify(context.Background(), strangerKey.sign(t, validClaims("user-42")))
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if keys.refreshes != 1 {
		t.Errorf("expected exactly one forced refresh, got %d", keys.refreshes)
	}
}

func TestVerify_WrongSignatureRejected(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	impostor := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	_, err := svc.Verify(context.Background(), impostor.sign(t, validClaims("user-42")))
	if !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	claims := validClaims("user-42")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	if _, err := svc.Verify(context.Background(), key.sign(t, claims)); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	claims := validClaims("user-42")
	claims["iss"] = "https://impostor.example.test"

	if _, err := svc.Verify(context.Background(), key.sign(t, claims)); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	claims := validClaims("user-42")
	claims["aud"] = "someone-else"

	if _, err := svc.Verify(context.Background(), key.sign(t, claims)); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	svc := identity.NewService(keys, nil, defaultOptions())

	claims := validClaims("user-42")
	delete(claims, "sub")

	if _, err := svc.Verify(context.Background(), key.sign(t, claims)); !errors.Is(err, identity.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_CacheHitSkipsVerification(t *testing.T) {
	key := newSigningKey(t, "kid-1")
	keys := &staticKeys{current: keySetOf(t, key)}
	identityCache := newMemoryCache()
	svc := identity.NewService(keys, identityCache, identity.Options{
		Issuer:   testIssuer,
		Audience: testAudience,
		CacheTTL: time.Minute,
	})

	token := key.sign(t, validClaims("user-42"))

	if _, err := svc.Verify(context.Background(), token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(identityCache.entries) != 1 {
		t.Fatalf("expected cached identity, got %d entries", len(identityCache.entries))
	}

	// Rotate the provider's keys away; the cached identity must still serve.
	keys.current = keySetOf(t, newSigningKey(t, "kid-other"))

	ident, err := svc.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
	if ident.Subject != "user-42" {
		t.Errorf("unexpected subject %q", ident.Subject)
	}
	if keys.refreshes != 0 {
		t.Errorf("cache hit must not force a refresh, got %d", keys.refreshes)
	}
}
