package jwks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/lestrrat-go/jwx/v2/jwk"
	httpclient "github.com/nimbusoft/datagate/pkg/http"
	"github.com/nimbusoft/datagate/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// Cache holds the identity provider's published key set and refreshes it once
// its freshness window elapses. Refreshes are coalesced so concurrent callers
// share a single upstream fetch, and a fetch failure falls back to the last
// known set (marked stale so the next call retries the fetch).
type Cache struct {
	url          string
	ttl          time.Duration
	fetchTimeout time.Duration

	group singleflight.Group

	mu        sync.RWMutex
	set       jwk.Set
	fetchedAt time.Time
	stale     bool
}

func NewCache(url string, ttl, fetchTimeout time.Duration) *Cache {
	return &Cache{
		url:          url,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
	}
}

// Keys returns the cached key set, fetching a fresh one when none is held or
// the held set has aged out.
func (c *Cache) Keys(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	set := c.set
	fresh := set != nil && !c.stale && time.Since(c.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return set, nil
	}
	return c.refresh(ctx)
}

// Refresh forces a fetch regardless of freshness. It is used when a token
// carries a key id the cached set does not know, which happens after the
// provider rotates keys mid-window.
func (c *Cache) Refresh(ctx context.Context) (jwk.Set, error) {
	return c.refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) (jwk.Set, error) {
	v, err, _ := c.group.Do("keyset", func() (any, error) {
		fetched, fetchErr := c.fetch()
		c.mu.Lock()
		defer c.mu.Unlock()

		if fetchErr != nil {
			if c.set != nil {
				// Prefer availability: serve the stale set and leave it
				// marked so the next call retries the fetch.
				logger.WarnContext(ctx, "key set fetch failed, serving stale set",
					slog.String("error", fetchErr.Error()))
				c.stale = true
				return c.set, nil
			}
			return nil, fetchErr
		}

		c.set = fetched
		c.fetchedAt = time.Now()
		c.stale = false
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(jwk.Set), nil
}

// fetch runs on its own deadline, detached from any request context, so an
// abandoned inbound request cannot poison the shared cache.
func (c *Cache) fetch() (jwk.Set, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
	defer cancel()

	resp, err := httpclient.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("key set fetch failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("key set fetch returned status %d", resp.StatusCode())
	}

	set, err := jwk.Parse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}
	return set, nil
}
