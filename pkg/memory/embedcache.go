package memory

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/keepsake/pkg/logger"
)

const (
	// DefaultQueryCacheTTL is how long a query embedding stays fresh.
	DefaultQueryCacheTTL = 60 * time.Second

	// DefaultQueryCacheSize bounds the number of live cache entries.
	DefaultQueryCacheSize = 256

	minQueryLength = 3
)

var errInvalidEmbedding = errors.New("embedding provider returned an empty vector or model")

// CacheConfig configures a QueryEmbeddingCache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	Logger     *slog.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type cacheEntry struct {
	key       string
	embedding Embedding
	expiresAt time.Time
}

// QueryEmbeddingCache is a short-TTL, size-bounded cache of query embeddings.
// Concurrent misses for the same key share a single provider call.
type QueryEmbeddingCache struct {
	provider EmbeddingProvider
	ttl      time.Duration
	max      int
	now      func() time.Time
	logger   *slog.Logger

	// mu guards entries and order. order holds entries oldest-inserted first.
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	inflight singleflight.Group
}

// NewQueryEmbeddingCache creates a cache over provider.
func NewQueryEmbeddingCache(provider EmbeddingProvider, c CacheConfig) *QueryEmbeddingCache {
	if c.TTL <= 0 {
		c.TTL = DefaultQueryCacheTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultQueryCacheSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	return &QueryEmbeddingCache{
		provider: provider,
		ttl:      c.TTL,
		max:      c.MaxEntries,
		now:      c.Now,
		logger:   c.Logger,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the embedding for query under the model settings resolve to,
// or nil when the query is too short or the provider fails. Failures are
// logged, never returned: callers fall back to lexical ranking.
func (c *QueryEmbeddingCache) Get(ctx context.Context, query string, settings Settings, trace Trace) *Embedding {
	if c == nil || c.provider == nil {
		return nil
	}

	q := normalizeQuery(query)
	if utf8.RuneCountInString(q) < minQueryLength {
		return nil
	}

	model := c.provider.ResolveEmbeddingModel(settings)
	key := model + "\x00" + q

	if emb, ok := c.lookup(key); ok {
		return &emb
	}

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		// A waiter may have been behind a call that just stored this key.
		if emb, ok := c.lookup(key); ok {
			return emb, nil
		}

		emb, err := c.provider.EmbedText(context.WithoutCancel(ctx), EmbedRequest{
			Settings: settings,
			Text:     q,
			Trace:    trace,
		})
		if err != nil {
			return nil, err
		}
		if len(emb.Embedding) == 0 || emb.Model == "" {
			return nil, errInvalidEmbedding
		}

		c.insert(key, emb)
		return emb, nil
	})
	if err != nil {
		c.logger.Warn("query embedding failed",
			"model", model,
			"error", err,
		)
		return nil
	}

	emb := copyEmbedding(v.(Embedding))
	return &emb
}

// Len returns the number of entries currently held, expired or not.
func (c *QueryEmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

func (c *QueryEmbeddingCache) lookup(key string) (Embedding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return Embedding{}, false
	}

	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return Embedding{}, false
	}
	return copyEmbedding(entry.embedding), true
}

func (c *QueryEmbeddingCache) insert(key string, emb Embedding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:       key,
		embedding: copyEmbedding(emb),
		expiresAt: now.Add(c.ttl),
	})

	// Entries share one TTL, so insertion order is expiry order.
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		entry := el.Value.(*cacheEntry)
		if now.Before(entry.expiresAt) {
			break
		}
		c.order.Remove(el)
		delete(c.entries, entry.key)
	}

	for c.order.Len() > c.max {
		el := c.order.Front()
		c.order.Remove(el)
		delete(c.entries, el.Value.(*cacheEntry).key)
	}
}

func copyEmbedding(e Embedding) Embedding {
	return Embedding{
		Embedding: slices.Clone(e.Embedding),
		Model:     e.Model,
	}
}
