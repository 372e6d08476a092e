package schema

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"queryforge/internal/mining"
	"queryforge/internal/models"
)

// DocsResult is what the external documentation service knows about an
// entity. A nil result means the service has never heard of it.
type DocsResult struct {
	Relations []string `json:"relations"`
	Filters   []string `json:"filters"`
	APIPath   string   `json:"api_path,omitempty"`
}

// DocsLookup is the external documentation service consumed by the
// resolver. Implementations return (nil, nil) for unknown entities.
type DocsLookup interface {
	Lookup(ctx context.Context, entity string) (*DocsResult, error)
}

const (
	defaultCacheTTL    = 30 * time.Minute
	defaultConcurrency = 5
	redisDocsPrefix    = "qf:docs:"
)

// Resolver resolves entity descriptors through a TTL cache. Pre-registered
// entities always come from the static registry (owned data); everything
// else tries the documentation service, then the registry, then facts from
// the context miners. Every path populates the same cache.
type Resolver struct {
	registry    *Registry
	miners      *mining.Service
	docs        DocsLookup
	cache       *gocache.Cache
	redis       *redis.Client
	ttl         time.Duration
	concurrency int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDocs attaches the external documentation service.
func WithDocs(docs DocsLookup) ResolverOption {
	return func(r *Resolver) { r.docs = docs }
}

// WithRedis attaches a Redis client used as a shared second-level cache
// for documentation lookups.
func WithRedis(client *redis.Client) ResolverOption {
	return func(r *Resolver) { r.redis = client }
}

// WithTTL overrides the schema cache TTL.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
			r.cache = gocache.New(ttl, ttl/2)
		}
	}
}

// WithConcurrency overrides the ResolveMany concurrency cap.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a schema resolver over the registry and miners.
func NewResolver(registry *Registry, miners *mining.Service, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry:    registry,
		miners:      miners,
		ttl:         defaultCacheTTL,
		cache:       gocache.New(defaultCacheTTL, defaultCacheTTL/2),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the descriptor for an entity. It never fails: resolution
// errors are absorbed (logged) because missing schema only degrades plan
// quality. Fully unknown entities get the unknown descriptor, which must
// never be queried directly.
func (r *Resolver) Resolve(ctx context.Context, name string) *models.EntityDescriptor {
	if cached, ok := r.cache.Get(name); ok {
		return cached.(*models.EntityDescriptor)
	}

	desc := r.resolveUncached(ctx, name)
	r.cache.Set(name, desc, r.ttl)
	return desc
}

func (r *Resolver) resolveUncached(ctx context.Context, name string) *models.EntityDescriptor {
	// Pre-registered entities are owned data; the registry is authoritative.
	if r.registry.IsCore(name) {
		d, _ := r.registry.Get(name)
		return d
	}

	if docsDesc := r.resolveFromDocs(ctx, name); docsDesc != nil {
		return docsDesc
	}

	if d, ok := r.registry.Get(name); ok {
		return d
	}

	if minedDesc := r.resolveFromMiners(name); minedDesc != nil {
		return minedDesc
	}

	return models.UnknownDescriptor(name)
}

// ResolveMany resolves several entities concurrently, capped at the
// configured concurrency to bound latency and documentation-service load.
func (r *Resolver) ResolveMany(ctx context.Context, names []string) map[string]*models.EntityDescriptor {
	results := make(map[string]*models.EntityDescriptor, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, name := range names {
		g.Go(func() error {
			desc := r.Resolve(gctx, name)
			mu.Lock()
			results[name] = desc
			mu.Unlock()
			return nil
		})
	}

	// Resolution never returns errors, so Wait cannot fail.
	_ = g.Wait()
	return results
}

// Discover attempts to recognize a candidate name extracted from free text.
// External discovery runs before the entity is declared unknown.
func (r *Resolver) Discover(ctx context.Context, candidate string) models.DiscoveryResult {
	if r.registry.IsCore(candidate) {
		d, _ := r.registry.Get(candidate)
		return models.DiscoveryResult{IsValid: true, Category: models.CategoryPreRegistered, Descriptor: d}
	}

	if docsDesc := r.resolveFromDocs(ctx, candidate); docsDesc != nil {
		r.cache.Set(candidate, docsDesc, r.ttl)
		return models.DiscoveryResult{IsValid: true, Category: models.CategoryDiscovered, Descriptor: docsDesc}
	}

	if d, ok := r.registry.Get(candidate); ok {
		return models.DiscoveryResult{IsValid: true, Category: d.Category, Descriptor: d}
	}

	if minedDesc := r.resolveFromMiners(candidate); minedDesc != nil {
		r.cache.Set(candidate, minedDesc, r.ttl)
		return models.DiscoveryResult{IsValid: true, Category: models.CategoryDiscovered, Descriptor: minedDesc}
	}

	return models.DiscoveryResult{IsValid: false, Category: models.CategoryUnknown}
}

// resolveFromDocs consults the shared Redis cache, then the documentation
// service. Failures are absorbed.
func (r *Resolver) resolveFromDocs(ctx context.Context, name string) *models.EntityDescriptor {
	if r.docs == nil {
		return nil
	}

	if result := r.docsFromRedis(ctx, name); result != nil {
		return descriptorFromDocs(name, result)
	}

	result, err := r.docs.Lookup(ctx, name)
	if err != nil {
		log.Printf("⚠️ [SCHEMA] Docs lookup failed for %s: %v", name, err)
		return nil
	}
	if result == nil {
		return nil
	}

	r.docsToRedis(ctx, name, result)
	return descriptorFromDocs(name, result)
}

func (r *Resolver) docsFromRedis(ctx context.Context, name string) *DocsResult {
	if r.redis == nil {
		return nil
	}
	raw, err := r.redis.Get(ctx, redisDocsPrefix+name).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("⚠️ [SCHEMA] Redis docs cache read failed for %s: %v", name, err)
		}
		return nil
	}
	var result DocsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return &result
}

func (r *Resolver) docsToRedis(ctx context.Context, name string, result *DocsResult) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, redisDocsPrefix+name, raw, r.ttl).Err(); err != nil {
		log.Printf("⚠️ [SCHEMA] Redis docs cache write failed for %s: %v", name, err)
	}
}

func descriptorFromDocs(name string, result *DocsResult) *models.EntityDescriptor {
	return &models.EntityDescriptor{
		Name:             name,
		Category:         models.CategoryDiscovered,
		AccessMethod:     models.AccessHTTPAPI,
		Relations:        result.Relations,
		FilterableFields: result.Filters,
		APIPath:          result.APIPath,
	}
}

// resolveFromMiners builds a descriptor from mined source facts when the
// entity exists nowhere else.
func (r *Resolver) resolveFromMiners(name string) *models.EntityDescriptor {
	if r.miners == nil {
		return nil
	}
	facts, ok := r.miners.Context()[name]
	if !ok {
		return nil
	}

	return &models.EntityDescriptor{
		Name:             name,
		Category:         models.CategoryDiscovered,
		AccessMethod:     models.AccessHTTPAPI,
		Relations:        facts.Relations,
		FilterableFields: facts.Fields,
		EnumFields:       facts.EnumValues,
	}
}
