package identity

import (
	"context"
	"strings"
	"time"

	"github.com/symmetricalboy/bsky-to-gem/pkg/atproto"
	"github.com/symmetricalboy/bsky-to-gem/pkg/errors"
	"github.com/symmetricalboy/bsky-to-gem/pkg/logger"
)

// Resolver maps handles to DIDs through the public resolution service,
// optionally consulting an identity cache first
type Resolver struct {
	client HandleResolver
	cache  Cache
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

// NewResolver creates a resolver backed by client
func NewResolver(client HandleResolver, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

// WithCache enables the identity cache. Entries older than ttl are ignored.
func (r *Resolver) WithCache(cache Cache, ttl time.Duration) *Resolver {
	r.cache = cache
	r.ttl = ttl
	return r
}

// Resolve returns the identity for handle. Failures are resolution errors
// and are never retried.
func (r *Resolver) Resolve(ctx context.Context, handle string) (*Identity, error) {
	h := atproto.SanitizeHandle(handle)
	if h == "" {
		return nil, errors.Resolution(handle, errors.New(errors.KindInvalidInput, "", "handle is empty"))
	}
	if !atproto.IsValidHandle(h) {
		return nil, errors.Resolution(handle, errors.New(errors.KindInvalidInput, "", "not a valid handle"))
	}

	if cached := r.lookupCache(ctx, h); cached != nil {
		return cached, nil
	}

	did, err := r.client.ResolveHandle(ctx, h)
	if err != nil {
		r.logger.WithError(err).WarnWithFields("handle resolution failed", map[string]interface{}{
			"handle": h,
		})
		return nil, errors.Resolution(h, err)
	}
	if !strings.HasPrefix(did, "did:") {
		return nil, errors.Resolution(h, errors.New(errors.KindParsing, "", "resolver returned "+did))
	}

	r.logger.InfoWithFields("handle resolved", map[string]interface{}{
		"handle": h,
		"did":    did,
	})

	return &Identity{
		DID:        did,
		Handle:     h,
		ResolvedAt: r.now(),
		Method:     MethodXRPC,
	}, nil
}

// ResolveHandle returns only the DID for handle
func (r *Resolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	id, err := r.Resolve(ctx, handle)
	if err != nil {
		return "", err
	}
	return id.DID, nil
}

// Remember writes id back to the cache. Cache failures are logged only.
func (r *Resolver) Remember(ctx context.Context, id *Identity) {
	if r.cache == nil || id == nil || id.Method == MethodCache {
		return
	}
	if err := r.cache.PutIdentity(ctx, id); err != nil {
		r.logger.WithError(err).WarnWithFields("failed to cache identity", map[string]interface{}{
			"handle": id.Handle,
		})
	}
}

// Purge drops handle from the cache
func (r *Resolver) Purge(ctx context.Context, handle string) {
	if r.cache == nil {
		return
	}
	h := atproto.SanitizeHandle(handle)
	if err := r.cache.PurgeIdentity(ctx, h); err != nil {
		r.logger.WithError(err).WarnWithFields("failed to purge cached identity", map[string]interface{}{
			"handle": h,
		})
	}
}

func (r *Resolver) lookupCache(ctx context.Context, handle string) *Identity {
	if r.cache == nil {
		return nil
	}

	cached, err := r.cache.GetIdentity(ctx, handle, r.ttl)
	if err != nil {
		r.logger.WithError(err).Warn("identity cache lookup failed")
		return nil
	}
	if cached == nil {
		return nil
	}

	r.logger.DebugWithFields("identity cache hit", map[string]interface{}{
		"handle": handle,
		"did":    cached.DID,
		"pds":    cached.PDSURL,
	})
	cached.Method = MethodCache
	return cached
}
