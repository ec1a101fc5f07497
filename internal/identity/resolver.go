package identity

import (
	"context"
	"time"

	"github.com/darehouse/backend/internal/metrics"
	"github.com/darehouse/backend/internal/models"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// profileTTL bounds how long a stored profile is trusted before refetching.
const profileTTL = 24 * time.Hour

type ProfileStore interface {
	Get(ctx context.Context, address string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
}

type Lookuper interface {
	Lookup(ctx context.Context, addresses []string) (map[string]RemoteProfile, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, username string) (*PageInfo, error)
}

// Resolver answers address -> profile from an in-process LRU, then the
// profiles table, then the remote sources.
type Resolver struct {
	remote  Lookuper
	pages   PageFetcher
	store   ProfileStore
	cache   *lru.Cache
	metrics *metrics.Metrics
	now     func() time.Time
	log     *zap.Logger
}

func NewResolver(remote Lookuper, pages PageFetcher, store ProfileStore, cacheSize int, m *metrics.Metrics, log *zap.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		remote:  remote,
		pages:   pages,
		store:   store,
		cache:   cache,
		metrics: m,
		now:     time.Now,
		log:     log,
	}, nil
}

// Resolve returns a profile for every non-empty address. Addresses nothing
// is known about map to an empty profile.
func (r *Resolver) Resolve(ctx context.Context, addresses ...string) map[string]*models.Profile {
	out := make(map[string]*models.Profile, len(addresses))
	var missing []string

	for _, a := range addresses {
		if a == "" {
			continue
		}
		if _, done := out[a]; done {
			continue
		}
		if v, ok := r.cache.Get(a); ok {
			out[a] = v.(*models.Profile)
			r.metrics.IdentityLookup("cache", "hit")
			continue
		}
		if p := r.stored(ctx, a); p != nil {
			out[a] = p
			r.cache.Add(a, p)
			continue
		}
		out[a] = nil
		missing = append(missing, a)
	}

	if len(missing) > 0 {
		for a, p := range r.fetch(ctx, missing) {
			out[a] = p
		}
	}
	return out
}

func (r *Resolver) stored(ctx context.Context, address string) *models.Profile {
	if r.store == nil {
		return nil
	}
	p, err := r.store.Get(ctx, address)
	if err != nil {
		r.log.Warn("profile store read failed", zap.String("address", address), zap.Error(err))
		r.metrics.IdentityLookup("store", "error")
		return nil
	}
	if p == nil || r.now().Sub(p.FetchedAt) > profileTTL {
		return nil
	}
	r.metrics.IdentityLookup("store", "hit")
	return p
}

func (r *Resolver) fetch(ctx context.Context, addresses []string) map[string]*models.Profile {
	remote := map[string]RemoteProfile{}
	failed := false
	if r.remote != nil {
		got, err := r.remote.Lookup(ctx, addresses)
		if err != nil {
			r.log.Warn("profile service lookup failed", zap.Int("addresses", len(addresses)), zap.Error(err))
			r.metrics.IdentityLookup("service", "error")
			failed = true
		} else {
			remote = got
		}
	}

	out := make(map[string]*models.Profile, len(addresses))
	for _, a := range addresses {
		rp, found := remote[a]
		p := &models.Profile{
			Address:     a,
			Username:    optional(rp.Username),
			DisplayName: optional(rp.DisplayName),
			AvatarURL:   optional(rp.AvatarURL),
			FetchedAt:   r.now().UTC(),
		}
		out[a] = p
		if failed {
			// retried on the next lookup
			continue
		}
		if found {
			r.metrics.IdentityLookup("service", "hit")
		} else {
			r.metrics.IdentityLookup("service", "miss")
		}
		if p.Username != nil && (p.DisplayName == nil || p.AvatarURL == nil) {
			r.fillFromPage(ctx, p)
		}

		r.cache.Add(a, p)
		if r.store != nil {
			if err := r.store.Upsert(ctx, p); err != nil {
				r.log.Warn("profile store write failed", zap.String("address", a), zap.Error(err))
			}
		}
	}
	return out
}

func (r *Resolver) fillFromPage(ctx context.Context, p *models.Profile) {
	if r.pages == nil {
		return
	}
	info, err := r.pages.Fetch(ctx, *p.Username)
	if err != nil {
		r.log.Debug("profile page fetch failed", zap.String("username", *p.Username), zap.Error(err))
		r.metrics.IdentityLookup("page", "error")
		return
	}
	r.metrics.IdentityLookup("page", "hit")
	if p.DisplayName == nil {
		p.DisplayName = optional(info.DisplayName)
	}
	if p.AvatarURL == nil {
		p.AvatarURL = optional(info.AvatarURL)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
