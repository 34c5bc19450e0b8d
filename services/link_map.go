package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"github.com/webtor-io/lazymap"
)

const (
	linkMapMarginFlag = "link-safety-margin"
)

func RegisterLinkMapFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.IntFlag{
			Name:   linkMapMarginFlag,
			Usage:  "seconds subtracted from provider-declared link expiry",
			Value:  60,
			EnvVar: "LINK_SAFETY_MARGIN",
		},
	)
}

var (
	linkCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strm_link_cache_hits_total",
		Help: "Link lookups served from cache.",
	})
	linkCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strm_link_cache_misses_total",
		Help: "Link lookups that had to resolve upstream.",
	})
	linkCacheDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strm_link_cache_invalidations_total",
		Help: "Cached links dropped after an observed failure.",
	})
)

// LinkMap caches resolved links per (kind, file id) with single-flight
// resolution: concurrent callers for one uncached key share a single
// resolver call. An entry is never served past its margin-adjusted expiry.
type LinkMap struct {
	*lazymap.LazyMap[*CachedLink]
	r      *LinkResolver
	margin time.Duration
}

func NewLinkMap(c *cli.Context, r *LinkResolver) *LinkMap {
	return &LinkMap{
		LazyMap: lazymap.New[*CachedLink](&lazymap.Config{
			Concurrency: 100,
			ErrorExpire: 5 * time.Second,
			Capacity:    10000,
		}),
		r:      r,
		margin: time.Duration(c.Int(linkMapMarginFlag)) * time.Second,
	}
}

func linkKey(fileID string, kind LinkKind) string {
	return string(kind) + "-" + fileID
}

func (s *LinkMap) Get(ctx context.Context, fileID string, kind LinkKind) (*CachedLink, error) {
	key := linkKey(fileID, kind)
	for i := 0; i < 2; i++ {
		resolved := false
		l, err := s.LazyMap.Get(key, func() (*CachedLink, error) {
			resolved = true
			return s.resolve(ctx, fileID, kind)
		})
		if err != nil {
			return nil, err
		}
		if resolved {
			linkCacheMisses.Inc()
			return l, nil
		}
		if time.Now().Before(l.ExpiresAt) {
			linkCacheHits.Inc()
			return l, nil
		}
		// expired entry, never resurrected without a fresh resolve
		s.LazyMap.Drop(key)
	}
	// two expired rounds means the margin eats the whole declared lifetime;
	// serve a fresh resolve without caching it
	linkCacheMisses.Inc()
	l, err := s.r.Resolve(ctx, fileID, kind)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *LinkMap) resolve(ctx context.Context, fileID string, kind LinkKind) (*CachedLink, error) {
	l, err := s.r.Resolve(ctx, fileID, kind)
	if err != nil {
		return nil, err
	}
	l.ExpiresAt = l.ExpiresAt.Add(-s.margin)
	return l, nil
}

// Invalidate drops a cached link after the proxy saw it fail in use. The
// next Get resolves afresh.
func (s *LinkMap) Invalidate(fileID string, kind LinkKind) {
	log.WithField("file", fileID).WithField("kind", kind).Info("invalidating cached link")
	linkCacheDrops.Inc()
	s.LazyMap.Drop(linkKey(fileID, kind))
}
