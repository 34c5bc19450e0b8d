package services

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/time/rate"
)

const (
	resolverAttemptsFlag    = "resolver-attempts"
	resolverBackoffFlag     = "resolver-backoff"
	resolverConcurrencyFlag = "resolver-concurrency"
	resolverRateFlag        = "resolver-rate"
	resolverResolutionsFlag = "resolver-resolutions"
)

func RegisterLinkResolverFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.IntFlag{
			Name:   resolverAttemptsFlag,
			Usage:  "attempts per resolve on transient upstream errors",
			Value:  3,
			EnvVar: "RESOLVER_ATTEMPTS",
		},
		cli.IntFlag{
			Name:   resolverBackoffFlag,
			Usage:  "base retry backoff (milliseconds), doubled per attempt",
			Value:  500,
			EnvVar: "RESOLVER_BACKOFF",
		},
		cli.IntFlag{
			Name:   resolverConcurrencyFlag,
			Usage:  "max concurrent resolve calls to the provider",
			Value:  8,
			EnvVar: "RESOLVER_CONCURRENCY",
		},
		cli.Float64Flag{
			Name:   resolverRateFlag,
			Usage:  "max resolve calls per second to the provider",
			Value:  5,
			EnvVar: "RESOLVER_RATE",
		},
		cli.StringFlag{
			Name:   resolverResolutionsFlag,
			Usage:  "preferred transcode resolutions, best first",
			Value:  "1080p,720p,480p",
			EnvVar: "RESOLVER_RESOLUTIONS",
		},
	)
}

var resolverAttempts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "strm_resolver_attempts_total",
	Help: "Resolve calls issued to the provider, including retries.",
})

// LinkResolver turns (file id, kind) into a playable link by calling the
// provider, with bounded retries and provider-friendly throttling. Callers
// beyond the concurrency cap queue on the semaphore rather than fail.
type LinkResolver struct {
	cl          CloudClient
	attempts    int
	backoff     time.Duration
	resolutions []string
	sem         chan struct{}
	lim         *rate.Limiter
}

func NewLinkResolver(c *cli.Context, cl CloudClient) *LinkResolver {
	concurrency := c.Int(resolverConcurrencyFlag)
	if concurrency < 1 {
		concurrency = 1
	}
	var resolutions []string
	for _, r := range strings.Split(c.String(resolverResolutionsFlag), ",") {
		if r = strings.TrimSpace(r); r != "" {
			resolutions = append(resolutions, r)
		}
	}
	return &LinkResolver{
		cl:          cl,
		attempts:    c.Int(resolverAttemptsFlag),
		backoff:     time.Duration(c.Int(resolverBackoffFlag)) * time.Millisecond,
		resolutions: resolutions,
		sem:         make(chan struct{}, concurrency),
		lim:         rate.NewLimiter(rate.Limit(c.Float64(resolverRateFlag)), concurrency),
	}
}

func (s *LinkResolver) Resolve(ctx context.Context, fileID string, kind LinkKind) (*CachedLink, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	var last error
	backoff := s.backoff
	for i := 0; i < s.attempts; i++ {
		if i > 0 {
			log.WithField("file", fileID).WithError(last).Warnf("retrying resolve, attempt %v", i+1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
		if err := s.lim.Wait(ctx); err != nil {
			return nil, err
		}
		resolverAttempts.Inc()
		l, err := s.resolve(ctx, fileID, kind)
		if err == nil {
			return l, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		last = err
	}
	return nil, errors.Wrapf(last, "resolve failed after %v attempts file=%v", s.attempts, fileID)
}

func (s *LinkResolver) resolve(ctx context.Context, fileID string, kind LinkKind) (*CachedLink, error) {
	switch kind {
	case LinkKindTranscode:
		variants, err := s.cl.ResolveTranscode(ctx, fileID, s.resolutions)
		if err != nil {
			return nil, err
		}
		v, err := s.pick(variants)
		if err != nil {
			return nil, errors.Wrapf(err, "file=%v", fileID)
		}
		return &CachedLink{
			FileID:    fileID,
			URL:       v.URL,
			Kind:      LinkKindTranscode,
			ExpiresAt: time.Now().Add(time.Duration(v.ExpiresIn) * time.Second),
		}, nil
	default:
		rl, err := s.cl.ResolveDownload(ctx, fileID)
		if err != nil {
			return nil, err
		}
		return &CachedLink{
			FileID:    fileID,
			URL:       rl.URL,
			Headers:   rl.Headers,
			Kind:      LinkKindDownload,
			ExpiresAt: time.Now().Add(time.Duration(rl.ExpiresIn) * time.Second),
		}, nil
	}
}

// pick returns the first preferred resolution with a usable url, falling
// back down the preference list, then to any remaining variant.
func (s *LinkResolver) pick(variants []TranscodeVariant) (*TranscodeVariant, error) {
	for _, want := range s.resolutions {
		for i := range variants {
			if variants[i].Resolution == want && variants[i].URL != "" {
				return &variants[i], nil
			}
		}
	}
	for i := range variants {
		if variants[i].URL != "" {
			return &variants[i], nil
		}
	}
	return nil, errors.Errorf("no playable transcode variant among %v candidates", len(variants))
}
