package services

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/urfave/cli"
)

// Validator answers "is this resolved link still usable" without starting
// a full stream. Download links get a HEAD probe; transcode links serve an
// HLS manifest, so the first bytes are sniffed instead since many providers
// reject HEAD on manifest endpoints.
type Validator struct {
	cl *http.Client
}

func NewValidator(c *cli.Context, cl *http.Client) *Validator {
	return &Validator{
		cl: cl,
	}
}

func (s *Validator) IsValid(ctx context.Context, l *CachedLink) bool {
	switch l.Kind {
	case LinkKindTranscode:
		return s.validManifest(ctx, l)
	default:
		return s.validHead(ctx, l)
	}
}

func (s *Validator) validHead(ctx context.Context, l *CachedLink) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, l.URL, nil)
	if err != nil {
		return false
	}
	for k, v := range l.Headers {
		req.Header.Set(k, v)
	}
	res, err := s.cl.Do(req)
	if err != nil {
		return false
	}
	drain(res)
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusFound {
		return false
	}
	// an expired link frequently 200s with an html error page
	ct := res.Header.Get("Content-Type")
	return !strings.HasPrefix(ct, "text/html")
}

func (s *Validator) validManifest(ctx context.Context, l *CachedLink) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return false
	}
	res, err := s.cl.Do(req)
	if err != nil {
		return false
	}
	defer drain(res)
	if res.StatusCode != http.StatusOK {
		return false
	}
	head := make([]byte, 7)
	if _, err := io.ReadFull(res.Body, head); err != nil {
		return false
	}
	return string(head) == "#EXTM3U"
}
