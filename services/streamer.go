package services

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	streamerModeFlag = "stream-mode"
)

type StreamMode string

const (
	StreamModeProxy    StreamMode = "proxy"
	StreamModeRedirect StreamMode = "redirect"
)

func RegisterStreamerFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   streamerModeFlag,
			Usage:  "default stream handling: proxy or redirect",
			Value:  string(StreamModeProxy),
			EnvVar: "STREAM_MODE",
		},
	)
}

// mirrored upstream response headers the player needs for seeking
var streamHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
}

// Streamer serves player requests from cached links: 302 in redirect mode,
// Range-forwarding proxy otherwise. A link that fails in use is invalidated
// and re-resolved exactly once per request.
type Streamer struct {
	lm   *LinkMap
	vd   *Validator
	cl   *http.Client
	mode StreamMode
}

func NewStreamer(c *cli.Context, lm *LinkMap, vd *Validator, cl *http.Client) *Streamer {
	mode := StreamMode(c.String(streamerModeFlag))
	if mode != StreamModeRedirect {
		mode = StreamModeProxy
	}
	return &Streamer{
		lm:   lm,
		vd:   vd,
		cl:   cl,
		mode: mode,
	}
}

func (s *Streamer) Mode() StreamMode {
	return s.mode
}

// Redirect resolves fileID and returns the location for a 302.
func (s *Streamer) Redirect(ctx context.Context, fileID string, kind LinkKind) (string, error) {
	l, err := s.lm.Get(ctx, fileID, kind)
	if err != nil {
		return "", err
	}
	return l.URL, nil
}

// Stream proxies upstream bytes for fileID to w, forwarding rangeHeader
// verbatim. Errors returned before the first byte map to wire statuses in
// the web layer; once streaming has begun failures are only logged.
func (s *Streamer) Stream(ctx context.Context, fileID string, kind LinkKind, rangeHeader string, w http.ResponseWriter) error {
	for attempt := 0; attempt < 2; attempt++ {
		l, err := s.lm.Get(ctx, fileID, kind)
		if err != nil {
			return err
		}
		if attempt > 0 && s.vd != nil && !s.vd.IsValid(ctx, l) {
			s.lm.Invalidate(fileID, kind)
			return errors.Wrapf(ErrLinkExpired, "revalidation failed file=%v", fileID)
		}
		res, err := s.open(ctx, l, rangeHeader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if isExpiredStatus(res.StatusCode) {
			drain(res)
			s.lm.Invalidate(fileID, kind)
			if attempt == 0 {
				continue
			}
			return errors.Wrapf(ErrLinkExpired, "status=%v file=%v", res.StatusCode, fileID)
		}
		if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
			drain(res)
			return errors.Wrapf(ErrUpstreamUnavailable, "status=%v file=%v", res.StatusCode, fileID)
		}
		defer res.Body.Close()
		for _, h := range streamHeaders {
			if v := res.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.WriteHeader(res.StatusCode)
		if _, err := io.Copy(w, res.Body); err != nil {
			// player gone or upstream cut mid-stream, headers already sent
			log.WithError(err).WithField("file", fileID).Warn("stream interrupted")
		}
		return nil
	}
	return errors.Wrapf(ErrLinkExpired, "file=%v", fileID)
}

func (s *Streamer) open(ctx context.Context, l *CachedLink, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range l.Headers {
		req.Header.Set(k, v)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return s.cl.Do(req)
}

func isExpiredStatus(code int) bool {
	return code == http.StatusUnauthorized ||
		code == http.StatusForbidden ||
		code == http.StatusGone
}
