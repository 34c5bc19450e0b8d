package services

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	notifierUrlFlag   = "refresh-url"
	notifierTokenFlag = "refresh-token"
)

func RegisterRefreshNotifierFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   notifierUrlFlag,
			Usage:  "media server library refresh endpoint, e.g. http://emby:8096/Library/Refresh",
			Value:  "",
			EnvVar: "REFRESH_URL",
		},
		cli.StringFlag{
			Name:   notifierTokenFlag,
			Usage:  "media server api token sent as X-Emby-Token",
			Value:  "",
			EnvVar: "REFRESH_TOKEN",
		},
	)
}

// RefreshNotifier tells the media server that library content changed after
// a scan. Delivery is best effort: a failed notification is logged and the
// scan result stands.
type RefreshNotifier struct {
	url     string
	token   string
	cl      *http.Client
	timeout time.Duration
}

func NewRefreshNotifier(c *cli.Context, cl *http.Client) *RefreshNotifier {
	return &RefreshNotifier{
		url:     c.String(notifierUrlFlag),
		token:   c.String(notifierTokenFlag),
		cl:      cl,
		timeout: 15 * time.Second,
	}
}

func (s *RefreshNotifier) Notify(ctx context.Context) {
	if s.url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build refresh request")
		return
	}
	if s.token != "" {
		req.Header.Set("X-Emby-Token", s.token)
	}
	res, err := s.cl.Do(req)
	if err != nil {
		log.WithError(err).Warn("failed to notify media server")
		return
	}
	drain(res)
	if res.StatusCode >= 300 {
		log.Warnf("media server refresh returned status=%v", res.StatusCode)
		return
	}
	log.Info("notified media server of library change")
}
