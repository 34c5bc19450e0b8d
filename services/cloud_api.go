package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	cloudApiUrlFlag     = "cloud-api-url"
	cloudApiTimeoutFlag = "cloud-api-timeout"
)

func RegisterCloudAPIFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   cloudApiUrlFlag,
			Usage:  "cloud provider api base url",
			Value:  "",
			EnvVar: "CLOUD_API_URL",
		},
		cli.IntFlag{
			Name:   cloudApiTimeoutFlag,
			Usage:  "cloud provider api timeout (seconds)",
			Value:  30,
			EnvVar: "CLOUD_API_TIMEOUT",
		},
	)
}

// CloudClient is the narrow contract the rest of the system consumes from
// the storage provider.
type CloudClient interface {
	List(ctx context.Context, dirID string, cursor string, pageSize int) ([]RemoteNode, string, error)
	ResolveDownload(ctx context.Context, fileID string) (*ResolvedLink, error)
	ResolveTranscode(ctx context.Context, fileID string, resolutions []string) ([]TranscodeVariant, error)
	Fetch(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// CloudAPI talks to the provider's HTTP API. The inner client is built
// lazily on first use and the service is closed explicitly.
type CloudAPI struct {
	baseURL string
	timeout time.Duration
	cs      *CredentialStore
	cl      *http.Client
	once    sync.Once
	err     error
}

func NewCloudAPI(c *cli.Context, cs *CredentialStore, cl *http.Client) *CloudAPI {
	return &CloudAPI{
		baseURL: strings.TrimRight(c.String(cloudApiUrlFlag), "/"),
		timeout: time.Duration(c.Int(cloudApiTimeoutFlag)) * time.Second,
		cs:      cs,
		cl:      cl,
	}
}

func (s *CloudAPI) get() error {
	log.Info("initializing CloudAPI")
	if s.baseURL == "" {
		return errors.Errorf("cloud api url is empty")
	}
	if _, err := url.Parse(s.baseURL); err != nil {
		return errors.Wrapf(err, "failed to parse cloud api url=%v", s.baseURL)
	}
	if s.cl.Timeout == 0 {
		s.cl.Timeout = s.timeout
	}
	return nil
}

func (s *CloudAPI) init() error {
	s.once.Do(func() {
		s.err = s.get()
	})
	return s.err
}

func (s *CloudAPI) Close() {
	s.cl.CloseIdleConnections()
}

type listResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		ParentID   string `json:"parent_id"`
		IsDir      bool   `json:"is_dir"`
		Size       int64  `json:"size"`
		ModifiedAt int64  `json:"modified_at"`
		Category   string `json:"category"`
	} `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type transcodeResponse struct {
	Variants []TranscodeVariant `json:"variants"`
}

func (s *CloudAPI) do(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	u := s.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	cred := s.cs.Load()
	if cred.ApiKey != "" {
		req.Header.Set("X-Api-Key", cred.ApiKey)
	}
	if cred.Session != "" {
		req.Header.Set("Cookie", cred.Session)
	}
	res, err := s.cl.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "request failed: %v", err)
	}
	if cookies := res.Cookies(); len(cookies) > 0 {
		// keep only name=value pairs, cookie attributes must not leak into
		// the replayed Cookie header
		pairs := make([]string, 0, len(cookies))
		for _, ck := range cookies {
			pairs = append(pairs, ck.Name+"="+ck.Value)
		}
		s.cs.Rotate(cred, Credentials{ApiKey: cred.ApiKey, Session: strings.Join(pairs, "; ")})
	}
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		drain(res)
		return nil, errors.Wrapf(ErrUpstreamAuth, "status=%v path=%v", res.StatusCode, path)
	case res.StatusCode == http.StatusNotFound:
		drain(res)
		return nil, errors.Wrapf(ErrNotFound, "path=%v", path)
	case res.StatusCode == http.StatusTooManyRequests:
		drain(res)
		return nil, errors.Wrapf(ErrRateLimited, "path=%v", path)
	case res.StatusCode >= 500:
		drain(res)
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "status=%v path=%v", res.StatusCode, path)
	case res.StatusCode != http.StatusOK:
		drain(res)
		return nil, errors.Errorf("unexpected status=%v path=%v", res.StatusCode, path)
	}
	return res, nil
}

func drain(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}

func (s *CloudAPI) List(ctx context.Context, dirID string, cursor string, pageSize int) ([]RemoteNode, string, error) {
	q := url.Values{}
	q.Set("parent_id", dirID)
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("page_size", strconv.Itoa(pageSize))
	res, err := s.do(ctx, "/api/v1/files", q)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to list dir=%v", dirID)
	}
	defer res.Body.Close()
	var lr listResponse
	if err := json.NewDecoder(res.Body).Decode(&lr); err != nil {
		return nil, "", errors.Wrapf(err, "failed to decode listing dir=%v", dirID)
	}
	nodes := make([]RemoteNode, 0, len(lr.Items))
	for _, i := range lr.Items {
		nodes = append(nodes, RemoteNode{
			ID:         i.ID,
			Name:       i.Name,
			ParentID:   i.ParentID,
			IsDir:      i.IsDir,
			Size:       i.Size,
			ModifiedAt: time.Unix(i.ModifiedAt, 0),
			Category:   i.Category,
		})
	}
	return nodes, lr.NextCursor, nil
}

func (s *CloudAPI) ResolveDownload(ctx context.Context, fileID string) (*ResolvedLink, error) {
	res, err := s.do(ctx, fmt.Sprintf("/api/v1/files/%v/download", url.PathEscape(fileID)), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve download file=%v", fileID)
	}
	defer res.Body.Close()
	var rl ResolvedLink
	if err := json.NewDecoder(res.Body).Decode(&rl); err != nil {
		return nil, errors.Wrapf(err, "failed to decode download link file=%v", fileID)
	}
	if rl.URL == "" {
		return nil, errors.Errorf("empty download url file=%v", fileID)
	}
	return &rl, nil
}

func (s *CloudAPI) ResolveTranscode(ctx context.Context, fileID string, resolutions []string) ([]TranscodeVariant, error) {
	q := url.Values{}
	if len(resolutions) > 0 {
		q.Set("resolutions", strings.Join(resolutions, ","))
	}
	res, err := s.do(ctx, fmt.Sprintf("/api/v1/files/%v/transcode", url.PathEscape(fileID)), q)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve transcode file=%v", fileID)
	}
	defer res.Body.Close()
	var tr transcodeResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return nil, errors.Wrapf(err, "failed to decode transcode variants file=%v", fileID)
	}
	return tr.Variants, nil
}

// Fetch streams the raw bytes of a (small) file, used for side files such
// as subtitles. The caller closes the reader.
func (s *CloudAPI) Fetch(ctx context.Context, fileID string) (io.ReadCloser, error) {
	res, err := s.do(ctx, fmt.Sprintf("/api/v1/files/%v/raw", url.PathEscape(fileID)), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch file=%v", fileID)
	}
	return res.Body, nil
}
