package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestValidator(t *testing.T) *Validator {
	return NewValidator(testContext(t, nil), &http.Client{})
}

func TestValidator_headOK(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	assert.True(vd.IsValid(context.Background(), &CachedLink{URL: srv.URL, Kind: LinkKindDownload}))
}

func TestValidator_headSendsLinkHeaders(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("tok", r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	l := &CachedLink{URL: srv.URL, Kind: LinkKindDownload, Headers: map[string]string{"X-Token": "tok"}}
	assert.True(vd.IsValid(context.Background(), l))
}

func TestValidator_headHTMLErrorPage(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	assert.False(vd.IsValid(context.Background(), &CachedLink{URL: srv.URL, Kind: LinkKindDownload}))
}

func TestValidator_headForbidden(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	assert.False(vd.IsValid(context.Background(), &CachedLink{URL: srv.URL, Kind: LinkKindDownload}))
}

func TestValidator_manifestOK(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodGet, r.Method)
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:3\n"))
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	assert.True(vd.IsValid(context.Background(), &CachedLink{URL: srv.URL, Kind: LinkKindTranscode}))
}

func TestValidator_manifestJunk(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>expired</html>"))
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	assert.False(vd.IsValid(context.Background(), &CachedLink{URL: srv.URL, Kind: LinkKindTranscode}))
}

func TestValidator_unreachable(t *testing.T) {
	assert := assert.New(t)
	vd := newTestValidator(t)
	assert.False(vd.IsValid(context.Background(), &CachedLink{URL: "http://127.0.0.1:1/x", Kind: LinkKindDownload}))
}
