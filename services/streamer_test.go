package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestStreamer(t *testing.T, cl CloudClient, vd *Validator, args ...string) *Streamer {
	lm := newTestLinkMap(t, cl, "60")
	return NewStreamer(testContext(t, RegisterStreamerFlags(nil), args...), lm, vd, &http.Client{})
}

func mockDownload(url string) *CloudClientMock {
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: url, ExpiresIn: 3600}, nil)
	return clm
}

func TestStreamer_fullBody(t *testing.T) {
	assert := assert.New(t)
	payload := bytes.Repeat([]byte("x"), 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()
	st := newTestStreamer(t, mockDownload(srv.URL), nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.Nil(err)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal(payload, rec.Body.Bytes())
	assert.Equal("1000", rec.Header().Get("Content-Length"))
}

func TestStreamer_rangeRequest(t *testing.T) {
	assert := assert.New(t)
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()
	st := newTestStreamer(t, mockDownload(srv.URL), nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "bytes=100-199", rec)
	assert.Nil(err)
	assert.Equal(http.StatusPartialContent, rec.Code)
	assert.Equal("bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(payload[100:200], rec.Body.Bytes())
	assert.Len(rec.Body.Bytes(), 100)
}

func TestStreamer_sendsLinkHeaders(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("tok", r.Header.Get("X-Token"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{
		URL:       srv.URL,
		Headers:   map[string]string{"X-Token": "tok"},
		ExpiresIn: 3600,
	}, nil)
	st := newTestStreamer(t, clm, nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.Nil(err)
	assert.Equal("ok", rec.Body.String())
}

func TestStreamer_retriesExpiredLinkOnce(t *testing.T) {
	assert := assert.New(t)
	var reqs int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&reqs, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()
	clm := mockDownload(srv.URL)
	st := newTestStreamer(t, clm, nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.Nil(err)
	assert.Equal("hello", rec.Body.String())
	// the stale link was dropped and resolved afresh before the retry
	clm.AssertNumberOfCalls(t, "ResolveDownload", 2)
}

func TestStreamer_expiredTwiceGivesUp(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	st := newTestStreamer(t, mockDownload(srv.URL), nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.ErrorIs(err, ErrLinkExpired)
}

func TestStreamer_revalidationFailureGivesUp(t *testing.T) {
	assert := assert.New(t)
	var gets int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&gets, 1)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	vd := newTestValidator(t)
	st := newTestStreamer(t, mockDownload(srv.URL), vd)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.ErrorIs(err, ErrLinkExpired)
	// the second attempt stopped at revalidation instead of re-streaming
	assert.EqualValues(1, atomic.LoadInt32(&gets))
}

func TestStreamer_upstreamError(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	st := newTestStreamer(t, mockDownload(srv.URL), nil)
	rec := httptest.NewRecorder()
	err := st.Stream(context.Background(), "f1", LinkKindDownload, "", rec)
	assert.ErrorIs(err, ErrUpstreamUnavailable)
}

func TestStreamer_redirect(t *testing.T) {
	assert := assert.New(t)
	st := newTestStreamer(t, mockDownload("http://cdn/f1"), nil, "--stream-mode", "redirect")
	assert.Equal(StreamModeRedirect, st.Mode())
	loc, err := st.Redirect(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	assert.Equal("http://cdn/f1", loc)
}
