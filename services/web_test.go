package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRouter(t *testing.T, cl CloudClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	st := newTestStreamer(t, cl, nil)
	web := NewWeb(testContext(t, RegisterWebFlags(nil)), st)
	r := gin.New()
	r.UseRawPath = true
	r.Use(web.errorHandler)
	r.GET("/stream/*path", web.getStream)
	r.GET("/redirect/:file_id", web.getRedirect)
	return r
}

func TestStreamFileID(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("abc123", streamFileID("/Movies/movie1.mp4/abc123"))
	assert.Equal("abc123", streamFileID("/abc123"))
	assert.Equal("abc123", streamFileID("abc123"))
	assert.Equal("abc123", streamFileID("/Movies/abc123/"))
	assert.Equal("", streamFileID("/"))
}

func TestWeb_placeholderURLRoundTrip(t *testing.T) {
	assert := assert.New(t)
	payload := bytes.Repeat([]byte("v"), 300)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer upstream.Close()
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "abc123").Return(&ResolvedLink{URL: upstream.URL, ExpiresIn: 3600}, nil)
	r := newTestRouter(t, clm)

	// the exact URL a media player reads out of the placeholder body
	p := newTestPlanner(t)
	a := p.Plan(RemoteNode{ID: "abc123", Name: "movie1.mp4", Path: "Movies/movie1.mp4"}, t.TempDir())
	u, err := url.Parse(strings.TrimSuffix(a.Content, "\n"))
	assert.Nil(err)
	assert.Equal("/stream/Movies/movie1.mp4/abc123", u.RequestURI())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	req.Header.Set("Range", "bytes=0-99")
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusPartialContent, rec.Code)
	assert.Equal("bytes 0-99/300", rec.Header().Get("Content-Range"))
	assert.Len(rec.Body.Bytes(), 100)
}

func TestWeb_placeholderURLWithEscapedSegments(t *testing.T) {
	assert := assert.New(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "id 1").Return(&ResolvedLink{URL: upstream.URL, ExpiresIn: 3600}, nil)
	r := newTestRouter(t, clm)

	p := newTestPlanner(t)
	a := p.Plan(RemoteNode{ID: "id 1", Name: "my movie.mp4", Path: "My Movies/my movie.mp4"}, t.TempDir())
	u, err := url.Parse(strings.TrimSuffix(a.Content, "\n"))
	assert.Nil(err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("ok", rec.Body.String())
}

func TestWeb_streamRange(t *testing.T) {
	assert := assert.New(t)
	payload := bytes.Repeat([]byte("a"), 500)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(payload))
	}))
	defer upstream.Close()
	r := newTestRouter(t, mockDownload(upstream.URL))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/f1", nil)
	req.Header.Set("Range", "bytes=0-99")
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusPartialContent, rec.Code)
	assert.Equal("bytes 0-99/500", rec.Header().Get("Content-Range"))
	assert.Len(rec.Body.Bytes(), 100)
}

func TestWeb_redirect(t *testing.T) {
	assert := assert.New(t)
	r := newTestRouter(t, mockDownload("http://cdn/f1"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/redirect/f1", nil)
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusFound, rec.Code)
	assert.Equal("http://cdn/f1", rec.Header().Get("Location"))
}

func TestWeb_notFound(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "gone").Return(nil, ErrNotFound)
	r := newTestRouter(t, clm)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/gone", nil)
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusNotFound, rec.Code)
	var er ErrorResponse
	assert.Nil(json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Contains(er.Error, "not found")
}

func TestWeb_upstreamAuthMapsToBadGateway(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(nil, ErrUpstreamAuth)
	r := newTestRouter(t, clm)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/redirect/f1", nil)
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusBadGateway, rec.Code)
}

func TestWeb_transcodeKind(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveTranscode", mock.Anything, "f1", mock.Anything).Return([]TranscodeVariant{
		{Resolution: "720p", URL: "http://cdn/hls", ExpiresIn: 600},
	}, nil)
	r := newTestRouter(t, clm)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/redirect/f1?kind=transcode", nil)
	r.ServeHTTP(rec, req)
	assert.Equal(http.StatusFound, rec.Code)
	assert.Equal("http://cdn/hls", rec.Header().Get("Location"))
}
