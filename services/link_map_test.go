package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestLinkMap(t *testing.T, cl CloudClient, margin string) *LinkMap {
	r := newTestResolver(t, cl)
	return NewLinkMap(testContext(t, RegisterLinkMapFlags(nil), "--link-safety-margin", margin), r)
}

func TestLinkMap_singleFlight(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	var calls int32
	clm.On("ResolveDownload", mock.Anything, "f1").Run(func(args mock.Arguments) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
	}).Return(&ResolvedLink{URL: "http://cdn/f1", ExpiresIn: 3600}, nil)
	lm := newTestLinkMap(t, clm, "60")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := lm.Get(context.Background(), "f1", LinkKindDownload)
			assert.Nil(err)
			assert.Equal("http://cdn/f1", l.URL)
		}()
	}
	wg.Wait()
	assert.EqualValues(1, atomic.LoadInt32(&calls))
}

func TestLinkMap_servesCachedLink(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: "http://cdn/f1", ExpiresIn: 3600}, nil)
	lm := newTestLinkMap(t, clm, "60")
	_, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	_, err = lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	clm.AssertNumberOfCalls(t, "ResolveDownload", 1)
}

func TestLinkMap_marginShortensLifetime(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: "http://cdn/f1", ExpiresIn: 3600}, nil)
	lm := newTestLinkMap(t, clm, "60")
	l, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	// declared 3600s minus the 60s margin
	assert.WithinDuration(time.Now().Add(3540*time.Second), l.ExpiresAt, 5*time.Second)
}

func TestLinkMap_expiredEntryResolvesAfresh(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	// the margin exceeds the declared lifetime, so every cached entry is
	// already past its adjusted expiry
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: "http://cdn/f1", ExpiresIn: 1}, nil)
	lm := newTestLinkMap(t, clm, "60")
	l, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	assert.Equal("http://cdn/f1", l.URL)
	l, err = lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	assert.Equal("http://cdn/f1", l.URL)
	// never served stale: second Get re-resolved instead of reusing the entry
	assert.GreaterOrEqual(len(clm.Calls), 2)
}

func TestLinkMap_kindsCachedSeparately(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: "http://cdn/raw", ExpiresIn: 3600}, nil)
	clm.On("ResolveTranscode", mock.Anything, "f1", mock.Anything).Return([]TranscodeVariant{
		{Resolution: "720p", URL: "http://cdn/hls", ExpiresIn: 3600},
	}, nil)
	lm := newTestLinkMap(t, clm, "60")
	d, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	tr, err := lm.Get(context.Background(), "f1", LinkKindTranscode)
	assert.Nil(err)
	assert.Equal("http://cdn/raw", d.URL)
	assert.Equal("http://cdn/hls", tr.URL)
}

func TestLinkMap_invalidateForcesResolve(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(&ResolvedLink{URL: "http://cdn/f1", ExpiresIn: 3600}, nil)
	lm := newTestLinkMap(t, clm, "60")
	_, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	lm.Invalidate("f1", LinkKindDownload)
	_, err = lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.Nil(err)
	clm.AssertNumberOfCalls(t, "ResolveDownload", 2)
}

func TestLinkMap_errorNotCachedForever(t *testing.T) {
	assert := assert.New(t)
	clm := &CloudClientMock{}
	clm.On("ResolveDownload", mock.Anything, "f1").Return(nil, ErrUpstreamAuth).Once()
	lm := newTestLinkMap(t, clm, "60")
	_, err := lm.Get(context.Background(), "f1", LinkKindDownload)
	assert.ErrorIs(err, ErrUpstreamAuth)
}
