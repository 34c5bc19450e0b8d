package services

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type CloudClientMock struct {
	mock.Mock
}

func (s *CloudClientMock) List(ctx context.Context, dirID string, cursor string, pageSize int) ([]RemoteNode, string, error) {
	args := s.Called(ctx, dirID, cursor, pageSize)
	nodes, _ := args.Get(0).([]RemoteNode)
	return nodes, args.String(1), args.Error(2)
}

func (s *CloudClientMock) ResolveDownload(ctx context.Context, fileID string) (*ResolvedLink, error) {
	args := s.Called(ctx, fileID)
	l, _ := args.Get(0).(*ResolvedLink)
	return l, args.Error(1)
}

func (s *CloudClientMock) ResolveTranscode(ctx context.Context, fileID string, resolutions []string) ([]TranscodeVariant, error) {
	args := s.Called(ctx, fileID, resolutions)
	v, _ := args.Get(0).([]TranscodeVariant)
	return v, args.Error(1)
}

func (s *CloudClientMock) Fetch(ctx context.Context, fileID string) (io.ReadCloser, error) {
	args := s.Called(ctx, fileID)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}
