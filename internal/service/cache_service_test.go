package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/learnsphere/enrollment-api/pkg/errors"
)

type fakeCacheRepo struct {
	values   map[string]string
	getErr   error
	setErr   error
	deleted  []string
	setCalls int
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{values: map[string]string{}}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*string)) = value
	return nil
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.setCalls++
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.deleted = append(f.deleted, pattern)
	return nil
}

func TestCacheServiceHitAndMiss(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, hit)

	svc.Set(context.Background(), "k", "v", 0)
	hit, err = svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, "v", out)
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestCacheServiceSetSwallowsErrors(t *testing.T) {
	repo := newFakeCacheRepo()
	repo.setErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	svc.Set(context.Background(), "k", "v", 0)
	require.Equal(t, 1, repo.setCalls)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), false)

	svc.Set(context.Background(), "k", "v", 0)
	require.Zero(t, repo.setCalls)

	var out string
	hit, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	require.False(t, hit)

	svc.Invalidate(context.Background(), "k*")
	require.Empty(t, repo.deleted)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newFakeCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	svc.Invalidate(context.Background(), UserEnrollmentsKey("user-1"))
	require.Equal(t, []string{"enrollments:user:user-1"}, repo.deleted)
}
