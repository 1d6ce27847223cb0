package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

type memoryCache struct {
	items    map[string][]byte
	deleted  []string
	getErr   error
	setCalls int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.setCalls++
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	return nil
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var out []int
	assert.False(t, svc.Get(ctx, leaderboardCacheKey(1, 20), &out))

	svc.Set(ctx, leaderboardCacheKey(1, 20), []int{1, 2}, 0)
	require.True(t, svc.Get(ctx, "leaderboard:1:20", &out))
	assert.Equal(t, []int{1, 2}, out)

	svc.InvalidateHours(ctx)
	assert.Equal(t, []string{"dash:*", "leaderboard:*"}, repo.deleted)
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	repo := newMemoryCache()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out map[string]int
	assert.False(t, svc.Get(context.Background(), cacheKeyDashboard, &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCache()
	svc := NewCacheService(repo, nil, 0, nil, false)

	svc.Set(context.Background(), cacheKeyDashboard, 1, 0)
	svc.InvalidateHours(context.Background())
	assert.Zero(t, repo.setCalls)
	assert.Empty(t, repo.deleted)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}
