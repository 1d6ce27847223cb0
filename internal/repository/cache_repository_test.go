package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/seva-hours-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "dash:admin", &dest), appErrors.ErrCacheMiss)
	require.NoError(t, repo.Set(ctx, "dash:admin", map[string]int{"a": 1}, time.Minute))
	require.NoError(t, repo.DeleteByPattern(ctx, "dash:*"))
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())
}
