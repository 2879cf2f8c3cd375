package s3

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathindex/pathindex/internal/physical"
	"github.com/pathindex/pathindex/pkg/logging"
)

func TestNewBackendRejectsEmptyBucket(t *testing.T) {
	ctx := context.Background()
	backend, err := NewBackend(ctx, Config{Region: "us-east-1"}, logging.New(logging.DefaultConfig()))
	require.Error(t, err)
	assert.Nil(t, backend)
	assert.Contains(t, err.Error(), "bucket name cannot be empty")
}

func TestNewStorageTokenIsShardedAndUnique(t *testing.T) {
	a := newStorageToken()
	b := newStorageToken()
	assert.NotEqual(t, a, b)

	parts := strings.SplitN(a, "/", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 4, "shard prefix must match pathutil.ShardPrefixLen")
}

func TestTranslateWrapsGenericErrorsWithoutNotFound(t *testing.T) {
	b := &Backend{bucket: "test"}
	err := b.translate(errors.New("boom"), "GetFileInfo", "st1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, physical.ErrNotFound))
	assert.Contains(t, err.Error(), "GetFileInfo")
	assert.Contains(t, err.Error(), "st1")
}

func TestMaxIntPicksLarger(t *testing.T) {
	assert.Equal(t, 5, maxInt(5, 3))
	assert.Equal(t, 5, maxInt(3, 5))
}
