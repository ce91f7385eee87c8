package redisx

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, "mkt:cache:a", "1", 0).Err())
	require.NoError(t, rdb.Set(ctx, "mkt:cache:b", "2", 0).Err())
	require.NoError(t, rdb.Set(ctx, "other:c", "3", 0).Err())

	keys, err := ScanPrefix(ctx, rdb, "mkt:cache:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"mkt:cache:a", "mkt:cache:b"}, keys)
}
