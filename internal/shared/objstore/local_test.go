package objstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "CLT-123-ABCDEF/leads-456.csv"
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("a,b,c\n1,2,3\n"), -1, "text/csv"))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(data))

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// 重复删除静默成功
	assert.NoError(t, s.Delete(ctx, key))
}

func TestLocalStoreOpenMissing(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open(context.Background(), "CLT-1-AAAAAA/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"../escape.txt", "/etc/passwd", "a/../../b"} {
		err := s.Upload(ctx, key, strings.NewReader("x"), -1, "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalStorePresignUnsupported(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.PresignedURL(context.Background(), "k", "f.txt", 15*time.Minute)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}

func TestLocalStoreDeletePrefix(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "CLT-9-ZZZZZZ/a.txt", strings.NewReader("a"), -1, ""))
	require.NoError(t, s.Upload(ctx, "CLT-9-ZZZZZZ/b.txt", strings.NewReader("b"), -1, ""))

	require.NoError(t, s.DeletePrefix(ctx, "CLT-9-ZZZZZZ"))

	ok, err := s.Exists(ctx, "CLT-9-ZZZZZZ/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}
