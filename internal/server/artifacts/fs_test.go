package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "public")

	s, err := NewFSStore(root, "/public/")
	require.NoError(t, err)

	a, err := s.Put(ctx, "123AB/123AB0007 0.jpg", []byte("master"))
	require.NoError(t, err)
	assert.Equal(t, "123AB/123AB0007 0.jpg", a.Handle)
	assert.Equal(t, "/public/123AB/123AB0007%200.jpg", a.URL)

	_, err = os.Stat(filepath.Join(s.Root(), "123AB", "123AB0007 0.jpg"))
	require.NoError(t, err)

	got, err := s.Get(ctx, a.Handle)
	require.NoError(t, err)
	assert.Equal(t, "master", string(got))

	require.NoError(t, s.Delete(ctx, a.Handle))
	require.NoError(t, s.Delete(ctx, a.Handle), "deleting an absent artifact succeeds")

	_, err = s.Get(ctx, a.Handle)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFSStore_StaysBelowRoot(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewFSStore(filepath.Join(base, "public"), "/public")
	require.NoError(t, err)

	_, err = s.Put(ctx, "../../escape.jpg", []byte("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, "escape.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(s.Root(), "escape.jpg"))
	assert.NoError(t, err)
}

func TestFSStore_EmptyHandle(t *testing.T) {
	s, err := NewFSStore(t.TempDir(), "/public")
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.ErrorIs(t, s.Delete(context.Background(), "/"), common.ErrorValidation)
}
