package localfs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/drivetun/internal/storage"
)

func TestUploadListDownload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := New(dir)

	var ids []string
	for i := 0; i < 3; i++ {
		obj, err := st.Upload(ctx, bytes.NewReader([]byte{0, 1, 2, 3}), "slot", dir, "")
		require.NoError(t, err)
		ids = append(ids, obj.ID)
	}

	list, err := st.ListChildren(ctx, dir)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].ID, list[i].ID)
	}

	obj, err := st.Upload(ctx, bytes.NewReader([]byte("batch")), "1", dir, ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], obj.ID)

	rc, err := st.Download(ctx, ids[1])
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "batch", string(data))

	list, err = st.ListChildren(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, list, 3, "update must not create a new object")
}

func TestUpdateMissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := New(dir)

	_, err := st.Upload(ctx, bytes.NewReader(nil), "0", dir, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.Download(ctx, "../etc/passwd")
	assert.Error(t, err)

	_, err = st.Download(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListMissingDirectory(t *testing.T) {
	list, err := New("").ListChildren(context.Background(), t.TempDir()+"/absent")
	require.NoError(t, err)
	assert.Empty(t, list)
}
