package blob_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gighop/internal/adapters/blob"
)

func TestDisk_PutAndServe(t *testing.T) {
	dir := t.TempDir()
	d, err := blob.NewDisk(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	url, err := d.Put(context.Background(), "object_photos/o1.jpg", "image/jpeg", strings.NewReader("jpegbytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/object_photos/o1.jpg", url)

	b, err := os.ReadFile(filepath.Join(dir, "object_photos", "o1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegbytes", string(b))

	// overwrite replaces content
	_, err = d.Put(context.Background(), "object_photos/o1.jpg", "image/jpeg", strings.NewReader("v2"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/media", d.Handler()))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/media/object_photos/o1.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v2", string(body))
}

func TestDisk_RejectsBadKeysAndLargeUploads(t *testing.T) {
	d, err := blob.NewDisk(t.TempDir(), "/media")
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "a/../../b", "a//b"} {
		_, err := d.Put(ctx, key, "image/png", strings.NewReader("x"))
		assert.Error(t, err, key)
	}

	big := bytes.NewReader(make([]byte, blob.MaxPhotoBytes+1))
	_, err = d.Put(ctx, "profile_photos/u1.png", "image/png", big)
	assert.ErrorIs(t, err, blob.ErrTooLarge)
}
