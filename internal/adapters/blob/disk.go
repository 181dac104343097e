// Package blob keeps uploaded photos on local disk and serves them back.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxPhotoBytes caps a single upload.
const MaxPhotoBytes = 10 << 20

var ErrTooLarge = errors.New("blob: upload too large")

type Disk struct {
	root    string
	baseURL string
}

func NewDisk(root, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Disk{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes r under key atomically (temp file + rename) and returns its URL.
func (d *Disk) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(d.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, io.LimitReader(&ctxReader{ctx: ctx, r: r}, MaxPhotoBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	if n > MaxPhotoBytes {
		return "", ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	log.Debug().Str("key", clean).Str("content_type", contentType).Int64("bytes", n).Msg("blob stored")
	return d.baseURL + "/" + clean, nil
}

// Handler serves stored blobs; mount it under the prefix of baseURL.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(http.Dir(d.root))
}

func cleanKey(key string) (string, error) {
	c := path.Clean("/" + key)[1:]
	if c == "" || c != strings.TrimPrefix(key, "/") || strings.HasPrefix(c, "..") {
		return "", fmt.Errorf("blob: invalid key %q", key)
	}
	return c, nil
}

// ctxReader stops a long copy once the request is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
