// Package blob stores training data and model files in a blob container.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// NameLayout names uploads after the upload time (day_month_year_h_m_s).
const NameLayout = "02_01_2006_15_04_05"

const compressedExt = ".zst"

var ErrNotFound = errors.New("blob not found")

// Container is a flat namespace of named blobs.
type Container interface {
	// Upload stores the local file under a name derived from the current
	// time and the file's extension, returning that name. An existing blob
	// is never replaced.
	Upload(ctx context.Context, localPath string) (string, error)
	// Download writes the named blob to localPath.
	Download(ctx context.Context, name, localPath string) error
}

// Dir is a Container backed by a local directory. Uploads are zstd
// compressed when Compress is set; downloads decompress blobs by extension.
type Dir struct {
	Root     string
	Compress bool
	now      func() time.Time
}

func NewDir(root string, compress bool) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blob dir %s: %w", root, err)
	}
	return &Dir{Root: root, Compress: compress, now: time.Now}, nil
}

func (d *Dir) Upload(ctx context.Context, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer src.Close()

	stamp, ext := d.now().Format(NameLayout), filepath.Ext(localPath)
	if d.Compress {
		ext += compressedExt
	}
	tmp, err := os.CreateTemp(d.Root, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if d.Compress {
		enc, err := zstd.NewWriter(tmp)
		if err != nil {
			tmp.Close()
			return "", err
		}
		if _, err := io.Copy(enc, src); err != nil {
			enc.Close()
			tmp.Close()
			return "", fmt.Errorf("compress %s: %w", localPath, err)
		}
		if err := enc.Close(); err != nil {
			tmp.Close()
			return "", err
		}
	} else if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("copy %s: %w", localPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return d.publish(tmp.Name(), stamp, ext)
}

// publish links the finished upload under the first free name, so uploads
// within the same second never replace each other.
func (d *Dir) publish(tmpPath, stamp, ext string) (string, error) {
	for i := 0; ; i++ {
		name := stamp + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stamp, i, ext)
		}
		err := os.Link(tmpPath, filepath.Join(d.Root, name))
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return name, nil
	}
}

func (d *Dir) Download(ctx context.Context, name, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("blob name %q: %w", name, ErrNotFound)
	}
	src, err := os.Open(filepath.Join(d.Root, name))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	var r io.Reader = src
	if strings.HasSuffix(name, compressedExt) {
		dec, err := zstd.NewReader(src)
		if err != nil {
			dst.Close()
			return err
		}
		defer dec.Close()
		r = dec
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		return fmt.Errorf("download %s: %w", name, err)
	}
	return dst.Close()
}
