package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// FileUploader copies finished export files into a second local directory,
// e.g. a mounted network share.
type FileUploader struct {
	dir string
}

func NewFileUploader(dir string) *FileUploader {
	return &FileUploader{
		dir: dir,
	}
}

func (u *FileUploader) Upload(ctx context.Context, localPath string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Join(u.dir, filepath.Base(localPath)), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	_, err = io.Copy(dst, src)

	return err
}
