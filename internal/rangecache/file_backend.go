package rangecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// FileBackend keeps the cache in a single JSON document on disk, the
// default for standalone runs.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load(_ context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *FileBackend) Store(_ context.Context, data []byte) error {
	return os.WriteFile(b.path, data, 0o644)
}

func (b *FileBackend) Description() string {
	return fmt.Sprintf("file %s", b.path)
}
