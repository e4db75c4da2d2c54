package resultstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes artifacts to a directory on disk. Used in development;
// URLs point at the API's static /results route and carry no expiry.
type LocalStore struct {
	baseDir string
	baseURL string
	prefix  string
}

// NewLocalStore builds a filesystem-backed store.
func NewLocalStore(baseDir, baseURL, prefix string) *LocalStore {
	return &LocalStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		prefix:  prefix,
	}
}

func (l *LocalStore) filePath(key string) string {
	clean := filepath.Clean(joinPrefix(l.prefix, key))
	clean = strings.TrimPrefix(clean, string(filepath.Separator))
	return filepath.Join(l.baseDir, clean)
}

func (l *LocalStore) Put(_ context.Context, key string, body []byte, _ string) error {
	path := l.filePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	return nil
}

func (l *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	body, err := os.ReadFile(l.filePath(key))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return body, nil
}

func (l *LocalStore) URL(_ context.Context, key string) (string, error) {
	return l.baseURL + "/" + joinPrefix(l.prefix, key), nil
}
