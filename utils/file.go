package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalPhotoStore writes meal photos under Dir. Used when R2 is not configured.
type LocalPhotoStore struct {
	Dir     string
	BaseURL string
}

func NewLocalPhotoStore(dir, baseURL string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalPhotoStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalPhotoStore) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	destPath := filepath.Join(s.Dir, filepath.FromSlash(key))
	if !strings.HasPrefix(destPath, filepath.Clean(s.Dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal photo key: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(destPath, body, 0o644); err != nil {
		return "", err
	}
	return s.BaseURL + "/" + key, nil
}
