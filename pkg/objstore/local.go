package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const tempPrefix = ".tmp-"

// LocalStore is a Store rooted at a directory. Each bucket is a
// subdirectory of the root and keys are slash-separated relative paths.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

// Scheme implements Store.
func (s *LocalStore) Scheme() string { return SchemeFile }

func (s *LocalStore) path(bucket, key string) string {
	return filepath.Join(s.root, bucket, filepath.FromSlash(key))
}

// List implements Store. In-flight temp files are never listed.
func (s *LocalStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	base := filepath.Join(s.root, bucket)
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", FormatURI(SchemeFile, bucket, prefix), err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Open implements Store.
func (s *LocalStore) Open(_ context.Context, bucket, key string) (Object, error) {
	f, err := os.Open(s.path(bucket, key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", FormatURI(SchemeFile, bucket, key), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", FormatURI(SchemeFile, bucket, key), err)
	}
	return &fileObject{File: f, size: info.Size()}, nil
}

// Put writes to a temp file in the destination directory and renames it
// into place, so readers never observe a partial object.
func (s *LocalStore) Put(_ context.Context, bucket, key string, body io.Reader) error {
	dest := s.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", FormatURI(SchemeFile, bucket, key), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// DeleteAll implements Store. Directories left empty are pruned.
func (s *LocalStore) DeleteAll(ctx context.Context, bucket, prefix string) (int, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}

	attempted := 0
	dirs := make(map[string]struct{})
	for _, k := range keys {
		attempted++
		p := s.path(bucket, k)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return attempted, fmt.Errorf("delete %s: %w", FormatURI(SchemeFile, bucket, k), err)
		}
		dirs[filepath.Dir(p)] = struct{}{}
	}

	base := filepath.Join(s.root, bucket)
	for d := range dirs {
		pruneEmpty(d, base)
	}
	return attempted, nil
}

// pruneEmpty removes dir and its empty parents up to, not including, stop.
func pruneEmpty(dir, stop string) {
	for dir != stop && strings.HasPrefix(dir, stop) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

type fileObject struct {
	*os.File
	size int64
}

func (o *fileObject) Size() int64 { return o.size }
