// Package objstore is the storage boundary of a curation run: listing,
// reading, writing, and prefix deletion against S3 or a local directory tree.
package objstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DeleteBatchSize is the maximum number of keys removed per batch-delete
// request. It matches the S3 DeleteObjects limit.
const DeleteBatchSize = 1000

// ListPageSize is the page size requested when listing. It is the S3 maximum.
const ListPageSize = 1000

// Object is an opened object supporting the random access columnar readers
// need.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Store is an object store addressed by bucket and key.
type Store interface {
	// Scheme is the URI scheme of addresses this store produces.
	Scheme() string
	// List returns every key under prefix, following all pages.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	// Open opens an object for reading. The caller must Close it.
	Open(ctx context.Context, bucket, key string) (Object, error)
	// Put writes body as the complete object at key.
	Put(ctx context.Context, bucket, key string, body io.Reader) error
	// DeleteAll removes every object under prefix in batches of at most
	// DeleteBatchSize and returns the number of deletions attempted.
	DeleteAll(ctx context.Context, bucket, prefix string) (int, error)
}

// ListURIs lists the data files under prefix: keys ending in ext, rendered as
// fully-qualified URIs and sorted lexicographically so processing order is
// reproducible. An empty ext keeps every key. A prefix with no matches yields
// an empty slice, not an error.
func ListURIs(ctx context.Context, s Store, bucket, prefix, ext string) ([]string, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", FormatURI(s.Scheme(), bucket, prefix), err)
	}

	uris := make([]string, 0, len(keys))
	for _, k := range keys {
		if ext != "" && !strings.HasSuffix(k, ext) {
			continue
		}
		uris = append(uris, FormatURI(s.Scheme(), bucket, k))
	}
	sort.Strings(uris)
	return uris, nil
}

// OpenURI opens the object a URI produced by ListURIs points to.
func OpenURI(ctx context.Context, s Store, uri string) (Object, error) {
	scheme, bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if scheme != s.Scheme() {
		return nil, fmt.Errorf("open %s: store handles %s:// URIs", uri, s.Scheme())
	}
	return s.Open(ctx, bucket, key)
}
