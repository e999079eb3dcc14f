package expense

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore defines the interface for receipt blob operations. Blobs are
// addressed by gs://<bucket>/<path> URIs; only URIs in the store's configured
// bucket are accepted.
type BlobStore interface {
	// Save writes a blob and returns its URI
	Save(path string, data []byte) (string, error)

	// Get retrieves a blob by URI
	Get(uri string) ([]byte, error)

	// Delete removes a blob by URI. An empty URI and an already-deleted
	// blob are both treated as success.
	Delete(uri string) error

	// URI builds the full URI for an object path in this store's bucket
	URI(path string) string
}

// LocalBlobStore implements BlobStore on the local filesystem, mapping a
// single bucket name onto a base directory.
type LocalBlobStore struct {
	bucket   string
	basePath string
}

// NewLocalBlobStore creates a new LocalBlobStore instance
func NewLocalBlobStore(bucket, basePath string) (*LocalBlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalBlobStore{
		bucket:   bucket,
		basePath: basePath,
	}, nil
}

// parsePath validates uri against the configured bucket and returns the
// object path within it.
func (l *LocalBlobStore) parsePath(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", invalidArgument(fmt.Sprintf("invalid blob URI: %s", uri))
	}
	bucket, path, ok := strings.Cut(rest, "/")
	if !ok || path == "" {
		return "", invalidArgument(fmt.Sprintf("invalid blob URI: %s", uri))
	}
	if bucket != l.bucket {
		return "", invalidArgument(fmt.Sprintf("blob URI %s is not in bucket %s", uri, l.bucket))
	}
	// Reject path escapes before touching the filesystem
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", invalidArgument(fmt.Sprintf("invalid blob path: %s", path))
	}
	return clean, nil
}

// URI builds the full URI for an object path in this store's bucket
func (l *LocalBlobStore) URI(path string) string {
	return fmt.Sprintf("gs://%s/%s", l.bucket, path)
}

// Save writes a blob and returns its URI
func (l *LocalBlobStore) Save(path string, data []byte) (string, error) {
	full := filepath.Join(l.basePath, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", internal("creating blob directory", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", internal("writing blob", err)
	}
	return l.URI(path), nil
}

// Get retrieves a blob by URI
func (l *LocalBlobStore) Get(uri string) ([]byte, error) {
	path, err := l.parsePath(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if os.IsNotExist(err) {
		return nil, notFound(fmt.Sprintf("blob %s does not exist", uri))
	}
	if err != nil {
		return nil, internal("reading blob", err)
	}
	return data, nil
}

// Delete removes a blob by URI. Deleting a blob that is already gone is not
// an error.
func (l *LocalBlobStore) Delete(uri string) error {
	if uri == "" {
		return nil
	}
	path, err := l.parsePath(uri)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.basePath, path))
	if os.IsNotExist(err) {
		slog.Warn("Blob already deleted", "uri", uri)
		return nil
	}
	if err != nil {
		return internal("deleting blob", err)
	}
	return nil
}
