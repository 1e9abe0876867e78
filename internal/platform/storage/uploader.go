package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
)

const defaultPublicHost = "https://storage.googleapis.com"

// ErrObjectNotFound is returned by Open when the object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
)

// Object identifies a stored object.
type Object struct {
	ID  string
	URL string
}

type objectBackend interface {
	NewWriter(ctx context.Context, bucket, key, contentType string) io.WriteCloser
	NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, key string) error
}

type gcsBackend struct {
	client *gcs.Client
}

func (b gcsBackend) NewWriter(ctx context.Context, bucket, key, contentType string) io.WriteCloser {
	w := b.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, max-age=0"
	return w
}

func (b gcsBackend) NewReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	return r, err
}

func (b gcsBackend) Delete(ctx context.Context, bucket, key string) error {
	err := b.client.Bucket(bucket).Object(key).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// GCSUploader writes local files to a Cloud Storage bucket.
type GCSUploader struct {
	backend    objectBackend
	bucket     string
	publicBase string
	logger     *zap.Logger
}

// UploaderOption customises a GCSUploader.
type UploaderOption func(*GCSUploader)

// WithPublicBaseURL overrides the host used to build object URLs (e.g. a CDN in front of the
// bucket). The bucket name is not appended when a base URL is set.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *GCSUploader) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			u.publicBase = trimmed
		}
	}
}

// WithUploaderLogger sets the logger.
func WithUploaderLogger(logger *zap.Logger) UploaderOption {
	return func(u *GCSUploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// NewGCSUploader constructs an uploader for bucket.
func NewGCSUploader(client *gcs.Client, bucket string, opts ...UploaderOption) (*GCSUploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	return newGCSUploader(gcsBackend{client: client}, bucket, opts...)
}

func newGCSUploader(backend objectBackend, bucket string, opts ...UploaderOption) (*GCSUploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	u := &GCSUploader{
		backend: backend,
		bucket:  bucket,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

// Upload streams the file at localPath to key, replacing any existing object.
func (u *GCSUploader) Upload(ctx context.Context, localPath, key string) (Object, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Object{}, errInvalidObject
	}
	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("storage: open %s: %w", localPath, err)
	}
	defer file.Close()

	w := u.backend.NewWriter(ctx, u.bucket, key, contentTypeFor(key))
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return Object{}, fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: finalise %s: %w", key, err)
	}

	obj := Object{ID: key, URL: u.objectURL(key)}
	u.logger.Debug("storage: object uploaded", zap.String("bucket", u.bucket), zap.String("key", key))
	return obj, nil
}

// Open streams the object back. Callers close the reader.
func (u *GCSUploader) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errInvalidObject
	}
	r, err := u.backend.NewReader(ctx, u.bucket, id)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", id, err)
	}
	return r, nil
}

// Delete removes the object. Missing objects are not an error.
func (u *GCSUploader) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errInvalidObject
	}
	if err := u.backend.Delete(ctx, u.bucket, id); err != nil {
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return nil
}

func (u *GCSUploader) objectURL(key string) string {
	escaped := escapeKey(key)
	if u.publicBase != "" {
		return u.publicBase + "/" + escaped
	}
	return defaultPublicHost + "/" + u.bucket + "/" + escaped
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// LocalStore copies files into a directory. It backs memory mode and tests.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed. baseURL prefixes returned URLs; when empty, file:// URLs
// are returned.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage: local directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}, nil
}

// Upload copies localPath to key under the store directory.
func (s *LocalStore) Upload(_ context.Context, localPath, key string) (Object, error) {
	dest, err := s.resolve(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Object{}, fmt.Errorf("storage: create parent for %s: %w", key, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("storage: open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return Object{}, fmt.Errorf("storage: create %s: %w", dest, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return Object{}, fmt.Errorf("storage: write %s: %w", dest, err)
	}
	if err := dst.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: close %s: %w", dest, err)
	}

	u := (&url.URL{Scheme: "file", Path: filepath.ToSlash(dest)}).String()
	if s.baseURL != "" {
		u = s.baseURL + "/" + escapeKey(key)
	}
	return Object{ID: key, URL: u}, nil
}

// Open returns the stored file for id.
func (s *LocalStore) Open(_ context.Context, id string) (io.ReadCloser, error) {
	dest, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("storage: open %s: %w", id, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", id, err)
	}
	return f, nil
}

// Delete removes key. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, id string) error {
	dest, err := s.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errInvalidObject
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: object name %q escapes store", key)
	}
	return filepath.Join(s.dir, clean), nil
}
