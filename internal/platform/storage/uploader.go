package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"

	"github.com/closetline/api/internal/services"
)

const (
	defaultPublicBaseURL = "https://storage.googleapis.com"
	defaultMaxImageBytes = 10 << 20
	imageCacheControl    = "public, max-age=31536000, immutable"
)

var (
	errInvalidBucket     = errors.New("storage: bucket name is required")
	errContentTypeDenied = errors.New("storage: content type not allowed")
	errImageTooLarge     = errors.New("storage: image exceeds maximum size")
	errImageEmpty        = errors.New("storage: image body is empty")
)

// ObjectAttrs are the metadata written alongside an object.
type ObjectAttrs struct {
	ContentType  string
	CacheControl string
}

// ObjectStore opens writers for new objects. The write is committed on Close and abandoned
// when ctx is cancelled first.
type ObjectStore interface {
	NewWriter(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser
}

type gcsStore struct {
	client *gcs.Client
}

// NewGCSStore adapts a Cloud Storage client to ObjectStore.
func NewGCSStore(client *gcs.Client) ObjectStore {
	return gcsStore{client: client}
}

func (s gcsStore) NewWriter(ctx context.Context, bucket, object string, attrs ObjectAttrs) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.CacheControl = attrs.CacheControl
	return w
}

// GCSUploader stores product images in a bucket and returns their public URLs.
type GCSUploader struct {
	store        ObjectStore
	bucket       string
	baseURL      string
	maxBytes     int64
	allowedTypes []string
	newObjectID  func() string
}

// UploaderOption customises GCSUploader.
type UploaderOption func(*GCSUploader)

// WithPublicBaseURL serves images from a CDN or custom domain instead of storage.googleapis.com.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *GCSUploader) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			u.baseURL = trimmed
		}
	}
}

// WithMaxImageBytes caps the accepted image size.
func WithMaxImageBytes(limit int64) UploaderOption {
	return func(u *GCSUploader) {
		if limit > 0 {
			u.maxBytes = limit
		}
	}
}

// WithObjectIDGenerator overrides the object name generator.
func WithObjectIDGenerator(gen func() string) UploaderOption {
	return func(u *GCSUploader) {
		if gen != nil {
			u.newObjectID = gen
		}
	}
}

// NewGCSUploader constructs an uploader writing to bucket.
func NewGCSUploader(store ObjectStore, bucket string, opts ...UploaderOption) (*GCSUploader, error) {
	if store == nil {
		return nil, errors.New("storage: object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	u := &GCSUploader{
		store:        store,
		bucket:       bucket,
		baseURL:      defaultPublicBaseURL + "/" + bucket,
		maxBytes:     defaultMaxImageBytes,
		allowedTypes: []string{"image/*"},
		newObjectID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

var _ services.ImageUploader = (*GCSUploader)(nil)

// UploadProductImage streams the image into the bucket. The content type is sniffed when the
// client did not send one.
func (u *GCSUploader) UploadProductImage(ctx context.Context, productID string, image services.ImageUpload) (string, error) {
	if image.Body == nil {
		return "", errImageEmpty
	}
	object, err := ProductImagePath(PathParams{
		ProductID: productID,
		ObjectID:  u.newObjectID(),
		FileName:  image.FileName,
	})
	if err != nil {
		return "", err
	}

	body := bufio.NewReader(image.Body)
	head, err := body.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("storage: read image: %w", err)
	}
	if len(head) == 0 {
		return "", errImageEmpty
	}
	contentType := strings.TrimSpace(image.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(head)
	}
	if !contentTypeAllowed(contentType, u.allowedTypes) {
		return "", fmt.Errorf("%w: %s", errContentTypeDenied, contentType)
	}

	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := u.store.NewWriter(writeCtx, u.bucket, object, ObjectAttrs{
		ContentType:  contentType,
		CacheControl: imageCacheControl,
	})
	written, err := io.Copy(w, io.LimitReader(body, u.maxBytes+1))
	if err == nil && written > u.maxBytes {
		err = errImageTooLarge
	}
	if err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("storage: upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: commit %s: %w", object, err)
	}
	return u.baseURL + "/" + object, nil
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(normalized, ";"); i >= 0 {
		normalized = strings.TrimSpace(normalized[:i])
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if candidate == "*" {
			return true
		}
		if strings.HasSuffix(candidate, "/*") {
			if strings.HasPrefix(normalized, strings.TrimSuffix(candidate, "*")) {
				return true
			}
			continue
		}
		if normalized == candidate {
			return true
		}
	}
	return false
}
