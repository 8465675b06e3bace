package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/ingest"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultRemoteTimeout   = 10 * time.Second
	DefaultRemoteURLExpiry = 15 * time.Minute
	DefaultRemoteKeyPrefix = "documents"
)

type RemoteConfig struct {
	Policy    AccessPolicy
	Timeout   time.Duration
	URLExpiry time.Duration
	KeyPrefix string
}

// RemoteBackend hands uploads off to an object-storage provider. Bytes never
// pass through the service; only the completion notice does.
type RemoteBackend struct {
	provider Provider
	cfg      RemoteConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewRemoteBackend(provider Provider, cfg RemoteConfig, logger *slog.Logger) *RemoteBackend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRemoteTimeout
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultRemoteURLExpiry
	}
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRemoteKeyPrefix
	}
	if cfg.Policy.Visibility == "" {
		cfg.Policy.Visibility = VisibilityPrivate
	}

	return &RemoteBackend{
		provider: provider,
		cfg:      cfg,
		logger:   componentLogger(logger, "remote"),
		now:      time.Now,
	}
}

func (r *RemoteBackend) available() bool {
	return r != nil && r.provider != nil
}

// GenerateUploadTarget asks the provider for a time-boxed PUT URL. Any
// failure, including a timeout, is ErrProviderUnavailable.
func (r *RemoteBackend) GenerateUploadTarget(ctx context.Context) (models.UploadTarget, error) {
	if !r.available() {
		return models.UploadTarget{}, fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
	}

	key := r.newObjectKey()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	uploadURL, err := r.provider.PresignUpload(ctx, key, r.cfg.URLExpiry)
	if err != nil {
		return models.UploadTarget{}, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, r.provider.Name(), err)
	}

	return models.UploadTarget{
		ID:        DeriveID(key),
		Backend:   models.BackendRemote,
		URL:       uploadURL,
		Method:    http.MethodPut,
		ExpiresAt: r.now().Add(r.cfg.URLExpiry).UTC(),
	}, nil
}

func (r *RemoteBackend) newObjectKey() string {
	d := r.now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", r.cfg.KeyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

// CompleteUpload finalizes an object the client pushed to uploadURL: it
// assigns the access policy, derives the id from the object key and builds
// the record. The provider's object size wins over declaredSize when the
// provider can report it.
func (r *RemoteBackend) CompleteUpload(ctx context.Context, uploadURL, name string, declaredSize int64) (models.FileRecord, error) {
	if !r.available() {
		return models.FileRecord{}, fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
	}

	key, err := r.ObjectKey(uploadURL)
	if err != nil {
		return models.FileRecord{}, err
	}
	id := DeriveID(key)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	size := declaredSize
	actual, err := r.provider.ObjectSize(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return models.FileRecord{}, fmt.Errorf("%w: object was never uploaded", ErrNotFound)
	case err != nil:
		r.logger.Warn("could not confirm object size, keeping declared size", "id", id, "declared", declaredSize, "error", err)
	case actual != declaredSize:
		r.logger.Warn("declared size differs from stored object", "id", id, "declared", declaredSize, "actual", actual)
		size = actual
	}

	if err := r.provider.ApplyAccessPolicy(ctx, key, r.cfg.Policy); err != nil {
		return models.FileRecord{}, fmt.Errorf("%w: failed to apply access policy: %v", ErrProviderUnavailable, err)
	}

	return models.FileRecord{
		ID:          id,
		Name:        name,
		Size:        size,
		StoragePath: r.Locator(key),
		MimeType:    ingest.FromName(name),
		UploadedAt:  r.now().UTC(),
		Backend:     models.BackendRemote,
	}, nil
}

// ObjectKey recovers the object key from a pre-signed URL issued by this
// backend. Both path-style and virtual-hosted-style URLs are understood.
func (r *RemoteBackend) ObjectKey(uploadURL string) (string, error) {
	u, err := url.Parse(uploadURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: malformed upload url", ErrNotFound)
	}

	bucket := r.provider.Bucket()
	p := strings.TrimPrefix(u.Path, "/")

	var key string
	if strings.HasPrefix(u.Host, bucket+".") {
		key = p
	} else if k, ok := strings.CutPrefix(p, bucket+"/"); ok {
		key = k
	} else {
		return "", fmt.Errorf("%w: upload url does not point into bucket", ErrNotFound)
	}

	if !strings.HasPrefix(key, r.cfg.KeyPrefix+"/") || DeriveID(key) == "" {
		return "", fmt.Errorf("%w: upload url was not issued by this service", ErrNotFound)
	}
	return key, nil
}

// DeriveID returns the trailing path segment of an object key. Identical keys
// always give identical ids.
func DeriveID(key string) string {
	key = strings.TrimRight(key, "/")
	if key == "" {
		return ""
	}
	id := path.Base(key)
	if id == "." || id == "/" {
		return ""
	}
	return id
}

// Locator is the storage path recorded for a remote object.
func (r *RemoteBackend) Locator(key string) string {
	return "s3://" + r.provider.Bucket() + "/" + key
}

// Owns reports whether locator names an object in this backend's bucket.
func (r *RemoteBackend) Owns(locator string) bool {
	if !r.available() {
		return false
	}
	_, ok := strings.CutPrefix(locator, "s3://"+r.provider.Bucket()+"/")
	return ok
}

// DownloadURL returns a pre-signed GET URL for the object behind locator.
func (r *RemoteBackend) DownloadURL(ctx context.Context, locator string) (string, error) {
	if !r.available() {
		return "", fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
	}
	key, ok := strings.CutPrefix(locator, "s3://"+r.provider.Bucket()+"/")
	if !ok || key == "" {
		return "", ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	u, err := r.provider.PresignDownload(ctx, key, r.cfg.URLExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return u, nil
}

// Delete removes the object behind rec from the provider.
func (r *RemoteBackend) Delete(ctx context.Context, rec models.FileRecord) error {
	if !r.available() {
		return fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
	}
	key, ok := strings.CutPrefix(rec.StoragePath, "s3://"+r.provider.Bucket()+"/")
	if !ok || key == "" {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.provider.RemoveObject(ctx, key); err != nil {
		return fmt.Errorf("%w: failed to remove object: %v", ErrProviderUnavailable, err)
	}
	return nil
}
