package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
)

// Provider is an S3-compatible object store the remote backend delegates to.
// ObjectSize must wrap ErrNotFound when the object does not exist.
type Provider interface {
	Name() string
	Bucket() string
	PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error)
	ApplyAccessPolicy(ctx context.Context, key string, policy AccessPolicy) error
	ObjectSize(ctx context.Context, key string) (int64, error)
	RemoveObject(ctx context.Context, key string) error
}

const (
	VisibilityPrivate    = "private"
	VisibilityPublicRead = "public-read"
)

// AccessPolicy is assigned to every remote object once the client reports
// the upload finished.
type AccessPolicy struct {
	Owner      string
	Visibility string
}

// Mirror receives a copy of every ledger mutation after the journal flush.
type Mirror interface {
	SaveFileRecord(ctx context.Context, rec models.FileRecord) error
	DeleteFileRecord(ctx context.Context, id string) error
}

// Notifier publishes upload lifecycle events.
type Notifier interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type ScanResult struct {
	Infected  bool
	Signature string
}

// Scanner inspects content before it is written to disk.
type Scanner interface {
	Scan(ctx context.Context, content []byte) (ScanResult, error)
}

// TargetRegistry remembers which local upload ids were issued and until when.
type TargetRegistry interface {
	Issue(ctx context.Context, id string, ttl time.Duration) error
	Valid(ctx context.Context, id string) (bool, error)
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}
