package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/tags"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioProvider signs URLs against a MinIO bucket. MinIO has no per-object
// ACLs, so the access policy is recorded as object tags.
type MinioProvider struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func NewMinioProvider(ctx context.Context, cfg MinioConfig, logger *slog.Logger) (*MinioProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	p := &MinioProvider{
		client: client,
		bucket: cfg.Bucket,
		logger: serviceLogger(logger, "minio"),
	}
	if err := p.ensureBucket(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("connected to MinIO", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return p, nil
}

// ensureBucket creates the bucket if it doesn't exist.
func (p *MinioProvider) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	p.logger.Info("created bucket", "bucket", p.bucket)
	return nil
}

func (p *MinioProvider) Name() string   { return "minio" }
func (p *MinioProvider) Bucket() string { return p.bucket }

// CheckConnection is used by the health endpoint.
func (p *MinioProvider) CheckConnection(ctx context.Context) error {
	_, err := p.client.BucketExists(ctx, p.bucket)
	return err
}

func (p *MinioProvider) PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, expiry)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (p *MinioProvider) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := p.client.PresignedGetObject(ctx, p.bucket, key, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (p *MinioProvider) ApplyAccessPolicy(ctx context.Context, key string, policy storage.AccessPolicy) error {
	t, err := tags.NewTags(policyTags(policy), true)
	if err != nil {
		return fmt.Errorf("invalid access policy tags: %w", err)
	}
	return p.client.PutObjectTagging(ctx, p.bucket, key, t, minio.PutObjectTaggingOptions{})
}

func (p *MinioProvider) ObjectSize(ctx context.Context, key string) (int64, error) {
	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return 0, err
	}
	return info.Size, nil
}

func (p *MinioProvider) RemoveObject(ctx context.Context, key string) error {
	return p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{})
}

func policyTags(policy storage.AccessPolicy) map[string]string {
	m := map[string]string{"visibility": policy.Visibility}
	if policy.Owner != "" {
		m["owner"] = policy.Owner
	}
	return m
}
