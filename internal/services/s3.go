package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

// S3Provider talks to AWS S3 or any endpoint speaking the S3 API. Unlike
// MinIO it supports canned ACLs, so visibility is applied as an ACL and the
// owner as a tag.
type S3Provider struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

func NewS3Provider(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Provider, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	p := &S3Provider{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  serviceLogger(logger, "s3"),
	}
	p.logger.Info("configured S3 provider", "region", cfg.Region, "bucket", cfg.Bucket)
	return p, nil
}

func (p *S3Provider) Name() string   { return "s3" }
func (p *S3Provider) Bucket() string { return p.bucket }

// CheckConnection is used by the health endpoint.
func (p *S3Provider) CheckConnection(ctx context.Context) error {
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	return err
}

func (p *S3Provider) PresignUpload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := p.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (p *S3Provider) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := p.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (p *S3Provider) ApplyAccessPolicy(ctx context.Context, key string, policy storage.AccessPolicy) error {
	_, err := p.client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		ACL:    cannedACL(policy.Visibility),
	})
	if err != nil {
		return fmt.Errorf("failed to set object ACL: %w", err)
	}

	if policy.Owner == "" {
		return nil
	}
	_, err = p.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Tagging: &types.Tagging{TagSet: []types.Tag{
			{Key: aws.String("owner"), Value: aws.String(policy.Owner)},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to tag object owner: %w", err)
	}
	return nil
}

func (p *S3Provider) ObjectSize(ctx context.Context, key string) (int64, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (p *S3Provider) RemoveObject(ctx context.Context, key string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	return err
}

func cannedACL(visibility string) types.ObjectCannedACL {
	if visibility == storage.VisibilityPublicRead {
		return types.ObjectCannedACLPublicRead
	}
	return types.ObjectCannedACLPrivate
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == http.StatusText(http.StatusNotFound)
	}
	return false
}
