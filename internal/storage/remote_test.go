package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is an in-memory object store that signs URLs path-style.
type fakeProvider struct {
	mu         sync.Mutex
	bucket     string
	objects    map[string]int64
	policies   map[string]AccessPolicy
	removed    []string
	presignErr error
	policyErr  error
	statErr    error
	delay      time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		bucket:   "docs",
		objects:  make(map[string]int64),
		policies: make(map[string]AccessPolicy),
	}
}

func (f *fakeProvider) Name() string   { return "fake" }
func (f *fakeProvider) Bucket() string { return f.bucket }

func (f *fakeProvider) sign(key, op string) string {
	return fmt.Sprintf("http://objects.test:9000/%s/%s?X-Amz-Signature=%s", f.bucket, key, op)
}

func (f *fakeProvider) PresignUpload(ctx context.Context, key string, _ time.Duration) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return f.sign(key, "put"), nil
}

func (f *fakeProvider) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return f.sign(key, "get"), nil
}

func (f *fakeProvider) ApplyAccessPolicy(_ context.Context, key string, policy AccessPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.policyErr != nil {
		return f.policyErr
	}
	f.policies[key] = policy
	return nil
}

func (f *fakeProvider) ObjectSize(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statErr != nil {
		return 0, f.statErr
	}
	size, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return size, nil
}

func (f *fakeProvider) RemoveObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

// put simulates the client pushing bytes to a signed URL.
func (f *fakeProvider) put(t *testing.T, signed string, size int64) string {
	t.Helper()
	u, err := url.Parse(signed)
	require.NoError(t, err)
	key := strings.TrimPrefix(u.Path, "/"+f.bucket+"/")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = size
	return key
}

func newTestRemote(p Provider) *RemoteBackend {
	return NewRemoteBackend(p, RemoteConfig{
		Policy:  AccessPolicy{Owner: "ingest", Visibility: VisibilityPrivate},
		Timeout: time.Second,
	}, nil)
}

func TestRemoteUploadLifecycle(t *testing.T) {
	provider := newFakeProvider()
	remote := newTestRemote(provider)
	ctx := context.Background()

	target, err := remote.GenerateUploadTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackendRemote, target.Backend)
	assert.NotEmpty(t, target.ID)

	key := provider.put(t, target.URL, 2048)
	assert.True(t, strings.HasPrefix(key, DefaultRemoteKeyPrefix+"/"))

	rec, err := remote.CompleteUpload(ctx, target.URL, "report.pdf", 2048)
	require.NoError(t, err)
	assert.Equal(t, target.ID, rec.ID)
	assert.Equal(t, "report.pdf", rec.Name)
	assert.Equal(t, int64(2048), rec.Size)
	assert.Equal(t, "application/pdf", rec.MimeType)
	assert.Equal(t, "s3://docs/"+key, rec.StoragePath)
	assert.Equal(t, models.BackendRemote, rec.Backend)
	assert.Equal(t, VisibilityPrivate, provider.policies[key].Visibility)
	assert.Equal(t, "ingest", provider.policies[key].Owner)

	again, err := remote.CompleteUpload(ctx, target.URL, "report.pdf", 2048)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	assert.True(t, remote.Owns(rec.StoragePath))
	download, err := remote.DownloadURL(ctx, rec.StoragePath)
	require.NoError(t, err)
	assert.Contains(t, download, key)

	require.NoError(t, remote.Delete(ctx, rec))
	assert.Equal(t, []string{key}, provider.removed)
}

func TestRemoteCompleteUsesStoredSize(t *testing.T) {
	provider := newFakeProvider()
	remote := newTestRemote(provider)
	ctx := context.Background()

	target, err := remote.GenerateUploadTarget(ctx)
	require.NoError(t, err)
	provider.put(t, target.URL, 500)

	rec, err := remote.CompleteUpload(ctx, target.URL, "a.pdf", 9999)
	require.NoError(t, err)
	assert.Equal(t, int64(500), rec.Size)
}

func TestRemoteCompleteKeepsDeclaredSizeWhenStatFails(t *testing.T) {
	provider := newFakeProvider()
	remote := newTestRemote(provider)
	ctx := context.Background()

	target, err := remote.GenerateUploadTarget(ctx)
	require.NoError(t, err)
	provider.statErr = errors.New("stat not permitted")

	rec, err := remote.CompleteUpload(ctx, target.URL, "a.pdf", 77)
	require.NoError(t, err)
	assert.Equal(t, int64(77), rec.Size)
}

func TestRemoteCompleteFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("object never uploaded", func(t *testing.T) {
		provider := newFakeProvider()
		remote := newTestRemote(provider)
		target, err := remote.GenerateUploadTarget(ctx)
		require.NoError(t, err)

		_, err = remote.CompleteUpload(ctx, target.URL, "a.pdf", 1)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("url from another bucket", func(t *testing.T) {
		remote := newTestRemote(newFakeProvider())
		_, err := remote.CompleteUpload(ctx, "http://objects.test:9000/other/documents/2024/01/01/x", "a.pdf", 1)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("url outside the key prefix", func(t *testing.T) {
		remote := newTestRemote(newFakeProvider())
		_, err := remote.CompleteUpload(ctx, "http://objects.test:9000/docs/avatars/x", "a.pdf", 1)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("policy cannot be applied", func(t *testing.T) {
		provider := newFakeProvider()
		remote := newTestRemote(provider)
		target, err := remote.GenerateUploadTarget(ctx)
		require.NoError(t, err)
		provider.put(t, target.URL, 1)
		provider.policyErr = errors.New("access denied")

		_, err = remote.CompleteUpload(ctx, target.URL, "a.pdf", 1)
		assert.True(t, errors.Is(err, ErrProviderUnavailable))
	})

	t.Run("no provider", func(t *testing.T) {
		var remote *RemoteBackend
		_, err := remote.CompleteUpload(ctx, "http://x/docs/documents/a", "a.pdf", 1)
		assert.True(t, errors.Is(err, ErrProviderUnavailable))
	})
}

func TestRemoteGenerateTargetTimesOut(t *testing.T) {
	provider := newFakeProvider()
	provider.delay = time.Second
	remote := NewRemoteBackend(provider, RemoteConfig{Timeout: 20 * time.Millisecond}, nil)

	_, err := remote.GenerateUploadTarget(context.Background())
	assert.True(t, errors.Is(err, ErrProviderUnavailable))
}

func TestRemoteObjectKeyVirtualHostStyle(t *testing.T) {
	remote := newTestRemote(newFakeProvider())

	key, err := remote.ObjectKey("https://docs.s3.eu-west-1.amazonaws.com/documents/2024/05/06/abc?X-Amz-Expires=900")
	require.NoError(t, err)
	assert.Equal(t, "documents/2024/05/06/abc", key)
}

func TestDeriveID(t *testing.T) {
	assert.Equal(t, "abc", DeriveID("documents/2024/01/01/abc"))
	assert.Equal(t, "abc", DeriveID("documents/2024/01/01/abc/"))
	assert.Equal(t, DeriveID("documents/x/id"), DeriveID("documents/x/id"))
	assert.Equal(t, "", DeriveID(""))
	assert.Equal(t, "", DeriveID("/"))
}
