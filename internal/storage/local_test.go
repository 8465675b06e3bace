package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	result ScanResult
	err    error
	calls  int
}

func (s *stubScanner) Scan(_ context.Context, _ []byte) (ScanResult, error) {
	s.calls++
	return s.result, s.err
}

func newTestLocal(t *testing.T, opts ...LocalOption) (*LocalBackend, string) {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "uploads")
	ledger := NewLedger(filepath.Join(dir, "files.json"), nil)
	require.NoError(t, ledger.Load())

	local, err := NewLocalBackend(root, ledger, nil, opts...)
	require.NoError(t, err)
	return local, root
}

func TestLocalUploadRoundTrip(t *testing.T) {
	local, root := newTestLocal(t)
	ctx := context.Background()

	target, err := local.GenerateUploadTarget(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BackendLocal, target.Backend)
	assert.Equal(t, LocalUploadPath+target.ID, target.URL)
	require.NoError(t, local.CheckTarget(ctx, target.ID))

	// nothing exists until bytes arrive
	files, err := local.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	rec, err := local.AcceptStream(ctx, target.ID, []byte("0123456789"), "notes.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Size)
	assert.Equal(t, "notes.txt", rec.Name)
	assert.Equal(t, "text/plain", rec.MimeType)
	assert.True(t, strings.HasPrefix(rec.StoragePath, LocalPathPrefix))

	onDisk, err := os.ReadFile(filepath.Join(root, strings.TrimPrefix(rec.StoragePath, LocalPathPrefix)))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(onDisk))

	data, mimeType, err := local.Serve(rec.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	assert.Equal(t, "text/plain", mimeType)

	files, err = local.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, target.ID, files[0].ID)
}

func TestLocalCheckTargetRejectsUnknownIds(t *testing.T) {
	local, _ := newTestLocal(t)
	ctx := context.Background()

	err := local.CheckTarget(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = local.CheckTarget(ctx, "3b241101-e2bb-4255-8caf-4136c566a962")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalAcceptStreamSanitizesName(t *testing.T) {
	local, root := newTestLocal(t)
	ctx := context.Background()

	rec, err := local.AcceptStream(ctx, "id1", []byte("hello"), "../../etc/passwd", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, LocalPathPrefix+"id1-passwd", rec.StoragePath)
	assert.Equal(t, "../../etc/passwd", rec.Name)

	_, err = os.Stat(filepath.Join(root, "id1-passwd"))
	assert.NoError(t, err)
}

func TestLocalAcceptStreamReplacesPreviousFile(t *testing.T) {
	local, root := newTestLocal(t)
	ctx := context.Background()

	first, err := local.AcceptStream(ctx, "id1", []byte("one"), "a.txt", "text/plain")
	require.NoError(t, err)
	second, err := local.AcceptStream(ctx, "id1", []byte("two!"), "b.txt", "text/plain")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, strings.TrimPrefix(first.StoragePath, LocalPathPrefix)))
	assert.True(t, os.IsNotExist(err))

	files, err := local.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, second.StoragePath, files[0].StoragePath)
	assert.Equal(t, int64(4), files[0].Size)
}

func TestLocalAcceptStreamRejectsEmpty(t *testing.T) {
	local, _ := newTestLocal(t)

	_, err := local.AcceptStream(context.Background(), "id1", nil, "a.txt", "text/plain")
	assert.True(t, errors.Is(err, ErrEmptyUpload))
}

func TestLocalScanner(t *testing.T) {
	t.Run("infected content is rejected", func(t *testing.T) {
		scanner := &stubScanner{result: ScanResult{Infected: true, Signature: "Eicar-Test-Signature"}}
		local, root := newTestLocal(t, WithScanner(scanner))

		_, err := local.AcceptStream(context.Background(), "id1", []byte("bad"), "a.txt", "text/plain")
		assert.True(t, errors.Is(err, ErrInfectedUpload))

		entries, err := os.ReadDir(root)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("scanner outage does not block uploads", func(t *testing.T) {
		scanner := &stubScanner{err: errors.New("connection refused")}
		local, _ := newTestLocal(t, WithScanner(scanner))

		_, err := local.AcceptStream(context.Background(), "id1", []byte("ok"), "a.txt", "text/plain")
		assert.NoError(t, err)
		assert.Equal(t, 1, scanner.calls)
	})
}

func TestLocalServeRefusesTraversal(t *testing.T) {
	local, root := newTestLocal(t)

	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0644))

	for _, locator := range []string{
		"/uploads/../secret.txt",
		"/uploads/..",
		"/uploads/",
		"/uploads/sub/file.txt",
		`/uploads/..\secret.txt`,
		"/etc/passwd",
	} {
		_, _, err := local.Serve(locator)
		assert.True(t, errors.Is(err, ErrNotFound), locator)
	}
}

func TestLocalServeOnlyRecordedFiles(t *testing.T) {
	local, root := newTestLocal(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".upload-123"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "orphan-a.txt"), []byte("stale"), 0644))

	for _, locator := range []string{"/uploads/.upload-123", "/uploads/orphan-a.txt"} {
		_, _, err := local.Serve(locator)
		assert.True(t, errors.Is(err, ErrNotFound), locator)
	}
}

func TestLocalRemove(t *testing.T) {
	local, root := newTestLocal(t)
	ctx := context.Background()

	rec, err := local.AcceptStream(ctx, "id1", []byte("bytes"), "a.txt", "text/plain")
	require.NoError(t, err)

	require.NoError(t, local.Remove(ctx, rec))

	_, err = os.Stat(filepath.Join(root, strings.TrimPrefix(rec.StoragePath, LocalPathPrefix)))
	assert.True(t, os.IsNotExist(err))
	_, ok := local.Lookup("id1")
	assert.False(t, ok)

	assert.True(t, errors.Is(local.Remove(ctx, rec), ErrNotFound))
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"notes.txt":          "notes.txt",
		"../../etc/passwd":   "passwd",
		`C:\docs\report.pdf`: "report.pdf",
		".hidden":            "hidden",
		"my report (1).docx": "my_report__1_.docx",
		"":                   "file",
		"..":                 "file",
		"docs/":              "docs",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), in)
	}

	long := strings.Repeat("é", 100)
	got := SanitizeName(long)
	assert.LessOrEqual(t, len(got), maxStoredNameBytes)
	assert.True(t, strings.HasPrefix(long, got))
}
