package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/ingest"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	"golang.org/x/sync/semaphore"
)

// Strategy is the backend preference chosen once at startup.
type Strategy int

const (
	StrategyLocal Strategy = iota
	StrategyRemoteFirst
)

func (s Strategy) String() string {
	if s == StrategyRemoteFirst {
		return "remote-first"
	}
	return "local"
}

const (
	SubjectUploaded = "documents.uploaded"
	SubjectDeleted  = "documents.deleted"

	DefaultMaxConcurrentUploads = 16
)

// LocalUpload is one inbound byte stream for a previously issued local target.
type LocalUpload struct {
	ID           string
	Body         io.Reader
	DeclaredSize int64
	Name         string
	ContentType  string
}

// Content is what Serve hands back: either bytes or a URL the caller should
// redirect to.
type Content struct {
	Data        []byte
	MimeType    string
	RedirectURL string
}

// Router is the single entry point for uploads, listing and serving. It hides
// which backend holds a file's bytes.
type Router struct {
	strategy Strategy
	local    *LocalBackend
	remote   *RemoteBackend
	guard    *ingest.Guard
	slots    *semaphore.Weighted
	notifier Notifier
	logger   *slog.Logger
}

type RouterOption func(*Router)

func WithRemote(remote *RemoteBackend) RouterOption {
	return func(r *Router) { r.remote = remote }
}

func WithGuard(g *ingest.Guard) RouterOption {
	return func(r *Router) { r.guard = g }
}

func WithMaxConcurrentUploads(n int64) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.slots = semaphore.NewWeighted(n)
		}
	}
}

func WithNotifier(n Notifier) RouterOption {
	return func(r *Router) { r.notifier = n }
}

func NewRouter(strategy Strategy, local *LocalBackend, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		strategy: strategy,
		local:    local,
		guard:    ingest.NewGuard(ingest.DefaultMaxBytes),
		slots:    semaphore.NewWeighted(DefaultMaxConcurrentUploads),
		logger:   componentLogger(logger, "router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Strategy() Strategy {
	return r.strategy
}

// RequestUploadTarget returns where the client should push bytes. With the
// remote-first strategy a provider failure falls back to the local backend
// instead of failing the request.
func (r *Router) RequestUploadTarget(ctx context.Context) (models.UploadTarget, error) {
	if r.strategy == StrategyRemoteFirst {
		target, err := r.remote.GenerateUploadTarget(ctx)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, ErrProviderUnavailable) {
			return models.UploadTarget{}, err
		}
		r.logger.Warn("remote provider unavailable, falling back to local storage", "error", err)
	}
	return r.local.GenerateUploadTarget(ctx)
}

// PrecheckLocalUpload runs every check that needs no body bytes: the target
// must be live, the declared size within the limit and, when the name is
// already known, its extension acceptable. Callers that must parse framing
// before the content starts, such as multipart forms, call it first.
func (r *Router) PrecheckLocalUpload(ctx context.Context, id string, declaredSize int64, name string) error {
	if err := r.local.CheckTarget(ctx, id); err != nil {
		return err
	}
	if err := r.guard.CheckDeclared(declaredSize); err != nil {
		return err
	}
	if name != "" {
		if _, err := ingest.Resolve("", name); err != nil {
			return err
		}
	}
	return nil
}

// CompleteLocalUpload validates, buffers and stores a local upload. The type
// check and the declared-size check both happen before any byte is read.
func (r *Router) CompleteLocalUpload(ctx context.Context, up LocalUpload) (models.FileRecord, error) {
	if !r.slots.TryAcquire(1) {
		return models.FileRecord{}, ErrBusy
	}
	defer r.slots.Release(1)

	if err := r.local.CheckTarget(ctx, up.ID); err != nil {
		return models.FileRecord{}, err
	}

	mimeType, err := ingest.Resolve(up.ContentType, up.Name)
	if err != nil {
		return models.FileRecord{}, err
	}

	content, err := r.guard.Read(ctx, up.Body, up.DeclaredSize)
	if err != nil {
		r.logger.Info("local upload rejected", "id", up.ID, "error", err)
		return models.FileRecord{}, err
	}
	if up.DeclaredSize >= 0 && int64(len(content)) != up.DeclaredSize {
		r.logger.Warn("declared size differs from received bytes", "id", up.ID, "declared", up.DeclaredSize, "received", len(content))
	}

	if mimeType == "" {
		if mimeType, err = ingest.Sniff(content); err != nil {
			return models.FileRecord{}, err
		}
	}

	rec, err := r.local.AcceptStream(ctx, up.ID, content, up.Name, mimeType)
	if err != nil {
		return models.FileRecord{}, err
	}

	r.publish(ctx, SubjectUploaded, rec)
	return rec, nil
}

// CompleteRemoteUpload finalizes a direct-to-provider upload and merges the
// record into the local ledger, replacing any record with the same id.
func (r *Router) CompleteRemoteUpload(ctx context.Context, uploadURL, name string, size int64) (models.FileRecord, error) {
	if strings.TrimSpace(uploadURL) == "" {
		return models.FileRecord{}, fmt.Errorf("%w: upload url is required", ErrNotFound)
	}

	rec, err := r.remote.CompleteUpload(ctx, uploadURL, name, size)
	if err != nil {
		return models.FileRecord{}, err
	}

	if err := r.local.Record(ctx, rec); err != nil {
		return models.FileRecord{}, err
	}

	r.logger.Info("recorded remote upload", "id", rec.ID, "size", rec.Size)
	r.publish(ctx, SubjectUploaded, rec)
	return rec, nil
}

// List returns every completed upload regardless of backend.
func (r *Router) List() ([]models.FileRecord, error) {
	return r.local.List()
}

func (r *Router) Get(id string) (models.FileRecord, error) {
	rec, ok := r.local.Lookup(id)
	if !ok {
		return models.FileRecord{}, ErrNotFound
	}
	return rec, nil
}

// Serve resolves a locator. Local locators yield bytes; remote locators yield
// a pre-signed URL, since remote bytes are never proxied.
func (r *Router) Serve(ctx context.Context, locator string) (Content, error) {
	if strings.HasPrefix(locator, LocalPathPrefix) {
		data, mimeType, err := r.local.Serve(locator)
		if err != nil {
			return Content{}, err
		}
		return Content{Data: data, MimeType: mimeType}, nil
	}

	if r.remote.Owns(locator) {
		u, err := r.remote.DownloadURL(ctx, locator)
		if err != nil {
			return Content{}, err
		}
		return Content{RedirectURL: u}, nil
	}
	return Content{}, ErrNotFound
}

// Delete removes a file's bytes from whichever backend holds them and then
// its ledger record.
func (r *Router) Delete(ctx context.Context, id string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}

	if rec.Backend == models.BackendRemote {
		if err := r.remote.Delete(ctx, rec); err != nil {
			return err
		}
	}
	if err := r.local.Remove(ctx, rec); err != nil {
		return err
	}

	r.publish(ctx, SubjectDeleted, rec)
	return nil
}

func (r *Router) Stats() models.LedgerStats {
	return r.local.Stats()
}

// LedgerCorrupted reports whether the journal failed to load at startup.
func (r *Router) LedgerCorrupted() bool {
	return r.local.ledger.Corrupted()
}

func (r *Router) publish(ctx context.Context, subject string, rec models.FileRecord) {
	if r.notifier == nil {
		return
	}

	event := map[string]interface{}{
		"file_id":     rec.ID,
		"name":        rec.Name,
		"backend":     rec.Backend,
		"size":        rec.Size,
		"mime_type":   rec.MimeType,
		"path":        rec.StoragePath,
		"uploaded_at": rec.UploadedAt.UTC().Format(time.RFC3339),
	}
	if err := r.notifier.Publish(ctx, subject, event); err != nil {
		r.logger.Warn("failed to publish event", "subject", subject, "id", rec.ID, "error", err)
	}
}
