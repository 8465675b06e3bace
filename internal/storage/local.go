package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/ingest"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	"github.com/google/uuid"
)

const (
	// LocalPathPrefix starts every locator issued by the local backend.
	LocalPathPrefix = "/uploads/"
	// LocalUploadPath is where clients stream bytes for a local target.
	LocalUploadPath = "/api/uploads/local/"

	DefaultTargetTTL = 15 * time.Minute

	maxStoredNameBytes = 128
)

// LocalBackend persists uploads under a root directory and owns the ledger.
type LocalBackend struct {
	root      string
	ledger    *Ledger
	targets   TargetRegistry
	targetTTL time.Duration
	scanner   Scanner
	locks     idLocks
	logger    *slog.Logger
	now       func() time.Time
}

// idLocks serializes disk and ledger work for one id at a time.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

// lock blocks until id is free and returns the matching unlock.
func (k *idLocks) lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*idLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &idLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

type LocalOption func(*LocalBackend)

func WithTargetRegistry(r TargetRegistry) LocalOption {
	return func(l *LocalBackend) { l.targets = r }
}

func WithTargetTTL(ttl time.Duration) LocalOption {
	return func(l *LocalBackend) {
		if ttl > 0 {
			l.targetTTL = ttl
		}
	}
}

func WithScanner(s Scanner) LocalOption {
	return func(l *LocalBackend) { l.scanner = s }
}

func WithClock(now func() time.Time) LocalOption {
	return func(l *LocalBackend) { l.now = now }
}

func NewLocalBackend(root string, ledger *Ledger, logger *slog.Logger, opts ...LocalOption) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	l := &LocalBackend{
		root:      abs,
		ledger:    ledger,
		targets:   NewMemoryTargetRegistry(),
		targetTTL: DefaultTargetTTL,
		logger:    componentLogger(logger, "local"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// GenerateUploadTarget issues a fresh id and the URL the client streams to.
// No file and no ledger entry exist until AcceptStream succeeds.
func (l *LocalBackend) GenerateUploadTarget(ctx context.Context) (models.UploadTarget, error) {
	id := uuid.New().String()
	if err := l.targets.Issue(ctx, id, l.targetTTL); err != nil {
		return models.UploadTarget{}, fmt.Errorf("failed to register upload target: %w", err)
	}

	return models.UploadTarget{
		ID:        id,
		Backend:   models.BackendLocal,
		URL:       LocalUploadPath + id,
		Method:    http.MethodPut,
		ExpiresAt: l.now().Add(l.targetTTL).UTC(),
	}, nil
}

// CheckTarget fails with ErrNotFound unless id was issued by
// GenerateUploadTarget and has not expired.
func (l *LocalBackend) CheckTarget(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: unknown upload target", ErrNotFound)
	}
	ok, err := l.targets.Valid(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to look up upload target: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: unknown or expired upload target", ErrNotFound)
	}
	return nil
}

// AcceptStream writes content for id and records it in the ledger. The size
// recorded is len(content), whatever the client declared. Completions for the
// same id run one at a time, so the ledger always describes the bytes on disk.
func (l *LocalBackend) AcceptStream(ctx context.Context, id string, content []byte, name, mimeType string) (models.FileRecord, error) {
	if len(content) == 0 {
		return models.FileRecord{}, ErrEmptyUpload
	}
	if mimeType == "" {
		mimeType = ingest.OctetStream
	}

	if l.scanner != nil {
		result, err := l.scanner.Scan(ctx, content)
		switch {
		case err != nil:
			l.logger.Warn("virus scan unavailable, accepting upload", "id", id, "error", err)
		case result.Infected:
			l.logger.Warn("virus scan rejected upload", "id", id, "signature", result.Signature)
			return models.FileRecord{}, fmt.Errorf("%w: %s", ErrInfectedUpload, result.Signature)
		}
	}

	unlock := l.locks.lock(id)
	defer unlock()

	storedName := id + "-" + SanitizeName(name)
	finalPath, err := l.resolve(storedName)
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	if err := l.writeFile(finalPath, content); err != nil {
		l.logger.Error("failed to write upload", "id", id, "error", err)
		return models.FileRecord{}, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	previous, hadPrevious := l.ledger.Get(id)

	rec := models.FileRecord{
		ID:          id,
		Name:        name,
		Size:        int64(len(content)),
		StoragePath: LocalPathPrefix + storedName,
		MimeType:    mimeType,
		UploadedAt:  l.now().UTC(),
		Backend:     models.BackendLocal,
	}

	if _, err := l.ledger.Upsert(ctx, rec); err != nil {
		if !hadPrevious || previous.StoragePath != rec.StoragePath {
			os.Remove(finalPath)
		}
		return models.FileRecord{}, err
	}

	if hadPrevious && previous.Backend == models.BackendLocal && previous.StoragePath != rec.StoragePath {
		l.removeStored(previous.StoragePath)
	}

	l.logger.Info("stored upload", "id", id, "size", rec.Size, "mime_type", rec.MimeType)
	return rec, nil
}

// writeFile writes through a synced temp file in the root so a failure never
// leaves a partial file under the final name.
func (l *LocalBackend) writeFile(finalPath string, content []byte) error {
	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Serve returns the bytes behind a local locator and their mime type. Only
// locators recorded in the ledger are served.
func (l *LocalBackend) Serve(locator string) ([]byte, string, error) {
	name, ok := strings.CutPrefix(locator, LocalPathPrefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, "", ErrNotFound
	}
	rec, ok := l.ledger.FindByPath(locator)
	if !ok || rec.Backend != models.BackendLocal {
		return nil, "", ErrNotFound
	}

	full, err := l.resolve(name)
	if err != nil {
		return nil, "", ErrNotFound
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		l.logger.Error("failed to read stored file", "locator", locator, "error", err)
		return nil, "", fmt.Errorf("failed to read stored file: %w", err)
	}

	mimeType := rec.MimeType
	if mimeType == "" {
		mimeType = ingest.FromName(name)
	}
	return data, mimeType, nil
}

func (l *LocalBackend) List() ([]models.FileRecord, error) {
	return l.ledger.List()
}

func (l *LocalBackend) Lookup(id string) (models.FileRecord, bool) {
	return l.ledger.Get(id)
}

func (l *LocalBackend) Stats() models.LedgerStats {
	return l.ledger.Stats()
}

// Record merges a record produced elsewhere into the ledger.
func (l *LocalBackend) Record(ctx context.Context, rec models.FileRecord) error {
	unlock := l.locks.lock(rec.ID)
	defer unlock()

	_, err := l.ledger.Upsert(ctx, rec)
	return err
}

// Remove drops the record for rec.ID from the ledger, deleting its bytes
// first when they live on local disk.
func (l *LocalBackend) Remove(ctx context.Context, rec models.FileRecord) error {
	unlock := l.locks.lock(rec.ID)
	defer unlock()

	rec, ok := l.ledger.Get(rec.ID)
	if !ok {
		return ErrNotFound
	}
	if rec.Backend == models.BackendLocal {
		if err := l.removeStored(rec.StoragePath); err != nil {
			return err
		}
	}
	removed, err := l.ledger.Delete(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

func (l *LocalBackend) removeStored(locator string) error {
	name, ok := strings.CutPrefix(locator, LocalPathPrefix)
	if !ok {
		return nil
	}
	full, err := l.resolve(name)
	if err != nil {
		return nil
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Error("failed to delete stored file", "locator", locator, "error", err)
		return fmt.Errorf("%w: failed to delete stored file", ErrWriteFailure)
	}
	return nil
}

// resolve joins name onto the root and refuses anything that lands outside it.
func (l *LocalBackend) resolve(name string) (string, error) {
	full := filepath.Join(l.root, name)
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes storage root")
	}
	return full, nil
}

// SanitizeName reduces a client filename to a single safe path segment.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)
	name = strings.TrimLeft(name, ".")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == utf8.RuneError:
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := b.String()

	for len(clean) > maxStoredNameBytes {
		_, size := utf8.DecodeLastRuneInString(clean)
		clean = clean[:len(clean)-size]
	}
	if clean == "" {
		return "file"
	}
	return clean
}
