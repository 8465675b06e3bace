package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
)

const (
	mirrorTimeout   = 5 * time.Second
	mirrorQueueSize = 1024
)

// journalEntry is the on-disk form of a FileRecord. Unlike the client
// representation it carries the backend.
type journalEntry struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Size        int64          `json:"size"`
	StoragePath string         `json:"path"`
	MimeType    string         `json:"mimeType"`
	UploadedAt  time.Time      `json:"uploadedAt"`
	Backend     models.Backend `json:"backend"`
}

func toEntry(rec models.FileRecord) journalEntry {
	return journalEntry{
		ID:          rec.ID,
		Name:        rec.Name,
		Size:        rec.Size,
		StoragePath: rec.StoragePath,
		MimeType:    rec.MimeType,
		UploadedAt:  rec.UploadedAt,
		Backend:     rec.Backend,
	}
}

func (e journalEntry) record() models.FileRecord {
	return models.FileRecord{
		ID:          e.ID,
		Name:        e.Name,
		Size:        e.Size,
		StoragePath: e.StoragePath,
		MimeType:    e.MimeType,
		UploadedAt:  e.UploadedAt,
		Backend:     e.Backend,
	}
}

// Ledger is the in-memory catalogue of completed uploads, mirrored to a JSON
// journal that is rewritten after every mutation.
type Ledger struct {
	path    string
	records []models.FileRecord
	index   map[string]int

	corrupted  bool
	mirrorCh   chan mirrorOp
	mirrorDone chan struct{}
	logger     *slog.Logger

	mu sync.RWMutex
}

func NewLedger(path string, logger *slog.Logger) *Ledger {
	return &Ledger{
		path:   path,
		index:  make(map[string]int),
		logger: componentLogger(logger, "ledger"),
	}
}

// mirrorOp is one mutation queued for the mirror. deleteID is set for
// deletions; rec otherwise.
type mirrorOp struct {
	ctx      context.Context
	rec      models.FileRecord
	deleteID string
}

// SetMirror attaches a secondary copy of the ledger. Mutations are queued in
// journal order and applied by a single goroutine, so a slow mirror never
// holds the ledger lock. Call before serving and pair with Close.
func (l *Ledger) SetMirror(m Mirror) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mirrorCh != nil {
		return
	}
	l.mirrorCh = make(chan mirrorOp, mirrorQueueSize)
	l.mirrorDone = make(chan struct{})
	go l.runMirror(m, l.mirrorCh, l.mirrorDone)
}

func (l *Ledger) runMirror(m Mirror, ops <-chan mirrorOp, done chan<- struct{}) {
	defer close(done)
	for op := range ops {
		ctx, cancel := context.WithTimeout(op.ctx, mirrorTimeout)
		if op.deleteID != "" {
			if err := m.DeleteFileRecord(ctx, op.deleteID); err != nil {
				l.logger.Warn("mirror delete failed", "id", op.deleteID, "error", err)
			}
		} else if err := m.SaveFileRecord(ctx, op.rec); err != nil {
			l.logger.Warn("mirror save failed", "id", op.rec.ID, "error", err)
		}
		cancel()
	}
}

// enqueueMirror hands op to the mirror goroutine without blocking. Callers
// hold the write lock, which keeps the queue in journal order.
func (l *Ledger) enqueueMirror(ctx context.Context, op mirrorOp) {
	if l.mirrorCh == nil {
		return
	}
	op.ctx = context.WithoutCancel(ctx)
	select {
	case l.mirrorCh <- op:
	default:
		l.logger.Warn("mirror queue full, dropping update", "id", op.rec.ID, "delete_id", op.deleteID)
	}
}

// Close stops the mirror goroutine after it has applied every queued
// mutation. Mutations after Close are no longer mirrored.
func (l *Ledger) Close() {
	l.mu.Lock()
	ch, done := l.mirrorCh, l.mirrorDone
	l.mirrorCh = nil
	l.mu.Unlock()

	if ch == nil {
		return
	}
	close(ch)
	<-done
}

// Load reads the journal. A missing file leaves the ledger empty. A malformed
// journal is moved aside, the ledger starts empty and listing stays disabled
// until the file is repaired; ErrLedgerCorruption is returned so the caller
// can log it.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var entries []journalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return l.quarantine(fmt.Errorf("%w: %v", ErrLedgerCorruption, err))
	}

	records := make([]models.FileRecord, 0, len(entries))
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return l.quarantine(fmt.Errorf("%w: entry %d has no id", ErrLedgerCorruption, i))
		}
		if _, dup := index[e.ID]; dup {
			return l.quarantine(fmt.Errorf("%w: duplicate id %s", ErrLedgerCorruption, e.ID))
		}
		index[e.ID] = len(records)
		records = append(records, e.record())
	}

	l.records = records
	l.index = index
	l.logger.Info("ledger loaded", "entries", len(records), "path", l.path)
	return nil
}

func (l *Ledger) quarantine(cause error) error {
	l.corrupted = true
	l.records = nil
	l.index = make(map[string]int)

	aside := fmt.Sprintf("%s.corrupt-%d", l.path, time.Now().Unix())
	if err := os.Rename(l.path, aside); err != nil {
		// Never overwrite the unreadable journal; new records go to a sibling file.
		l.path += ".fresh"
		l.logger.Error("failed to move corrupt ledger aside", "error", err, "writing_to", l.path)
		return cause
	}
	l.logger.Error("ledger is corrupt, starting empty", "moved_to", aside, "error", cause)
	return cause
}

// Corrupted reports whether the journal failed to load.
func (l *Ledger) Corrupted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.corrupted
}

// Upsert stores rec, replacing any record with the same id in place. The
// journal is flushed before Upsert returns; on flush failure the in-memory
// state is rolled back. replaced reports whether an earlier record existed.
func (l *Ledger) Upsert(ctx context.Context, rec models.FileRecord) (replaced bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, exists := l.index[rec.ID]
	var previous models.FileRecord
	if exists {
		previous = l.records[i]
		l.records[i] = rec
	} else {
		l.index[rec.ID] = len(l.records)
		l.records = append(l.records, rec)
	}

	if err := l.flush(); err != nil {
		if exists {
			l.records[i] = previous
		} else {
			l.records = l.records[:len(l.records)-1]
			delete(l.index, rec.ID)
		}
		return false, fmt.Errorf("%w: failed to persist ledger: %v", ErrWriteFailure, err)
	}

	l.enqueueMirror(ctx, mirrorOp{rec: rec})
	return exists, nil
}

// Delete removes the record with the given id. It reports false when no such
// record exists.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, exists := l.index[id]
	if !exists {
		return false, nil
	}

	previous := l.records
	remaining := make([]models.FileRecord, 0, len(l.records)-1)
	remaining = append(remaining, l.records[:i]...)
	remaining = append(remaining, l.records[i+1:]...)
	l.records = remaining
	l.reindex()

	if err := l.flush(); err != nil {
		l.records = previous
		l.reindex()
		return false, fmt.Errorf("%w: failed to persist ledger: %v", ErrWriteFailure, err)
	}

	l.enqueueMirror(ctx, mirrorOp{deleteID: id})
	return true, nil
}

func (l *Ledger) reindex() {
	l.index = make(map[string]int, len(l.records))
	for i, rec := range l.records {
		l.index[rec.ID] = i
	}
}

func (l *Ledger) Get(id string) (models.FileRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, exists := l.index[id]
	if !exists {
		return models.FileRecord{}, false
	}
	return l.records[i], true
}

// FindByPath looks a record up by its storage path.
func (l *Ledger) FindByPath(storagePath string) (models.FileRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, rec := range l.records {
		if rec.StoragePath == storagePath {
			return rec, true
		}
	}
	return models.FileRecord{}, false
}

// List returns a snapshot of all records ordered by upload time, oldest
// first. It fails with ErrLedgerCorruption while the journal is unrepaired.
func (l *Ledger) List() ([]models.FileRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.corrupted {
		return nil, ErrLedgerCorruption
	}

	files := make([]models.FileRecord, len(l.records))
	copy(files, l.records)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].UploadedAt.Before(files[j].UploadedAt)
	})
	return files, nil
}

func (l *Ledger) Stats() models.LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := models.LedgerStats{
		TotalFiles: len(l.records),
		ByBackend:  make(map[models.Backend]int),
	}
	for _, rec := range l.records {
		stats.TotalBytes += rec.Size
		stats.ByBackend[rec.Backend]++
		if stats.LatestUpload == nil || rec.UploadedAt.After(*stats.LatestUpload) {
			latest := rec.UploadedAt
			stats.LatestUpload = &latest
		}
	}
	return stats
}

// flush writes the journal through a synced temp file and a rename. Callers
// hold the write lock.
func (l *Ledger) flush() error {
	entries := make([]journalEntry, len(l.records))
	for i, rec := range l.records {
		entries[i] = toEntry(rec)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename ledger: %w", err)
	}
	return nil
}
