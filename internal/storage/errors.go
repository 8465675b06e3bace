package storage

import (
	"errors"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/ingest"
)

// Callers match these with errors.Is; backends wrap them with context.
var (
	ErrInvalidContentType = ingest.ErrInvalidContentType
	ErrPayloadTooLarge    = ingest.ErrPayloadTooLarge
	ErrEmptyUpload        = ingest.ErrEmptyUpload
	ErrUploadInterrupted  = ingest.ErrUploadInterrupted

	ErrWriteFailure        = errors.New("write failure")
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	ErrNotFound            = errors.New("not found")
	ErrLedgerCorruption    = errors.New("ledger corruption")
	ErrInfectedUpload      = errors.New("upload rejected by virus scan")
	ErrBusy                = errors.New("too many uploads in progress")
)
