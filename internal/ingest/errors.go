package ingest

import "errors"

var (
	ErrInvalidContentType = errors.New("invalid content type")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrEmptyUpload        = errors.New("empty upload")
	ErrUploadInterrupted  = errors.New("upload interrupted")
)
