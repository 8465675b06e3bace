// Package ingest validates and buffers inbound document streams before they
// reach a storage backend.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	OctetStream = "application/octet-stream"
	PDF         = "application/pdf"
	Word        = "application/msword"
	WordOpenXML = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	PlainText   = "text/plain"
)

var typesByExtension = map[string]string{
	".pdf":  PDF,
	".doc":  Word,
	".docx": WordOpenXML,
	".txt":  PlainText,
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
}

// Accepted reports whether a normalized media type may be ingested.
func Accepted(mediaType string) bool {
	switch Normalize(mediaType) {
	case PDF, Word, WordOpenXML, PlainText:
		return true
	}
	return false
}

// Normalize lower-cases a content type and drops its parameters.
func Normalize(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// FromName infers a media type from the file extension, defaulting to
// application/octet-stream.
func FromName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := typesByExtension[ext]; ok {
		return t
	}
	return OctetStream
}

// Resolve picks the effective media type of an upload from its declared
// content type and filename, before any byte is read. An empty result with a
// nil error means the type is undetermined and must be sniffed from content.
func Resolve(contentType, name string) (string, error) {
	declared := Normalize(contentType)
	if declared != "" && declared != OctetStream {
		if !Accepted(declared) {
			return "", fmt.Errorf("%w: %s", ErrInvalidContentType, declared)
		}
		return declared, nil
	}

	inferred := FromName(name)
	if inferred == OctetStream {
		return "", nil
	}
	if !Accepted(inferred) {
		return "", fmt.Errorf("%w: %s", ErrInvalidContentType, inferred)
	}
	return inferred, nil
}

// Sniff detects the media type of buffered content and returns the first
// accepted type in the detected type's ancestry.
func Sniff(content []byte) (string, error) {
	detected := mimetype.Detect(content)
	for m := detected; m != nil; m = m.Parent() {
		if t := Normalize(m.String()); Accepted(t) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", ErrInvalidContentType, Normalize(detected.String()))
}
