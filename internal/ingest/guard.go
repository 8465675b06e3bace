package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// DefaultMaxBytes is the per-upload ceiling.
const DefaultMaxBytes int64 = 50 << 20

const readChunkSize = 32 << 10

// Guard buffers one inbound stream while enforcing a byte ceiling. A Guard
// holds no per-upload state and may be shared.
type Guard struct {
	MaxBytes int64
}

func NewGuard(maxBytes int64) *Guard {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Guard{MaxBytes: maxBytes}
}

// CheckDeclared rejects an announced size over the ceiling. A negative size
// means unknown and passes.
func (g *Guard) CheckDeclared(declared int64) error {
	if declared > g.MaxBytes {
		return fmt.Errorf("%w: declared %d bytes, limit is %d", ErrPayloadTooLarge, declared, g.MaxBytes)
	}
	return nil
}

// Read drains r into memory. declared is the sender's announced size and is
// only used to reject early; a negative value means unknown. At most
// MaxBytes+1 bytes are ever pulled from r, and the buffer is dropped as soon
// as the running total passes MaxBytes.
func (g *Guard) Read(ctx context.Context, r io.Reader, declared int64) ([]byte, error) {
	if err := g.CheckDeclared(declared); err != nil {
		return nil, err
	}

	// The buffer grows with accepted bytes only; declared is not trusted.
	var buf bytes.Buffer
	if declared > 0 {
		buf.Grow(int(min(declared, readChunkSize)))
	}

	limited := io.LimitReader(r, g.MaxBytes+1)
	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadInterrupted, err)
		}

		n, err := limited.Read(chunk)
		if n > 0 {
			if int64(buf.Len()+n) > g.MaxBytes {
				return nil, fmt.Errorf("%w: stream exceeded %d bytes", ErrPayloadTooLarge, g.MaxBytes)
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadInterrupted, err)
		}
	}

	if buf.Len() == 0 {
		return nil, ErrEmptyUpload
	}
	return buf.Bytes(), nil
}
