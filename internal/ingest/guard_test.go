package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingReader records how many bytes were pulled from the wrapped reader.
type countingReader struct {
	r     io.Reader
	reads int
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	n, err := c.r.Read(p)
	c.total += int64(n)
	return n, err
}

// endlessReader never ends and never errors, like a sender lying about size.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'a'
	}
	return len(p), nil
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestGuard_ReturnsActualBytes(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)

	got, err := g.Read(context.Background(), strings.NewReader("0123456789"), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), got)
}

func TestGuard_DeclaredSizeIsNotTrusted(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)

	got, err := g.Read(context.Background(), strings.NewReader("abc"), 3000)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGuard_DeclaredSizeDoesNotPreallocate(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)

	got, err := g.Read(context.Background(), strings.NewReader("x"), DefaultMaxBytes)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.LessOrEqual(t, cap(got), 2*readChunkSize)
}

func TestGuard_DeclaredOversizeReadsNothing(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)
	src := &countingReader{r: endlessReader{}}

	_, err := g.Read(context.Background(), src, 60<<20)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Zero(t, src.reads)
	assert.Zero(t, src.total)
}

func TestGuard_AbortsMidStream(t *testing.T) {
	const limit = 1 << 20
	g := NewGuard(limit)
	src := &countingReader{r: endlessReader{}}

	got, err := g.Read(context.Background(), src, -1)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Nil(t, got)
	assert.LessOrEqual(t, src.total, int64(limit+1))
}

func TestGuard_ExactlyAtLimit(t *testing.T) {
	g := NewGuard(64)

	got, err := g.Read(context.Background(), bytes.NewReader(bytes.Repeat([]byte("x"), 64)), 64)
	require.NoError(t, err)
	assert.Len(t, got, 64)

	_, err = g.Read(context.Background(), bytes.NewReader(bytes.Repeat([]byte("x"), 65)), -1)
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestGuard_EmptyStream(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)

	_, err := g.Read(context.Background(), strings.NewReader(""), 0)
	require.ErrorIs(t, err, ErrEmptyUpload)
}

func TestGuard_ReaderFailureIsInterruption(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)

	_, err := g.Read(context.Background(), failingReader{err: errors.New("connection reset")}, 10)
	require.ErrorIs(t, err, ErrUploadInterrupted)
}

func TestGuard_CancelledContext(t *testing.T) {
	g := NewGuard(DefaultMaxBytes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Read(ctx, strings.NewReader("data"), 4)
	require.ErrorIs(t, err, ErrUploadInterrupted)
}

func TestNewGuard_DefaultsNonPositiveLimit(t *testing.T) {
	assert.Equal(t, DefaultMaxBytes, NewGuard(0).MaxBytes)
}
