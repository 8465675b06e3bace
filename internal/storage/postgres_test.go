package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresMirrorSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mirror := NewPostgresMirror(db, nil)
	at := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	rec := sampleRecord("doc-1", at)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(rec.ID, rec.Name, rec.Size, rec.StoragePath, rec.MimeType, "local", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, mirror.SaveFileRecord(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMirrorDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mirror := NewPostgresMirror(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents")).
		WithArgs("doc-2").
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, mirror.DeleteFileRecord(context.Background(), "doc-1"))
	assert.Error(t, mirror.DeleteFileRecord(context.Background(), "doc-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerFeedsPostgresMirror(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ledger := NewLedger(filepath.Join(t.TempDir(), "files.json"), nil)
	ledger.SetMirror(NewPostgresMirror(db, nil))

	mock.ExpectExec("INSERT INTO documents").WillReturnError(errors.New("database is down"))
	mock.ExpectExec("DELETE FROM documents").WithArgs("doc-1").WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	_, err = ledger.Upsert(ctx, sampleRecord("doc-1", time.Now()))
	require.NoError(t, err)

	_, ok := ledger.Get("doc-1")
	assert.True(t, ok)

	removed, err := ledger.Delete(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, removed)

	ledger.Close()
	assert.NoError(t, mock.ExpectationsWereMet())
}
