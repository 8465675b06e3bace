package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/models"
	_ "github.com/lib/pq"
)

// PostgresMirror keeps a queryable copy of the ledger in PostgreSQL. The JSON
// journal stays the source of truth.
type PostgresMirror struct {
	db     *sql.DB
	logger *slog.Logger
}

// ConnectPostgres opens the database, checks it answers and creates the
// documents table.
func ConnectPostgres(ctx context.Context, connectionString string, logger *slog.Logger) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	m := NewPostgresMirror(db, logger)
	if err := m.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	m.logger.Info("connected to PostgreSQL")
	return m, nil
}

func NewPostgresMirror(db *sql.DB, logger *slog.Logger) *PostgresMirror {
	return &PostgresMirror{db: db, logger: componentLogger(logger, "postgres")}
}

func (p *PostgresMirror) createTables(ctx context.Context) error {
	query := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        size BIGINT NOT NULL,
        storage_path VARCHAR(1024) NOT NULL,
        mime_type VARCHAR(255) NOT NULL,
        backend VARCHAR(16) NOT NULL,
        uploaded_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ DEFAULT NOW()
    );

    CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);
    `

	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *PostgresMirror) SaveFileRecord(ctx context.Context, rec models.FileRecord) error {
	query := `
    INSERT INTO documents (id, name, size, storage_path, mime_type, backend, uploaded_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (id) DO UPDATE SET
        name = EXCLUDED.name,
        size = EXCLUDED.size,
        storage_path = EXCLUDED.storage_path,
        mime_type = EXCLUDED.mime_type,
        backend = EXCLUDED.backend,
        uploaded_at = EXCLUDED.uploaded_at,
        updated_at = NOW()
    `

	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Size,
		rec.StoragePath,
		rec.MimeType,
		string(rec.Backend),
		rec.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", rec.ID, err)
	}
	return nil
}

func (p *PostgresMirror) DeleteFileRecord(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

func (p *PostgresMirror) CheckConnection(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresMirror) Close() error {
	return p.db.Close()
}
