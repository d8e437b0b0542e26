package postgres

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/observability/metrics"
	"brickwatch/internal/repository"
)

type RawPayloadRepo struct{ db DB }

func NewRawPayloadRepo(db DB) repository.RawPayloadRepository {
	return &RawPayloadRepo{db: db}
}

// Save compresses the page body and inserts one row.
func (repo *RawPayloadRepo) Save(ctx context.Context, sessionID string, source entity.Source, sourceURL string, body []byte, contentType string, httpStatus int) error {
	compressed, err := Compress(body)
	if err != nil {
		return fmt.Errorf("Save: %w", err)
	}

	const query = `
INSERT INTO raw_payloads (session_id, source, source_url, compressed_body, content_type, http_status, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`
	if _, err := repo.db.ExecContext(ctx, query,
		sessionID, string(source), sourceURL, compressed, contentType, httpStatus,
	); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	metrics.RecordRawPayload(len(compressed))
	return nil
}

// Compress gzips a page body for storage.
func Compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("Compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("Compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress, for post-mortem re-parsing of stored pages.
func Decompress(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("Decompress: %w", err)
	}
	defer func() { _ = zr.Close() }()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("Decompress: %w", err)
	}
	return body, nil
}
