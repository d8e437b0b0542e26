package repository

import (
	"context"

	"brickwatch/internal/domain/entity"
)

// ScrapeSessionRepository records scrape sessions: one row per attempt that
// reaches the fetch stage. Opened before the first fetch, closed with final
// counters by the owning worker. The core never deletes sessions.
type ScrapeSessionRepository interface {
	// Open creates a session row and returns its id.
	Open(ctx context.Context, source entity.Source, sourceURL string) (string, error)

	// Close sets the final status and counters.
	Close(ctx context.Context, sessionID string, status entity.SessionStatus, productsFound, productsStored int) error
}

// RawPayloadRepository preserves fetched page bytes, gzip-compressed and
// linked to their session. Every byte handed to a parser is persisted here
// first; Save must not fail for any reason short of the database being down.
type RawPayloadRepository interface {
	// Save compresses body and inserts one payload row.
	Save(ctx context.Context, sessionID string, source entity.Source, sourceURL string, body []byte, contentType string, httpStatus int) error
}
