package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

type SessionRepo struct{ db DB }

func NewSessionRepo(db DB) repository.ScrapeSessionRepository {
	return &SessionRepo{db: db}
}

// Open creates the session row before the first fetch. The row starts out
// failed so a crashed worker leaves an honest record; Close overwrites it.
func (repo *SessionRepo) Open(ctx context.Context, source entity.Source, sourceURL string) (string, error) {
	id := uuid.New().String()
	const query = `
INSERT INTO scrape_sessions (id, source, source_url, status, products_found, products_stored, created_at)
VALUES ($1, $2, $3, 'failed', 0, 0, now())`
	if _, err := repo.db.ExecContext(ctx, query, id, string(source), sourceURL); err != nil {
		return "", fmt.Errorf("Open: %w", err)
	}
	return id, nil
}

func (repo *SessionRepo) Close(ctx context.Context, sessionID string, status entity.SessionStatus, productsFound, productsStored int) error {
	const query = `
UPDATE scrape_sessions
SET status = $1, products_found = $2, products_stored = $3
WHERE id = $4`
	res, err := repo.db.ExecContext(ctx, query, string(status), productsFound, productsStored, sessionID)
	if err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Close: no session %s", sessionID)
	}
	return nil
}
