package scraper

import (
	"context"
	"log/slog"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/infra/parser"
	"brickwatch/internal/repository"
)

// RetailImporter ingests retail shop pages a user pasted into the dashboard.
// There is no fetch, no rate limiting and no breaker: the user supplied the
// bytes, and a page that does not parse is their input error, not a source
// failure. The raw HTML is still preserved like any fetched page so imports
// can be re-parsed later.
type RetailImporter struct {
	repo     repository.RetailRepository
	sessions repository.ScrapeSessionRepository
	payloads repository.RawPayloadRepository
}

// NewRetailImporter creates the retail listing importer.
func NewRetailImporter(repo repository.RetailRepository, sessions repository.ScrapeSessionRepository, payloads repository.RawPayloadRepository) *RetailImporter {
	return &RetailImporter{repo: repo, sessions: sessions, payloads: payloads}
}

// Import parses the pasted page and batch-upserts its product cards.
func (s *RetailImporter) Import(ctx context.Context, html, sourceURL string) (*entity.BatchUpsertResult, error) {
	if html == "" {
		return nil, &InvalidInputError{Source: entity.SourceRetailListing, Reason: "html is required"}
	}
	if err := entity.ValidateURL(sourceURL); err != nil {
		return nil, &InvalidInputError{Source: entity.SourceRetailListing, Reason: err.Error(), Err: err}
	}

	sessionID, err := s.sessions.Open(ctx, entity.SourceRetailListing, sourceURL)
	if err != nil {
		return nil, err
	}

	if err := s.payloads.Save(ctx, sessionID, entity.SourceRetailListing, sourceURL, []byte(html), "text/html", 0); err != nil {
		return nil, err
	}

	listings, err := parser.ParseRetailListings([]byte(html), sourceURL)
	if err != nil {
		s.close(ctx, sessionID, entity.SessionStatusFailed, 0, 0)
		return nil, err
	}

	batch, err := s.repo.BatchUpsert(ctx, listings)
	if err != nil {
		s.close(ctx, sessionID, entity.SessionStatusFailed, len(listings), 0)
		return nil, err
	}

	s.close(ctx, sessionID, entity.SessionStatusSuccess, len(listings), batch.Total)
	return batch, nil
}

func (s *RetailImporter) close(ctx context.Context, sessionID string, status entity.SessionStatus, found, stored int) {
	if err := s.sessions.Close(ctx, sessionID, status, found, stored); err != nil {
		slog.Error("closing import session failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
	}
}
