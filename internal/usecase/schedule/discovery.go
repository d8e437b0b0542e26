package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mmcdole/gofeed"

	"brickwatch/internal/domain/entity"
	"brickwatch/internal/repository"
)

// FeedParser fetches and parses an RSS/Atom feed. *gofeed.Parser satisfies it.
type FeedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

// Discovery reads the metadata site's new-release feed and inserts minimal
// catalog stubs for sets the catalog has never seen. The stubs make the next
// sweep's new-item queries pick the sets up at HIGH priority; discovery
// itself never enqueues anything.
type Discovery struct {
	Parser   FeedParser
	Products repository.ProductRepository
	FeedURL  string
	Logger   *slog.Logger
}

// setNumberPattern matches a set number at the start of a release title,
// e.g. "75192 Millennium Falcon" or "75192: Millennium Falcon".
var setNumberPattern = regexp.MustCompile(`^(\d{3,7})\b[:\s-]*(.*)$`)

// Run parses the feed and creates stubs for unseen sets. Returns how many
// stubs were created. Items without a recognizable set number are skipped.
func (d *Discovery) Run(ctx context.Context) (int, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	feed, err := d.Parser.ParseURLWithContext(d.FeedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("Run: parse feed %s: %w", d.FeedURL, err)
	}

	created := 0
	for _, item := range feed.Items {
		setNumber, name, ok := parseReleaseTitle(item.Title)
		if !ok {
			continue
		}

		stub := &entity.Product{
			// the marketplace addresses sets as <number>-1
			ItemID:    setNumber + "-1",
			ItemType:  entity.ItemTypeSet,
			SetNumber: setNumber,
			Name:      name,
			IsActive:  true,
		}
		inserted, err := d.Products.CreateStub(ctx, stub)
		if err != nil {
			logger.Warn("discovery stub insert failed",
				slog.String("set_number", setNumber),
				slog.Any("error", err))
			continue
		}
		if inserted {
			created++
			logger.Info("discovered new set",
				slog.String("set_number", setNumber),
				slog.String("name", name))
		}
	}
	return created, nil
}

// parseReleaseTitle splits "75192 Millennium Falcon" into number and name.
func parseReleaseTitle(title string) (setNumber, name string, ok bool) {
	m := setNumberPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}
