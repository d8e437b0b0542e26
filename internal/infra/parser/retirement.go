package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"brickwatch/internal/domain/entity"
)

// ParseRetirementPage extracts every theme's set rows from the retirement
// tracker. The tracker publishes one page covering all themes, grouped as
// .theme-group sections with a .theme-name heading and one .set-row per set.
//
// Rows missing a set number or name are skipped; an entirely empty result
// is a ParseError, because the tracker always lists sets and an empty parse
// means the page shape changed.
func ParseRetirementPage(body []byte, pageURL string) ([]entity.RetirementRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{
			Source: entity.SourceRetirementTracker, URL: pageURL,
			Message: "invalid HTML", Err: err,
		}
	}

	var records []entity.RetirementRecord
	doc.Find(".theme-group").Each(func(_ int, group *goquery.Selection) {
		theme := strings.TrimSpace(group.Find(".theme-name").First().Text())

		group.Find(".set-row").Each(func(i int, row *goquery.Selection) {
			setNumber := strings.TrimSpace(row.Find(".set-number").Text())
			name := strings.TrimSpace(row.Find(".set-name").Text())
			if setNumber == "" || name == "" {
				slog.Debug("skipping retirement row with missing fields",
					slog.String("theme", theme),
					slog.Int("index", i))
				return
			}

			records = append(records, entity.RetirementRecord{
				SetNumber:            setNumber,
				Name:                 name,
				Theme:                theme,
				Status:               normalizeStatus(row.Find(".retirement-status").Text()),
				ExpectedRetirementAt: parseRetirementDate(row.Find(".retirement-date").Text()),
				IsActive:             true,
			})
		})
	})

	if len(records) == 0 {
		return nil, &ParseError{
			Source: entity.SourceRetirementTracker, URL: pageURL,
			Message: "no set rows found (.theme-group .set-row)",
		}
	}

	return records, nil
}

// parseRetirementDate parses the tracker's expected-retirement cell. The
// tracker publishes either a concrete date or a quarter like "Q4 2026"; a
// quarter maps to its last day. Unparseable or empty cells yield nil, since
// many sets have no announced date.
func parseRetirementDate(s string) *time.Time {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" || cleaned == "-" || strings.EqualFold(cleaned, "unknown") {
		return nil
	}

	for _, layout := range []string{"2006-01-02", "Jan 2, 2006", "January 2006"} {
		if t, err := time.Parse(layout, cleaned); err == nil {
			t = t.UTC()
			return &t
		}
	}

	var quarter, year int
	n, err := fmt.Sscanf(strings.ToUpper(cleaned), "Q%d %d", &quarter, &year)
	if err == nil && n == 2 && quarter >= 1 && quarter <= 4 {
		t := time.Date(year, time.Month(quarter*3), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
		return &t
	}

	return nil
}
