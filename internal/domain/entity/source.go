// Package entity defines the core domain entities for the scraping pipeline:
// the external sources, the per-source catalog records, scrape sessions and
// raw payloads, along with their validation rules and domain errors.
package entity

import "fmt"

// Source identifies one of the external sites the pipeline scrapes.
type Source string

const (
	// SourceMarketplace is the secondary-market catalog (per-item price guide pages).
	SourceMarketplace Source = "marketplace"

	// SourceRetirementTracker is the retirement-date tracking site (one page, all themes).
	SourceRetirementTracker Source = "retirement_tracker"

	// SourceMetadataSite is the set-metadata site (two-hop: search page, then product page).
	SourceMetadataSite Source = "metadata_site"

	// SourceReddit is the community board's JSON search endpoint.
	SourceReddit Source = "reddit"

	// SourceRetailListing is the user-pasted retail listing page (never scheduler-driven).
	SourceRetailListing Source = "retail_listing"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceMarketplace, SourceRetirementTracker, SourceMetadataSite, SourceReddit, SourceRetailListing:
		return true
	}
	return false
}

// JobName returns the queue dispatch key for this source, e.g. "scrape-marketplace".
func (s Source) JobName() string {
	return "scrape-" + string(s)
}

// SourceFromJobName resolves a queue dispatch key back to its source.
func SourceFromJobName(name string) (Source, error) {
	const prefix = "scrape-"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		s := Source(name[len(prefix):])
		if s.Valid() {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown job name: %q", name)
}

// FetchMode selects how a source's pages are retrieved.
type FetchMode string

const (
	// FetchModeSimple is a plain HTTP GET with rotated request headers.
	FetchModeSimple FetchMode = "simple"

	// FetchModeBrowser renders the page in a headless browser with
	// anti-automation countermeasures applied.
	FetchModeBrowser FetchMode = "browser"
)

// ItemType is the marketplace catalog item kind, used as the query key in
// item-page URLs (S=set, M=minifig, B=book, G=gear).
type ItemType string

const (
	ItemTypeSet     ItemType = "S"
	ItemTypeMinifig ItemType = "M"
	ItemTypeBook    ItemType = "B"
	ItemTypeGear    ItemType = "G"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeSet, ItemTypeMinifig, ItemTypeBook, ItemTypeGear:
		return true
	}
	return false
}
