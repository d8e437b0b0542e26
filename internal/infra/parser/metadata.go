package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"brickwatch/internal/domain/entity"
	"brickwatch/pkg/currency"
)

// ParseMetadataSearch locates the product link for setNumber on a metadata
// site search page and returns it as an absolute URL.
//
// A search page with no result for the set is how this source says "no such
// set", so an empty or non-matching result list returns *SetNotFoundError.
// A page without the results container at all is a ParseError: that shape
// never occurs for a real search response.
func ParseMetadataSearch(body []byte, pageURL, setNumber string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", &ParseError{
			Source: entity.SourceMetadataSite, URL: pageURL,
			Message: "invalid HTML", Err: err,
		}
	}

	results := doc.Find(".search-results")
	if results.Length() == 0 {
		return "", &ParseError{
			Source: entity.SourceMetadataSite, URL: pageURL,
			Message: "results container missing (.search-results)",
		}
	}

	var productURL string
	results.Find(".search-result .result-link").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return true
		}
		// Search can return near matches; only the entry naming this exact
		// set counts.
		if strings.Contains(href, setNumber) || strings.Contains(link.Text(), setNumber) {
			productURL = resolveURL(pageURL, href)
			return false
		}
		return true
	})

	if productURL == "" {
		return "", &SetNotFoundError{Source: entity.SourceMetadataSite, Identifier: setNumber}
	}
	return productURL, nil
}

// ParseMetadataProduct extracts a set's metadata from its product page. The
// page carries the title, a .set-facts definition list, and the set image.
// Numeric facts are optional: older sets omit piece counts and ratings.
func ParseMetadataProduct(body []byte, pageURL string) (*entity.MetadataRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{
			Source: entity.SourceMetadataSite, URL: pageURL,
			Message: "invalid HTML", Err: err,
		}
	}

	name := strings.TrimSpace(doc.Find(".set-title").First().Text())
	if name == "" {
		return nil, &ParseError{
			Source: entity.SourceMetadataSite, URL: pageURL,
			Message: "set title missing (.set-title)",
		}
	}

	facts := make(map[string]string)
	doc.Find(".set-facts dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.ToLower(strings.TrimSpace(dt.Text()))
		value := strings.TrimSpace(dt.Next().Text())
		if key != "" && value != "" {
			facts[key] = value
		}
	})

	setNumber := facts["set number"]
	if setNumber == "" {
		return nil, &ParseError{
			Source: entity.SourceMetadataSite, URL: pageURL,
			Message: "set number missing from facts",
		}
	}

	record := &entity.MetadataRecord{
		SetNumber:  setNumber,
		Name:       name,
		Theme:      facts["theme"],
		Subtheme:   facts["subtheme"],
		ProductURL: pageURL,
		ImageURL:   strings.TrimSpace(doc.Find(".set-image").First().AttrOr("src", "")),
	}

	if year, err := parseCount(facts["year released"]); err == nil {
		record.Year = &year
	}
	if pieces, err := parseCount(facts["pieces"]); err == nil {
		record.Pieces = &pieces
	}
	if minifigs, err := parseCount(facts["minifigs"]); err == nil {
		record.Minifigs = &minifigs
	}
	if rrp := facts["rrp"]; rrp != "" {
		if cents, err := currency.ParseCents(rrp); err == nil {
			record.RRPCents = &cents
		}
	}
	if ratingStr := facts["rating"]; ratingStr != "" {
		if rating, err := strconv.ParseFloat(ratingStr, 64); err == nil {
			record.Rating = &rating
		}
	}

	return record, nil
}
