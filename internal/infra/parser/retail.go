package parser

import (
	"bytes"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"brickwatch/internal/domain/entity"
	"brickwatch/pkg/currency"
)

// soldCountPattern matches the retailer's sold-count blurbs: "345 sold",
// "1.2k sold", "sold: 87".
var soldCountPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*([kK])?`)

// ParseRetailListings extracts product cards from a user-pasted retail shop
// page. Cards missing an identifier, name, or price are skipped; a page with
// no usable card at all is a ParseError, which the import surface reports
// back to the user as bad input.
func ParseRetailListings(body []byte, sourceURL string) ([]entity.RetailListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{
			Source: entity.SourceRetailListing, URL: sourceURL,
			Message: "invalid HTML", Err: err,
		}
	}

	shopName := strings.TrimSpace(doc.Find("[data-shop-name]").First().AttrOr("data-shop-name", ""))

	var listings []entity.RetailListing
	doc.Find(".product-card").Each(func(i int, card *goquery.Selection) {
		productID := strings.TrimSpace(card.AttrOr("data-product-id", ""))
		if productID == "" {
			slog.Debug("skipping product card without id", slog.Int("index", i))
			return
		}

		name := strings.TrimSpace(card.Find(".product-name").Text())
		if name == "" {
			slog.Debug("skipping product card without name",
				slog.Int("index", i),
				slog.String("product_id", productID))
			return
		}

		priceCents, err := currency.ParseCents(card.Find(".product-price").Text())
		if err != nil {
			slog.Debug("skipping product card with unparseable price",
				slog.Int("index", i),
				slog.String("product_id", productID))
			return
		}

		listings = append(listings, entity.RetailListing{
			ProductID:  productID,
			Name:       name,
			PriceCents: priceCents,
			SoldCount:  parseSoldCount(card.Find(".product-sold").Text()),
			ShopName:   shopName,
			SourceURL:  sourceURL,
		})
	})

	if len(listings) == 0 {
		return nil, &ParseError{
			Source: entity.SourceRetailListing, URL: sourceURL,
			Message: "no product cards found (.product-card)",
		}
	}

	return listings, nil
}

// parseSoldCount parses the retailer's abbreviated sold counts; "1.2k" means
// 1200. Missing or unparseable blurbs count as zero, never as an error.
func parseSoldCount(s string) int {
	match := soldCountPattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return 0
	}

	n, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if match[2] != "" {
		n *= 1000
	}
	return int(n)
}
