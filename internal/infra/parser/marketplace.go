package parser

import (
	"bytes"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"brickwatch/internal/domain/entity"
	"brickwatch/pkg/currency"
)

// guidePeriodMonths is the window the marketplace price guide aggregates
// over; sales volumes are stored against it.
const guidePeriodMonths = 6

// ParseMarketplacePage extracts the price guide from a marketplace item page.
//
// The page carries the item header (#item-name, #item-no), a price-guide
// table with one row per condition, and the catalog image. Prices are parsed
// to integer cents; a "-" or empty price cell means the condition had no
// sales and yields a nil field rather than an error.
func ParseMarketplacePage(body []byte, pageURL string) (*entity.MarketplaceRecord, []entity.SalesVolume, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ParseError{
			Source: entity.SourceMarketplace, URL: pageURL,
			Message: "invalid HTML", Err: err,
		}
	}

	name := strings.TrimSpace(doc.Find("#item-name").First().Text())
	if name == "" {
		return nil, nil, &ParseError{
			Source: entity.SourceMarketplace, URL: pageURL,
			Message: "item name missing (#item-name)",
		}
	}

	itemID := strings.TrimSpace(doc.Find("#item-no").First().Text())
	if itemID == "" {
		return nil, nil, &ParseError{
			Source: entity.SourceMarketplace, URL: pageURL,
			Message: "item number missing (#item-no)",
		}
	}

	record := &entity.MarketplaceRecord{
		ItemID:   itemID,
		ItemType: itemTypeFromURL(pageURL),
		Name:     name,
		ImageURL: strings.TrimSpace(doc.Find("#item-image").First().AttrOr("src", "")),
		IsActive: true,
	}

	var volumes []entity.SalesVolume
	var rowErr error
	doc.Find(".price-guide .pg-row").Each(func(i int, row *goquery.Selection) {
		if rowErr != nil {
			return
		}

		condition := strings.ToLower(strings.TrimSpace(row.AttrOr("data-condition", "")))
		if condition != "new" && condition != "used" {
			slog.Debug("skipping price-guide row with unknown condition",
				slog.Int("index", i),
				slog.String("condition", condition))
			return
		}

		minCents, err := parsePriceCell(row.Find(".pg-min").Text())
		if err != nil {
			rowErr = &ParseError{
				Source: entity.SourceMarketplace, URL: pageURL,
				Message: "bad min price for " + condition, Err: err,
			}
			return
		}
		avgCents, err := parsePriceCell(row.Find(".pg-avg").Text())
		if err != nil {
			rowErr = &ParseError{
				Source: entity.SourceMarketplace, URL: pageURL,
				Message: "bad avg price for " + condition, Err: err,
			}
			return
		}
		maxCents, err := parsePriceCell(row.Find(".pg-max").Text())
		if err != nil {
			rowErr = &ParseError{
				Source: entity.SourceMarketplace, URL: pageURL,
				Message: "bad max price for " + condition, Err: err,
			}
			return
		}

		if condition == "new" {
			record.NewMinCents, record.NewAvgCents, record.NewMaxCents = minCents, avgCents, maxCents
		} else {
			record.UsedMinCents, record.UsedAvgCents, record.UsedMaxCents = minCents, avgCents, maxCents
		}

		timesSold, err := parseCount(row.Find(".pg-times-sold").Text())
		if err != nil {
			slog.Debug("skipping volume bucket with unparseable times-sold",
				slog.String("item_id", itemID),
				slog.String("condition", condition))
			return
		}
		totalQty, err := parseCount(row.Find(".pg-total-qty").Text())
		if err != nil {
			slog.Debug("skipping volume bucket with unparseable total-qty",
				slog.String("item_id", itemID),
				slog.String("condition", condition))
			return
		}

		volumes = append(volumes, entity.SalesVolume{
			ItemID:       itemID,
			Condition:    condition,
			TimesSold:    timesSold,
			TotalQty:     totalQty,
			PeriodMonths: guidePeriodMonths,
		})
	})
	if rowErr != nil {
		return nil, nil, rowErr
	}

	return record, volumes, nil
}

// parsePriceCell parses one price-guide cell. Empty and "-" cells mean the
// condition had no recorded sales.
func parsePriceCell(s string) (*int64, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" || cleaned == "-" {
		return nil, nil
	}
	cents, err := currency.ParseCents(cleaned)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

// itemTypeFromURL reads the catalog item kind off the page URL's query; item
// pages address items as catalogitem.page?S=75192-1, ?M=sw0547, and so on.
func itemTypeFromURL(pageURL string) entity.ItemType {
	u, err := url.Parse(pageURL)
	if err != nil {
		return entity.ItemTypeSet
	}
	query := u.Query()
	for _, t := range []entity.ItemType{entity.ItemTypeSet, entity.ItemTypeMinifig, entity.ItemTypeBook, entity.ItemTypeGear} {
		if query.Has(string(t)) {
			return t
		}
	}
	return entity.ItemTypeSet
}
