package parser

import (
	"encoding/json"
	"strings"
	"time"

	"brickwatch/internal/domain/entity"
)

// redditListing mirrors the slice of the community board's search response
// the pipeline reads.
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Permalink  string  `json:"permalink"`
				Score      int     `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// ParseRedditSearch aggregates the community board's search listing for one
// set number: how many posts mention it, when the latest landed, and the
// highest-scored post.
//
// Zero posts is a legitimate answer for a set nobody discusses, so it yields
// a record with MentionCount 0 rather than a not-found signal.
func ParseRedditSearch(body []byte, pageURL, setNumber string) (*entity.RedditMention, error) {
	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &ParseError{
			Source: entity.SourceReddit, URL: pageURL,
			Message: "invalid JSON", Err: err,
		}
	}

	mention := &entity.RedditMention{
		SetNumber:    setNumber,
		MentionCount: len(listing.Data.Children),
	}

	var lastPost time.Time
	topScore := -1
	for _, child := range listing.Data.Children {
		post := child.Data

		if post.CreatedUTC > 0 {
			createdAt := time.Unix(int64(post.CreatedUTC), 0).UTC()
			if createdAt.After(lastPost) {
				lastPost = createdAt
			}
		}

		if post.Score > topScore {
			topScore = post.Score
			mention.TopPostTitle = post.Title
			mention.TopPostURL = absolutePermalink(post.Permalink)
			mention.TopPostScore = post.Score
		}
	}

	if !lastPost.IsZero() {
		mention.LastPostAt = &lastPost
	}

	return mention, nil
}

// absolutePermalink expands the board's site-relative permalinks.
func absolutePermalink(permalink string) string {
	trimmed := strings.TrimSpace(permalink)
	if trimmed == "" || strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "https://www.reddit.com" + trimmed
}
