// Package parser turns fetched page bodies into typed records.
//
// Every parser is a pure function from (body, url) to a record; no parser
// performs I/O. Two failure shapes matter downstream: *ParseError means the
// page did not match its expected contract and the fetch is worth retrying,
// while *SetNotFoundError means the source affirmatively answered that the
// item does not exist, which is a terminal outcome.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"brickwatch/internal/domain/entity"
)

// ParseError reports a page whose shape did not match the expected contract.
type ParseError struct {
	Source  entity.Source
	URL     string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s page %s: %s: %v", e.Source, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("parse %s page %s: %s", e.Source, e.URL, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Retryable marks parse failures for the retry loop: markup served to a bot
// is often partially rendered, and a later attempt sees the real page.
func (e *ParseError) Retryable() bool {
	return true
}

// SetNotFoundError reports that the source answered "no such item". The
// caller records the identifier with a long re-check horizon instead of
// retrying.
type SetNotFoundError struct {
	Source     entity.Source
	Identifier string
}

func (e *SetNotFoundError) Error() string {
	return fmt.Sprintf("%s reports no item %q", e.Source, e.Identifier)
}

func (e *SetNotFoundError) Retryable() bool {
	return false
}

// IsSetNotFound reports whether err carries a parser's not-found signal.
func IsSetNotFound(err error) bool {
	var notFound *SetNotFoundError
	return errors.As(err, &notFound)
}

// parseCount parses a human-formatted integer like "7,541".
func parseCount(s string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, errors.New("empty count")
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parseCount: %w", err)
	}
	return n, nil
}

// resolveURL makes href absolute against the page it appeared on. An href
// that is already absolute comes back unchanged.
func resolveURL(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// normalizeStatus maps display text like "Retiring Soon" onto the stored
// form "retiring_soon".
func normalizeStatus(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
