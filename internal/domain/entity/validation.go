package entity

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

var (
	// setNumberPattern matches set numbers like "75192" or "75192-1".
	setNumberPattern = regexp.MustCompile(`^\d{3,7}(-\d+)?$`)

	// itemIDPattern matches marketplace item identifiers ("75192-1", "sw0547", ...).
	itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]{0,31}$`)
)

// ValidateSetNumber validates a set-number identifier (retirement tracker,
// metadata site and community-board queries are keyed by it).
func ValidateSetNumber(setNumber string) error {
	if setNumber == "" {
		return &ValidationError{Field: "set_number", Message: "set number is required"}
	}
	if !setNumberPattern.MatchString(setNumber) {
		return &ValidationError{
			Field:   "set_number",
			Message: fmt.Sprintf("set number %q must look like 75192 or 75192-1", setNumber),
		}
	}
	return nil
}

// ValidateItemID validates a marketplace item identifier.
func ValidateItemID(itemID string) error {
	if itemID == "" {
		return &ValidationError{Field: "item_id", Message: "item id is required"}
	}
	if !itemIDPattern.MatchString(itemID) {
		return &ValidationError{
			Field:   "item_id",
			Message: fmt.Sprintf("item id %q contains invalid characters", itemID),
		}
	}
	return nil
}

// ValidateURL validates the format and safety of a URL.
// It checks that the URL is well-formed, uses HTTP/HTTPS scheme, and has a valid host.
// It also blocks private IP addresses to prevent SSRF attacks.
// Returns a ValidationError if the URL is invalid or empty.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	// SSRF protection: block URLs that resolve to private networks.
	host := parsedURL.Hostname()
	ips, err := net.LookupIP(host)
	if err == nil && len(ips) > 0 {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return &ValidationError{
					Field:   "url",
					Message: "url cannot point to private network",
				}
			}
		}
	}

	return nil
}

// isPrivateIP reports whether ip belongs to a private, loopback or link-local range.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
