// Package formatter turns occurrences into provider-sized notification text.
package formatter

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/newthinker/pushrelay/internal/core"
)

// Provider limits, in encoded bytes.
const (
	BaseMaximumMessageLength = 512
	MaximumTitleLength       = 250
	MaximumURLLength         = 512
)

// URLTitle is shown by the provider next to the supplementary link.
const URLTitle = "More info"

const ellipsis = " ..."

// Format builds the title, body and link for an occurrence. Sound and
// priority are left for the caller to resolve from project configuration.
func Format(occ core.Occurrence, projectName string) (core.Payload, error) {
	if occ == nil {
		return core.Payload{}, core.WrapError(core.ErrFormat, fmt.Errorf("nil occurrence"))
	}

	link := strings.TrimSpace(occ.Link())
	if err := validateLink(link); err != nil {
		return core.Payload{}, core.WrapError(core.ErrFormat, err)
	}

	payload := core.Payload{
		Title: Truncate(occ.Title(projectName), MaximumTitleLength),
		Body:  Truncate(occ.Body(), BaseMaximumMessageLength),
		URL:   link,
	}
	if link != "" {
		payload.URLTitle = URLTitle
	}

	return payload, nil
}

// Truncate bounds s to limit bytes of valid UTF-8. Oversized input is cut at
// a rune boundary and suffixed with " ...".
func Truncate(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= limit {
		return s
	}
	if limit < len(ellipsis) {
		return cutAtBoundary(s, limit)
	}
	return cutAtBoundary(s, limit-len(ellipsis)) + ellipsis
}

// cutAtBoundary returns the longest prefix of s no longer than n bytes that
// does not split a multi-byte sequence.
func cutAtBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func validateLink(link string) error {
	if link == "" {
		return nil
	}
	if len(link) > MaximumURLLength {
		return fmt.Errorf("link exceeds %d bytes", MaximumURLLength)
	}
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("parsing link: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("link must be http(s), got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("link has no host")
	}
	return nil
}
