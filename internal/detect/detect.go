// Package detect holds the URL and text heuristics shared by the navigation
// monitor's pre-filter and the page classifier.
package detect

import (
	"net/url"
	"regexp"
	"strings"
)

// checkoutPath is the authoritative URL substring; a hit here makes the URL
// decision positive on its own.
const checkoutPath = "/checkout"

// eligibilityPatterns widen the pre-filter beyond /checkout so pages that
// only reveal themselves through their DOM still get a classifier injected.
var eligibilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`cart`),
	regexp.MustCompile(`payment`),
	regexp.MustCompile(`billing`),
	regexp.MustCompile(`shipping`),
	regexp.MustCompile(`place[-_ ]?order`),
	regexp.MustCompile(`confirm`),
	regexp.MustCompile(`order[-_ ]?summary`),
}

// TextHeuristics are matched against the page's visible text, in order.
// Matched entries are reported by their pattern source.
var TextHeuristics = []*regexp.Regexp{
	regexp.MustCompile(`checkout`),
	regexp.MustCompile(`payment`),
	regexp.MustCompile(`billing`),
	regexp.MustCompile(`shipping`),
	regexp.MustCompile(`place[-_ ]?order`),
	regexp.MustCompile(`order[-_ ]?summary`),
	regexp.MustCompile(`proceed to checkout`),
	regexp.MustCompile(`pay now`),
}

// ButtonIntent filters interactive-element labels down to checkout intent.
var ButtonIntent = regexp.MustCompile(`(pay|place order|checkout|continue to payment|buy now|proceed to checkout)`)

// Eligible is the cheap URL-only pre-filter deciding whether a classifier is
// injected at all. Malformed URLs are ineligible, never an error.
func Eligible(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	// Match on the decoded form so "place%20order" and "place order" are the
	// same page.
	query, err := url.QueryUnescape(u.RawQuery)
	if err != nil {
		query = u.RawQuery
	}
	pathAndQuery := strings.ToLower(u.Path + "?" + query)
	if strings.Contains(pathAndQuery, checkoutPath) {
		return true
	}
	for _, re := range eligibilityPatterns {
		if re.MatchString(pathAndQuery) {
			return true
		}
	}
	return false
}

// URLMatch is the authoritative URL decision inside an injected page: the
// lowercased URL contains the checkout path.
func URLMatch(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), checkoutPath)
}
