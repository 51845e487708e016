// Package alert derives the live hazard signal from transcript text.
package alert

import "strings"

// DefaultKeywords trigger a hazard when none are configured.
var DefaultKeywords = []string{"mould", "mold", "spoil", "fuzzy"}

// Classifier flags transcript fragments that mention spoilage. The result is
// computed per fragment and never carried over to the next one.
type Classifier struct {
	keywords []string
}

// New returns a classifier for the given keywords. Keywords are matched
// case-insensitively as substrings, so "spoil" also matches "spoiled".
func New(keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	c := &Classifier{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	return c
}

// Classify reports whether text contains at least one keyword.
func (c *Classifier) Classify(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Matches returns the keywords found in text, in configuration order.
func (c *Classifier) Matches(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			found = append(found, k)
		}
	}
	return found
}
