package text

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Navigation and footer lines the ruling site repeats on every page.
	boilerplateRe = regexp.MustCompile(`(?mi)^\s*(?:skip to main content|print this ruling|back to search results|an official website of the united states government|here's how you know)\s*$`)
)

// CollapseWhitespace trims s and folds every whitespace run into one space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// CleanBody strips site chrome from extracted page text and normalizes
// whitespace line by line, dropping empty lines.
func CleanBody(s string) string {
	s = boilerplateRe.ReplaceAllString(s, "")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = CollapseWhitespace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
