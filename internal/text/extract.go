package text

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrNotRulingDocument is returned when a fetched body is too short or carries
// no tariff codes. Such pages are skipped, not stored.
var ErrNotRulingDocument = errors.New("not a ruling document")

const (
	MinContentLength        = 100
	MaxDescriptionLength    = 2000
	MaxClassificationLength = 1000
	MaxRationaleLength      = 5000
	DefaultKeywordLimit     = 20

	minDescriptionParagraph = 50
	maxDescriptionParagraph = 500
)

var (
	htsCodeRe      = regexp.MustCompile(`\b\d{4}\.\d{2}(?:\.\d{2,4})?\b`)
	htsCodeExactRe = regexp.MustCompile(`^\d{4}\.\d{2}(?:\.\d{2,4})?$`)

	issueDateRe = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})\b`)

	classificationRe = regexp.MustCompile(`(?i)(?:classified|classifiable|proper classification)[^.]{0,200}(\d{4}\.\d{2}\.\d{2,4})[^.]{0,100}`)

	descriptionMarkers = []string{"classification", "merchandise", "article", "product"}
)

// Document is the raw material handed to the extractor: the visible text of a
// ruling page plus its paragraph elements in document order.
type Document struct {
	Body       string
	Paragraphs []string
}

// Fields holds everything the extractor derives from a Document.
type Fields struct {
	HTSCodes              []string
	IssueDate             *time.Time
	ProductDescription    string
	ClassificationSnippet string
	Rationale             string
	Keywords              []string
}

// Extract runs every field extractor over doc. Bodies shorter than
// MinContentLength or without a single tariff code are rejected with
// ErrNotRulingDocument.
func Extract(doc Document) (Fields, error) {
	body := strings.TrimSpace(doc.Body)
	if len([]rune(body)) < MinContentLength {
		return Fields{}, ErrNotRulingDocument
	}

	codes := ExtractHTSCodes(body)
	if len(codes) == 0 {
		return Fields{}, ErrNotRulingDocument
	}

	desc, classification := ExtractDescriptionAndClassification(doc.Paragraphs)
	if classification == "" {
		classification = ExtractClassification(body)
	}

	return Fields{
		HTSCodes:              codes,
		IssueDate:             ExtractIssueDate(body),
		ProductDescription:    desc,
		ClassificationSnippet: classification,
		Rationale:             Truncate(body, MaxRationaleLength),
		Keywords:              ExtractKeywords(body, DefaultKeywordLimit),
	}, nil
}

// ExtractHTSCodes returns the distinct tariff codes found in s, in order of
// first appearance.
func ExtractHTSCodes(s string) []string {
	matches := htsCodeRe.FindAllString(s, -1)
	seen := make(map[string]struct{}, len(matches))
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		if !ValidHTSCode(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		codes = append(codes, m)
	}
	return codes
}

// ValidHTSCode reports whether code is a dotted tariff number such as
// "6404.19" or "6404.19.90".
func ValidHTSCode(code string) bool {
	return htsCodeExactRe.MatchString(code)
}

// ExtractIssueDate parses the first long-form date ("March 15, 2023") in s.
// A first match that does not name a real calendar day yields nil.
func ExtractIssueDate(s string) *time.Time {
	m := issueDateRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	t, err := time.Parse("January 2 2006", m[1]+" "+m[2]+" "+m[3])
	if err != nil {
		return nil
	}
	return &t
}

// ExtractDescriptionAndClassification picks the product description from the
// first paragraph of plausible length that talks about the goods, falling back
// to the first paragraph, and the classification snippet from the sentence
// that names the heading.
func ExtractDescriptionAndClassification(paragraphs []string) (string, string) {
	var desc string
	for _, p := range paragraphs {
		p = CollapseWhitespace(p)
		n := len([]rune(p))
		if n <= minDescriptionParagraph || n >= maxDescriptionParagraph {
			continue
		}
		lower := strings.ToLower(p)
		for _, marker := range descriptionMarkers {
			if strings.Contains(lower, marker) {
				desc = p
				break
			}
		}
		if desc != "" {
			break
		}
	}
	if desc == "" && len(paragraphs) > 0 {
		desc = CollapseWhitespace(paragraphs[0])
	}

	return Truncate(desc, MaxDescriptionLength), ExtractClassification(strings.Join(paragraphs, "\n"))
}

// ExtractClassification returns the first "classified ... under 0000.00.00"
// window in s, or "" when none is present.
func ExtractClassification(s string) string {
	m := classificationRe.FindString(s)
	if m == "" {
		return ""
	}
	return Truncate(CollapseWhitespace(m), MaxClassificationLength)
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
