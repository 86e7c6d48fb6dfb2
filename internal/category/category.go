package category

import "strings"

// General is assigned when no rule matches.
const General = "General"

// Rule maps a product label to the substrings that select it.
type Rule struct {
	Label    string
	Keywords []string
}

// Rules are evaluated in order; the first rule with any keyword contained in
// the lowercased input wins. Ingestion and search share this table.
var Rules = []Rule{
	{Label: "Footwear", Keywords: []string{"shoe", "footwear", "sneaker", "boot", "sandal", "sole"}},
	{Label: "Wearables", Keywords: []string{"watch", "wearable", "fitness tracker", "smartwatch"}},
	{Label: "Electronics", Keywords: []string{"earbud", "headphone", "laptop", "computer", "electronic"}},
	{Label: "Bags", Keywords: []string{"bag", "backpack", "luggage", "duffel", "case"}},
	{Label: "Apparel", Keywords: []string{"shirt", "short", "apparel", "clothing", "bra", "sock"}},
	{Label: "Sports Equipment", Keywords: []string{"dumbbell", "equipment", "resistance", "skate", "sports"}},
}

// Detect returns the label of the first matching rule, or General.
func Detect(text string) string {
	lower := strings.ToLower(text)
	for _, r := range Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Label
			}
		}
	}
	return General
}

// Labels lists every label Detect can return, General last.
func Labels() []string {
	out := make([]string, 0, len(Rules)+1)
	for _, r := range Rules {
		out = append(out, r.Label)
	}
	return append(out, General)
}

// Valid reports whether label is one of Labels, ignoring case.
func Valid(label string) bool {
	for _, l := range Labels() {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Normalize maps label onto its canonical spelling. Unknown labels are
// returned unchanged.
func Normalize(label string) string {
	for _, l := range Labels() {
		if strings.EqualFold(l, label) {
			return l
		}
	}
	return label
}
