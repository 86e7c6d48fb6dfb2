package cbp

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/eratner15/tariff-engineer/internal/text"
)

// contentClasses mark the element holding the ruling text, best first.
var contentClasses = []string{"ruling-content", "ruling-text", "content"}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Table: true, atom.Pre: true,
}

// ParseHTML extracts the visible ruling text and its paragraphs from a page.
// The body comes from the most specific content container present, falling
// back to the whole document.
func ParseHTML(r io.Reader) (text.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return text.Document{}, err
	}

	container := findContainer(root)
	if container == nil {
		container = root
	}

	var b strings.Builder
	renderText(container, &b)

	var paragraphs []string
	collectParagraphs(root, &paragraphs)

	return text.Document{
		Body:       text.CleanBody(b.String()),
		Paragraphs: paragraphs,
	}, nil
}

func findContainer(root *html.Node) *html.Node {
	for _, class := range contentClasses {
		if n := findFirst(root, func(n *html.Node) bool { return hasClass(n, class) }); n != nil {
			return n
		}
	}
	return findFirst(root, func(n *html.Node) bool { return n.DataAtom == atom.Main })
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func renderText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderText(c, b)
	}
	if n.Type == html.ElementNode && blocks[n.DataAtom] {
		b.WriteByte('\n')
	}
}

func collectParagraphs(n *html.Node, out *[]string) {
	if n.Type == html.ElementNode {
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.P {
			var b strings.Builder
			renderText(n, &b)
			if p := text.CollapseWhitespace(b.String()); p != "" {
				*out = append(*out, p)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectParagraphs(c, out)
	}
}
