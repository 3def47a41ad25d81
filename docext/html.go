package docext

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "style" {
			for _, pat := range hiddenStylePatterns {
				if pat.MatchString(a.Val) {
					return true
				}
			}
		}
	}
	return false
}

// isFragmentAnchor reports whether n is an in-page anchor link
// (<a href="#...">). Those carry navigation labels, not content.
func isFragmentAnchor(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.A {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "href" {
			return strings.HasPrefix(a.Val, "#")
		}
	}
	return false
}

// extractHTML parses data and returns the page title and its visible text
// in document order, whitespace-normalized. Boilerplate containers
// (script, style, noscript, nav, header, footer, aside), hidden elements,
// and in-page anchors are dropped.
func extractHTML(data []byte) (string, string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	title := findTitle(doc)
	if title == "" {
		title = findFirstHeading(doc)
	}

	var sb strings.Builder
	collectText(doc, &sb)
	return title, normalizeWhitespace(sb.String()), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findFirstHeading(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.H1 {
		var sb strings.Builder
		collectText(n, &sb)
		return normalizeWhitespace(sb.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findFirstHeading(c); t != "" {
			return t
		}
	}
	return ""
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(text)
		}
		return
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header, atom.Aside:
			return
		}
		if hasHiddenStyle(n) || isFragmentAnchor(n) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
