package parse

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// parseHTML decodes data using its declared or sniffed charset and parses it.
func parseHTML(data []byte) (*html.Node, error) {
	enc, _, _ := charset.DetermineEncoding(data, "text/html")
	r := transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse: html")
	}
	return doc, nil
}

func first(n *html.Node, sel cascadia.Matcher) *html.Node {
	return cascadia.Query(n, sel)
}

func all(n *html.Node, sel cascadia.Matcher) []*html.Node {
	return cascadia.QueryAll(n, sel)
}

func attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

// rawText concatenates every text node under n, preserving whitespace.
func rawText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// text returns the whitespace-collapsed text under n.
func text(n *html.Node) string {
	return collapse(rawText(n))
}

// ownText returns the collapsed text of n's direct text children only.
func ownText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}

// textWithout returns the collapsed text under n, skipping subtrees matched
// by skip.
func textWithout(n *html.Node, skip cascadia.Matcher) string {
	if n == nil {
		return ""
	}
	drop := map[*html.Node]bool{}
	for _, m := range all(n, skip) {
		drop[m] = true
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if drop[n] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

func nextElement(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
