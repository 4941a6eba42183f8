// Package webfetch retrieves article content from submitted URLs. Each
// supported platform has its own fetcher; all of them produce the same
// Article shape: a title, paragraph text, a sanitized HTML preview, and
// the article's image URLs in appearance order.
package webfetch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoContent is returned when a page yields no usable article body.
var ErrNoContent = errors.New("webfetch: no article content found")

// Article is the outcome of fetching one submitted URL.
type Article struct {
	Title string
	// Text is the article prose. Paragraphs are newline-separated; the
	// weixin fetcher additionally leaves inline image markers the
	// placeholder codec consumes.
	Text string
	// RawHTML is a sanitized article container for preview rendering.
	RawHTML string
	// Images are absolute image URLs in appearance order.
	Images []string
}

// Fetcher retrieves one article.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Article, error)
}

var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	// Platform previews depend on inline styles and lazy-load attributes.
	p.AllowAttrs("style").Globally()
	p.AllowAttrs("data-src").OnElements("img")
	return p
}()

func sanitizeHTML(s string) string {
	return sanitizer.Sanitize(s)
}

// findByClass returns the first element carrying class as one of its
// class tokens.
func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key != "class" {
				continue
			}
			for _, tok := range strings.Fields(a.Val) {
				if tok == class {
					return n
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func findByTag(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByTag(c, a); found != nil {
			return found
		}
	}
	return nil
}

// removeByTag detaches all elements with the given tags from the subtree.
func removeByTag(n *html.Node, tags ...atom.Atom) {
	set := make(map[atom.Atom]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		c := n.FirstChild
		for c != nil {
			next := c.NextSibling
			if c.Type == html.ElementNode && set[c.DataAtom] {
				n.RemoveChild(c)
			} else {
				walk(c)
			}
			c = next
		}
	}
	walk(n)
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// textLines walks a subtree and returns each text fragment as its own
// trimmed line, skipping script and style content.
func textLines(n *html.Node) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return lines
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// imgSrc returns the best source attribute of an img node: lazy-load
// attributes first since platforms leave src pointing at placeholders.
func imgSrc(n *html.Node) string {
	for _, key := range []string{"data-src", "data-original", "data-lazy-src", "src"} {
		if v := attrValue(n, key); v != "" {
			return v
		}
	}
	return ""
}

// collectImgs returns all img nodes in document order.
func collectImgs(n *html.Node) []*html.Node {
	var imgs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			imgs = append(imgs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return imgs
}

// absolutize resolves src against base, handling protocol-relative URLs.
func absolutize(base *url.URL, src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

// containsAny reports whether s (lowercased) contains any of the markers.
func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return ""
		}
	}
	return sb.String()
}
