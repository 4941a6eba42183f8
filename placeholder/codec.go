// Package placeholder implements the codec between rich editor HTML and the
// compact storage format: markdown text with [[IMG_n]] tokens plus a media
// map from token to URL.
//
// The four operations are pure transforms with no I/O:
//
//	EncodeFromRaw  ingestion text + ordered media  → storage text + map
//	Decode         storage text + map              → editor HTML (recoverable data-id)
//	Encode         editor HTML + previous map      → storage text + merged map
//	RenderFinal    storage text + map              → publishable HTML (no tokens, no data-id)
//
// Decode/Encode round-trips preserve the placeholder set; Encode additionally
// merges back map entries the editor lost but the text still references.
package placeholder

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/yuin/goldmark"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Media is one ordered media item extracted during ingestion.
type Media struct {
	URL      string
	Filename string // original attachment filename, if known
}

// Codec converts between rich content and the storage format. Safe for
// concurrent use; both underlying converters are stateless per call.
type Codec struct {
	md   goldmark.Markdown
	conv *converter.Converter
}

// NewCodec creates a Codec.
func NewCodec() *Codec {
	return &Codec{
		// Unsafe raw HTML is required: preserved <video> blocks pass
		// through the markdown renderer verbatim.
		md: goldmark.New(
			goldmark.WithRendererOptions(ghtml.WithUnsafe()),
		),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

var (
	legacyImgRe   = regexp.MustCompile(`!\[图片(\d+)\]\([^)]*\)`)
	excessBlankRe = regexp.MustCompile(`\n{3,}`)
	emptyParaRe   = regexp.MustCompile(`<p>(?:\s|<br\s*/?>)*</p>`)
	imgSentinelRe = regexp.MustCompile(`@@IMG(\d+)@@`)
	// The markdown converter escapes bracket syntax in literal text; tokens
	// that travelled through the editor as plain text come back with some
	// characters backslash-escaped (v2.5.0 produces \[\[IMG\_7]], leaving
	// the closing brackets alone). Every escape is optional here so any
	// mix restores to the canonical token.
	escapedTokenRe = regexp.MustCompile(`\\?\[\\?\[IMG\\?_(\d+)\\?\]\\?\]`)
	headingRe     = regexp.MustCompile(`^#{1,6} `)
)

// EncodeFromRaw converts ingestion-stage raw text into storage format. Each
// media item gets the sequential token for its position; recognised inline
// markers (the legacy "![图片N](...)" syntax, or a markdown image pointing at
// the original filename) are replaced in place. Inline [[IMG_n]] markers
// already emitted by document extraction are left as-is and simply gain a
// map entry.
func EncodeFromRaw(raw string, media []Media) (string, Map) {
	text := raw
	m := make(Map, len(media))

	for i, item := range media {
		idx := i + 1
		tok := Token(idx)
		m[tok] = item.URL

		re := regexp.MustCompile(fmt.Sprintf(`!\[图片%d\]\([^)]*\)`, idx))
		text = re.ReplaceAllString(text, tok)

		if item.Filename != "" {
			re := regexp.MustCompile(`!\[[^\]]*\]\(` + regexp.QuoteMeta(item.Filename) + `\)`)
			text = re.ReplaceAllString(text, tok)
		}
	}

	return strings.TrimSpace(text), m
}

// Decode hydrates storage text into editor HTML. Placeholders become <img>
// embeds carrying their token in data-id so Encode can recover them; the
// markdown structure is rendered to HTML with light normalization (legacy
// inline markers upgraded, runs of blank lines collapsed, empty paragraphs
// removed). Tokens with no map entry are left as literal text so a later
// Encode can still restore them from the previous map.
func (c *Codec) Decode(text string, m Map) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	out, err := c.renderMarkdown(text)
	if err != nil {
		return "", err
	}

	for _, tok := range sortedTokens(m) {
		embed := fmt.Sprintf(
			`<img src="%s" data-id="%s" alt="" style="max-width:100%%; height:auto;" />`,
			html.EscapeString(m[tok]), tok)
		out = strings.ReplaceAll(out, tok, embed)
	}

	return out, nil
}

// Encode dehydrates editor HTML back into storage format. Embeds carrying a
// data-id keep their token (with their current URL — covering the case the
// user changed nothing); embeds without one are newly inserted media and get
// the next unused index, counting indices in prev so a token is never reused
// for different media. <video> blocks are preserved verbatim (controls
// enforced). Finally, prev entries whose token still occurs in the produced
// text but was not captured above are merged back in.
func (c *Codec) Encode(richHTML string, prev Map) (string, Map, error) {
	if strings.TrimSpace(richHTML) == "" {
		return "", Map{}, nil
	}

	doc, err := html.Parse(strings.NewReader(richHTML))
	if err != nil {
		return "", nil, fmt.Errorf("parse editor html: %w", err)
	}
	body := findNode(doc, atom.Body)
	if body == nil {
		body = doc
	}

	next := make(Map)

	for _, img := range collectNodes(body, atom.Img) {
		src := attrValue(img, "src")
		tok := attrValue(img, "data-id")
		switch {
		case Index(tok) > 0:
			next[tok] = src
		case src != "":
			tok = Token(NextIndex(prev, next))
			next[tok] = src
		default:
			removeNode(img)
			continue
		}
		replaceWithText(img, fmt.Sprintf("@@IMG%d@@", Index(tok)))
	}

	var videoBlocks []string
	for _, video := range collectNodes(body, atom.Video) {
		setAttr(video, "controls", "")
		videoBlocks = append(videoBlocks, renderNode(video))
		replaceWithText(video, fmt.Sprintf("@@VIDEO%d@@", len(videoBlocks)))
	}

	md, err := c.conv.ConvertString(renderChildren(body))
	if err != nil {
		return "", nil, fmt.Errorf("html to markdown: %w", err)
	}

	md = imgSentinelRe.ReplaceAllString(md, "[[IMG_$1]]")
	md = escapedTokenRe.ReplaceAllString(md, "[[IMG_$1]]")
	for i, block := range videoBlocks {
		md = strings.ReplaceAll(md, fmt.Sprintf("@@VIDEO%d@@", i+1), "\n\n"+block+"\n\n")
	}

	md = strings.TrimSpace(excessBlankRe.ReplaceAllString(md, "\n\n"))

	return md, Merge(prev, next, md), nil
}

// RenderFinal renders storage text for publication: the same substitution as
// Decode but with plain <img> tags (no data-id — publish targets must not
// see internal identifiers). Tokens without a map entry are stripped rather
// than leaked.
func (c *Codec) RenderFinal(text string, m Map) (string, error) {
	out, err := c.renderMarkdown(text)
	if err != nil {
		return "", err
	}

	for _, tok := range sortedTokens(m) {
		embed := fmt.Sprintf(
			`<img src="%s" alt="" style="max-width:100%%; height:auto;" />`,
			html.EscapeString(m[tok]))
		out = strings.ReplaceAll(out, tok, embed)
	}
	out = tokenRe.ReplaceAllString(out, "")

	return ensureVideoControls(out), nil
}

// renderMarkdown normalizes storage text and renders it to HTML.
func (c *Codec) renderMarkdown(text string) (string, error) {
	text = legacyImgRe.ReplaceAllString(text, "[[IMG_$1]]")
	text = excessBlankRe.ReplaceAllString(text, "\n\n")
	text = padHeadings(text)

	var buf bytes.Buffer
	if err := c.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	return strings.TrimSpace(emptyParaRe.ReplaceAllString(buf.String(), "")), nil
}

// padHeadings inserts a blank line after heading lines that run straight
// into body text, which language-model output tends to produce.
func padHeadings(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for i, line := range lines {
		out = append(out, line)
		if headingRe.MatchString(line) && i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

// ensureVideoControls guarantees every <video> element in an HTML fragment
// carries the controls attribute. Publish targets render raw <video> tags
// and without controls the player is invisible.
func ensureVideoControls(fragment string) string {
	if !strings.Contains(fragment, "<video") {
		return fragment
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	body := findNode(doc, atom.Body)
	if body == nil {
		return fragment
	}
	for _, video := range collectNodes(body, atom.Video) {
		setAttr(video, "controls", "")
	}
	return renderChildren(body)
}

func sortedTokens(m Map) []string {
	toks := make([]string, 0, len(m))
	for tok := range m {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool { return Index(toks[i]) < Index(toks[j]) })
	return toks
}

func findNode(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, a); found != nil {
			return found
		}
	}
	return nil
}

// collectNodes gathers matching elements before any mutation; replacing
// nodes mid-walk would skip siblings.
func collectNodes(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func replaceWithText(n *html.Node, text string) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, n)
	parent.RemoveChild(n)
}

func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	html.Render(&buf, n)
	return buf.String()
}

func renderChildren(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&buf, c)
	}
	return buf.String()
}
