package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// containerClasses is the priority-ordered list of article container class
// names seen across Chinese article platforms and common news sites.
var containerClasses = []string{
	"mp-article",
	"rich_media_content",
	"article-content",
	"article-body",
	"article__body",
	"article__content",
	"post-content",
	"post-body",
	"entry-content",
	"content-article",
	"news-content",
	"detail-content",
	"main-content",
}

// noiseLineRe matches platform chrome that leaks into extracted text:
// reaction counters, share buttons, edit notices.
var noiseLineRe = regexp.MustCompile(
	`^(删除|阅读\s*\d+|收藏(TA)?|投诉|需扫码.*|文章后点击.*|该内容使用了AI.*|` +
		`文章由.+编辑制作|.*工作版$|赞\s*\d*|评论\s*\d*|转发\s*\d*|分享|举报|` +
		`扫码在手机上打开|点击更新提醒|创建于.+|发布于.+)$`)

// cdnTransformRe strips image-CDN transform suffixes so the original file
// is fetched.
var (
	cdnTplvRe   = regexp.MustCompile(`~tplv-[^\s"')]+`)
	cdnResizeRe = regexp.MustCompile(`[@!_][0-9]+[xwh][^\s"')]*$`)
	cssURLRe    = regexp.MustCompile(`url\(["']?(https?://[^"')\s]+)["']?\)`)
)

var genericImageFilters = []string{
	"logo", "icon", "avatar", "banner", "qrcode", "wechat", "/user/",
}

// minArticleRunes is the threshold below which an extraction is considered
// failed rather than a very short article.
const minArticleRunes = 100

// Generic fetches article content from arbitrary news/blog URLs by
// locating a known article container and filtering platform noise.
type Generic struct {
	client *Client
	logger *slog.Logger
}

func NewGeneric(client *Client, logger *slog.Logger) *Generic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generic{client: client, logger: logger.With("fetcher", "generic")}
}

func (g *Generic) Fetch(ctx context.Context, pageURL string) (*Article, error) {
	body, err := g.client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("generic fetch: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("generic: bad url: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generic parse: %w", err)
	}
	removeByTag(doc, atom.Script, atom.Style, atom.Nav, atom.Header, atom.Footer,
		atom.Button, atom.Iframe, atom.Noscript)

	var title string
	if h1 := findByTag(doc, atom.H1); h1 != nil {
		title = strings.Join(textLines(h1), " ")
	}
	if title == "" {
		if t := findByTag(doc, atom.Title); t != nil {
			title = strings.Join(textLines(t), " ")
		}
	}

	container := g.findContainer(doc)
	if container == nil {
		return nil, fmt.Errorf("generic: %w", ErrNoContent)
	}

	paragraphs := cleanLines(textLines(container))
	if runeLen(strings.Join(paragraphs, "\n")) < minArticleRunes {
		return nil, fmt.Errorf("generic: %w", ErrNoContent)
	}

	images := g.collectImages(doc, base)

	g.logger.Info("fetched article", "url", pageURL, "title", title,
		"paragraphs", len(paragraphs), "images", len(images))
	return &Article{
		Title:   title,
		Text:    strings.Join(paragraphs, "\n\n"),
		RawHTML: previewHTML(title, paragraphs),
		Images:  images,
	}, nil
}

func (g *Generic) findContainer(doc *html.Node) *html.Node {
	for _, cls := range containerClasses {
		if n := findByClass(doc, cls); n != nil {
			return n
		}
	}
	if n := findByTag(doc, atom.Article); n != nil {
		return n
	}
	return findByTag(doc, atom.Main)
}

// cleanLines drops short fragments and platform noise, then collapses
// adjacent duplicates (sticky headers repeat text inside containers).
func cleanLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if runeLen(line) < 5 || noiseLineRe.MatchString(line) {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == line {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (g *Generic) collectImages(doc *html.Node, base *url.URL) []string {
	var images []string
	seen := make(map[string]bool)
	add := func(raw string) {
		src := normalizeImageURL(base, raw)
		if src != "" && !seen[src] {
			seen[src] = true
			images = append(images, src)
		}
	}

	for _, img := range collectImgs(doc) {
		add(imgSrc(img))
	}
	// Some platforms deliver article images as CSS backgrounds.
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if style := attrValue(n, "style"); style != "" {
				for _, m := range cssURLRe.FindAllStringSubmatch(style, -1) {
					add(m[1])
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return images
}

// normalizeImageURL strips CDN transform suffixes, rejects placeholders
// and decorative assets, and resolves relative paths.
func normalizeImageURL(base *url.URL, src string) string {
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	src = cdnTplvRe.ReplaceAllString(src, "")
	src = cdnResizeRe.ReplaceAllString(src, "")
	lower := strings.ToLower(src)
	// GIFs on these platforms are almost always lazy-load placeholders.
	if strings.HasSuffix(lower, ".gif") || strings.Contains(lower, ".gif?") {
		return ""
	}
	if containsAny(src, genericImageFilters) {
		return ""
	}
	return absolutize(base, src)
}

func previewHTML(title string, paragraphs []string) string {
	var sb strings.Builder
	sb.WriteString("<article>")
	if title != "" {
		sb.WriteString("<h1>" + html.EscapeString(title) + "</h1>")
	}
	for _, p := range paragraphs {
		sb.WriteString("<p>" + html.EscapeString(p) + "</p>")
	}
	sb.WriteString("</article>")
	return sanitizeHTML(sb.String())
}

func runeLen(s string) int {
	return len([]rune(s))
}
