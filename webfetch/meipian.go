package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var meipianBase = &url.URL{Scheme: "https", Host: "www.meipian.cn"}

// meipianImageFilters marks decorative image URLs to skip.
var meipianImageFilters = []string{
	"icon", "avatar", "badge", "member", "gift", "logo", "qrcode", "code-logo",
}

// Renderer loads a page in a real browser and returns the rendered HTML.
// Used where the static HTML misses script-injected content.
type Renderer interface {
	HTML(ctx context.Context, url string) (string, error)
}

// Meipian fetches meipian.cn articles. The first-screen HTML carries an
// SEO <article> block with title and prose, so a plain GET usually
// suffices; body images are script-rendered, so when the static pass
// finds prose but no images an optional browser Renderer fills them in.
type Meipian struct {
	client   *Client
	renderer Renderer // nil disables the browser fallback
	logger   *slog.Logger
}

func NewMeipian(client *Client, renderer Renderer, logger *slog.Logger) *Meipian {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meipian{client: client, renderer: renderer, logger: logger.With("fetcher", "meipian")}
}

func (m *Meipian) Fetch(ctx context.Context, pageURL string) (*Article, error) {
	art, staticErr := m.fetchStatic(ctx, pageURL)
	if staticErr == nil && len(art.Images) > 0 {
		return art, nil
	}

	if m.renderer == nil {
		if staticErr != nil {
			return nil, staticErr
		}
		return art, nil
	}

	rendered, err := m.fetchRendered(ctx, pageURL)
	switch {
	case staticErr == nil && err == nil:
		// Keep the static prose, take the rendered images.
		if len(rendered.Images) > 0 {
			art.Images = rendered.Images
			art.RawHTML = rendered.RawHTML
		}
		return art, nil
	case staticErr == nil:
		m.logger.Warn("browser image fill-in failed", "url", pageURL, "error", err)
		return art, nil
	case err == nil:
		return rendered, nil
	default:
		return nil, fmt.Errorf("meipian: static: %w; rendered: %v", staticErr, err)
	}
}

// fetchStatic parses the SEO article block out of the first-screen HTML.
func (m *Meipian) fetchStatic(ctx context.Context, pageURL string) (*Article, error) {
	body, err := m.client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("meipian fetch: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("meipian parse: %w", err)
	}

	article := findByTag(doc, atom.Article)
	if article == nil {
		return nil, fmt.Errorf("meipian: %w", ErrNoContent)
	}

	var title string
	if h1 := findByTag(article, atom.H1); h1 != nil {
		if a := findByTag(h1, atom.A); a != nil {
			title = strings.Join(textLines(a), " ")
		} else {
			title = strings.Join(textLines(h1), " ")
		}
	}
	if title == "" {
		if t := findByTag(doc, atom.Title); t != nil {
			title = strings.Join(textLines(t), " ")
		}
	}

	section := findByTag(article, atom.Section)
	if section == nil {
		return nil, fmt.Errorf("meipian: %w", ErrNoContent)
	}

	// The SEO block arrives entity-escaped; unescape and reparse to get
	// the real markup.
	inner, err := html.Parse(strings.NewReader(html.UnescapeString(renderChildren(section))))
	if err != nil {
		return nil, fmt.Errorf("meipian reparse: %w", err)
	}
	removeByTag(inner, atom.Script, atom.Style)

	text := strings.Join(textLines(inner), "\n")
	if len([]rune(strings.TrimSpace(text))) < 50 {
		return nil, fmt.Errorf("meipian: %w", ErrNoContent)
	}

	images := m.collectImages(inner, meipianImageFilters)

	rawHTML := sanitizeHTML(fmt.Sprintf("<article><h1>%s</h1><section>%s</section></article>",
		title, renderChildren(findByTag(inner, atom.Body))))

	m.logger.Info("fetched article", "title", title, "chars", len([]rune(text)), "images", len(images))
	return &Article{Title: title, Text: text, RawHTML: rawHTML, Images: images}, nil
}

// fetchRendered loads the page in a browser and extracts the rendered
// article container.
func (m *Meipian) fetchRendered(ctx context.Context, pageURL string) (*Article, error) {
	page, err := m.renderer.HTML(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("meipian render: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("meipian render parse: %w", err)
	}

	var title string
	if t := findByClass(doc, "caption-title-html"); t != nil {
		title = strings.Join(textLines(t), " ")
	}

	content := findByClass(doc, "mp-article-tpl")
	if content == nil {
		return nil, fmt.Errorf("meipian rendered: %w", ErrNoContent)
	}
	if t := findByClass(content, "caption-title-html"); t != nil {
		detach(t)
	}
	if s := findByClass(content, "mp-article-caption-subhead"); s != nil {
		detach(s)
	}
	removeByTag(content, atom.Script, atom.Style, atom.Header, atom.Footer, atom.Nav)

	images := m.collectImages(content, meipianImageFilters)
	text := strings.Join(textLines(content), "\n")

	m.logger.Info("fetched rendered article", "title", title, "images", len(images))
	return &Article{
		Title:   title,
		Text:    text,
		RawHTML: sanitizeHTML(renderNode(content)),
		Images:  images,
	}, nil
}

func (m *Meipian) collectImages(n *html.Node, filters []string) []string {
	var images []string
	seen := make(map[string]bool)
	for _, img := range collectImgs(n) {
		src := imgSrc(img)
		if src == "" || strings.HasPrefix(src, "data:") || containsAny(src, filters) {
			continue
		}
		src = absolutize(meipianBase, src)
		if !seen[src] {
			seen[src] = true
			images = append(images, src)
		}
	}
	return images
}
