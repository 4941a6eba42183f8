package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

// Weixin fetches mp.weixin.qq.com articles. The page is server-rendered:
// the title sits in rich_media_title, the body in rich_media_content, and
// images lazy-load through data-src.
type Weixin struct {
	client *Client
	logger *slog.Logger
}

func NewWeixin(client *Client, logger *slog.Logger) *Weixin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Weixin{client: client, logger: logger.With("fetcher", "weixin")}
}

func (w *Weixin) Fetch(ctx context.Context, url string) (*Article, error) {
	body, err := w.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("weixin fetch: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("weixin parse: %w", err)
	}

	var title string
	if t := findByClass(doc, "rich_media_title"); t != nil {
		title = strings.Join(textLines(t), " ")
	}

	content := findByClass(doc, "rich_media_content")
	if content == nil {
		return nil, fmt.Errorf("weixin: %w", ErrNoContent)
	}
	unhideContainer(content)

	// Promote lazy-load sources so the preview renders.
	for _, img := range collectImgs(content) {
		if attrValue(img, "src") == "" {
			if ds := attrValue(img, "data-src"); ds != "" {
				img.Attr = append(img.Attr, html.Attribute{Key: "src", Val: ds})
			}
		}
	}

	rawHTML := sanitizeHTML(renderNode(content))

	// Swap each img for an inline marker so the image keeps its position
	// through the text pipeline.
	var images []string
	for _, img := range collectImgs(content) {
		src := imgSrc(img)
		if src == "" {
			detach(img)
			continue
		}
		images = append(images, src)
		marker := &html.Node{
			Type: html.TextNode,
			Data: fmt.Sprintf("\n![图片%d](%s)\n", len(images), src),
		}
		img.Parent.InsertBefore(marker, img)
		detach(img)
	}

	text := strings.Join(textLines(content), "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("weixin: %w", ErrNoContent)
	}

	w.logger.Info("fetched article", "title", title, "images", len(images))
	return &Article{Title: title, Text: text, RawHTML: rawHTML, Images: images}, nil
}

// unhideContainer strips the visibility tricks weixin applies until its
// scripts run.
func unhideContainer(n *html.Node) {
	for i, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		style := strings.ReplaceAll(a.Val, "visibility: hidden;", "")
		style = strings.ReplaceAll(style, "opacity: 0;", "")
		n.Attr[i].Val = style
	}
}
