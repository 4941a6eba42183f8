package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/hazyhaar/copydesk/placeholder"
	"github.com/hazyhaar/copydesk/webfetch"
)

var inlineMarkerRe = regexp.MustCompile(`!\[图片\d+\]\(`)

// linkHandler fetches a linked article, rehosts its images and encodes
// the result into storage format.
type linkHandler struct {
	fetcher  webfetch.Fetcher
	deps     Deps
	platform string
}

func (h *linkHandler) Handle(ctx context.Context, item *Item) (*Result, error) {
	if item.URL == "" {
		return nil, fmt.Errorf("%w: no content url in body", ErrCollaborator)
	}
	art, err := h.fetcher.Fetch(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrCollaborator, h.platform, err)
	}

	text := art.Text
	// Platform extractors that do not inline markers list images
	// separately; append markers so every image has a position.
	if !inlineMarkerRe.MatchString(text) {
		var b strings.Builder
		b.WriteString(text)
		for i, src := range art.Images {
			fmt.Fprintf(&b, "\n\n![图片%d](%s)", i+1, src)
		}
		text = b.String()
	}

	media, failed := h.rehost(ctx, art.Images, item.Submission.ID)
	out, m := placeholder.EncodeFromRaw(text, media)
	for _, tok := range failed {
		delete(m, tok)
	}

	return &Result{
		Title:   art.Title,
		Text:    out,
		Media:   m,
		RawHTML: art.RawHTML,
	}, nil
}

// rehost downloads each source image and stores it locally. A failed
// image does not abort the submission: the token keeps its position in
// the text and the map entry is dropped, a gap the codec's merge rule
// tolerates downstream.
func (h *linkHandler) rehost(ctx context.Context, srcs []string, submissionID string) ([]placeholder.Media, []string) {
	media := make([]placeholder.Media, len(srcs))
	var failed []string
	for i, src := range srcs {
		media[i] = placeholder.Media{URL: src}
		data, err := h.deps.Client.DownloadImage(ctx, src)
		if err != nil {
			h.deps.Logger.Warn("image download failed, dropping map entry",
				"submission_id", submissionID, "src", src, "error", err)
			failed = append(failed, placeholder.Token(i+1))
			continue
		}
		obj, err := h.deps.Objects.Put(ctx, data, imageName(src), "images")
		if err != nil {
			h.deps.Logger.Warn("image upload failed, dropping map entry",
				"submission_id", submissionID, "src", src, "error", err)
			failed = append(failed, placeholder.Token(i+1))
			continue
		}
		media[i].URL = obj.URL
	}
	return media, failed
}

// imageName derives a storage filename from an image URL; the store
// renames anyway, only the extension matters.
func imageName(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return "image.jpg"
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." || !strings.Contains(name, ".") {
		return "image.jpg"
	}
	return name
}
