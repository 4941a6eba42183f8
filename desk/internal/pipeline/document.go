package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/copydesk/mailroom"
	"github.com/hazyhaar/copydesk/placeholder"
)

var (
	documentExts = map[string]bool{".doc": true, ".docx": true, ".pdf": true}
	imageExts    = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true,
		".gif": true, ".bmp": true, ".webp": true,
	}
)

// documentHandler extracts an attached document into marker text plus
// rehosted images. An image-only mail (no document) becomes an article
// whose body is just its pictures.
type documentHandler struct {
	deps Deps
}

func (h *documentHandler) Handle(ctx context.Context, item *Item) (*Result, error) {
	doc := firstByExt(item.Attachments, documentExts)
	if doc == nil {
		return h.imagesOnly(ctx, item)
	}

	path, cleanup, err := spool(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: spool attachment: %v", ErrCollaborator, err)
	}
	defer cleanup()

	extracted, err := h.deps.Docs.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: extract %s: %v", ErrCollaborator, doc.Filename, err)
	}

	media := make([]placeholder.Media, len(extracted.Images))
	var failed []string
	for i, img := range extracted.Images {
		obj, err := h.deps.Objects.Put(ctx, img.Data, img.Filename, "images")
		if err != nil {
			h.deps.Logger.Warn("extracted image upload failed, dropping map entry",
				"submission_id", item.Submission.ID, "filename", img.Filename, "error", err)
			failed = append(failed, placeholder.Token(i+1))
			continue
		}
		media[i] = placeholder.Media{URL: obj.URL, Filename: img.Filename}
	}

	text, m := placeholder.EncodeFromRaw(extracted.Text, media)
	for _, tok := range failed {
		delete(m, tok)
	}

	return &Result{Title: extracted.Title, Text: text, Media: m}, nil
}

// imagesOnly builds the article body from attached pictures alone.
func (h *documentHandler) imagesOnly(ctx context.Context, item *Item) (*Result, error) {
	images := allByExt(item.Attachments, imageExts)
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no document or image attachment", ErrCollaborator)
	}

	var b strings.Builder
	if body := strings.TrimSpace(item.Submission.BodyText); body != "" {
		b.WriteString(body)
	}
	media := make([]placeholder.Media, 0, len(images))
	for _, att := range images {
		obj, err := h.deps.Objects.Put(ctx, att.Data, att.Filename, "images")
		if err != nil {
			h.deps.Logger.Warn("attached image upload failed",
				"submission_id", item.Submission.ID, "filename", att.Filename, "error", err)
			continue
		}
		media = append(media, placeholder.Media{URL: obj.URL, Filename: att.Filename})
		fmt.Fprintf(&b, "\n\n![图片%d](%s)", len(media), att.Filename)
	}
	if len(media) == 0 {
		return nil, fmt.Errorf("%w: every attached image failed to upload", ErrCollaborator)
	}

	text, m := placeholder.EncodeFromRaw(b.String(), media)
	return &Result{Text: text, Media: m}, nil
}

// videoHandler rehosts the attached video and embeds it in the body.
type videoHandler struct {
	deps Deps
}

var videoExts = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".mkv": true,
}

func (h *videoHandler) Handle(ctx context.Context, item *Item) (*Result, error) {
	att := firstByExt(item.Attachments, videoExts)
	if att == nil {
		return nil, fmt.Errorf("%w: no video attachment", ErrCollaborator)
	}
	obj, err := h.deps.Objects.Put(ctx, att.Data, att.Filename, "videos")
	if err != nil {
		return nil, fmt.Errorf("%w: upload video %s: %v", ErrCollaborator, att.Filename, err)
	}

	var b strings.Builder
	if body := strings.TrimSpace(item.Submission.BodyText); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, `<video src="%s" controls style="max-width:100%%;"></video>`, obj.URL)

	return &Result{Text: b.String(), Media: placeholder.Map{}}, nil
}

func firstByExt(atts []mailroom.Attachment, exts map[string]bool) *mailroom.Attachment {
	for i := range atts {
		if exts[strings.ToLower(filepath.Ext(atts[i].Filename))] {
			return &atts[i]
		}
	}
	return nil
}

func allByExt(atts []mailroom.Attachment, exts map[string]bool) []mailroom.Attachment {
	var out []mailroom.Attachment
	for _, a := range atts {
		if exts[strings.ToLower(filepath.Ext(a.Filename))] {
			out = append(out, a)
		}
	}
	return out
}

// spool writes an attachment to a temp file so the document pipeline can
// work from a path. The extension must survive for format detection.
func spool(att *mailroom.Attachment) (string, func(), error) {
	dir, err := os.MkdirTemp("", "copydesk-doc-*")
	if err != nil {
		return "", nil, err
	}
	p := filepath.Join(dir, filepath.Base(att.Filename))
	if err := os.WriteFile(p, att.Data, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return p, func() { os.RemoveAll(dir) }, nil
}
