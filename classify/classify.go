// Package classify decides how a raw inbound submission must be parsed.
//
// Detect implements a fixed-priority decision ladder over the message body
// and attachment list; ParseSubject extracts routing metadata from the
// structured subject-line convention. Both are pure functions with no I/O,
// so the ingestion pipeline can classify before spending any network or
// document-processing cost.
package classify

import (
	"html"
	"path"
	"regexp"
	"strings"
)

// ContentType identifies which ingestion pipeline handles a submission.
type ContentType string

const (
	TypeArchive         ContentType = "archive"
	TypeLargeAttachment ContentType = "large_attachment"
	TypeWeixin          ContentType = "weixin"
	TypeMeipian         ContentType = "meipian"
	TypeOtherURL        ContentType = "other_url"
	TypeDocument        ContentType = "document"
	TypeVideo           ContentType = "video"
	TypePlainText       ContentType = "plain_text"
)

// Types lists every content type a handler can be registered for.
func Types() []ContentType {
	return []ContentType{
		TypeArchive, TypeLargeAttachment, TypeWeixin, TypeMeipian,
		TypeOtherURL, TypeDocument, TypeVideo, TypePlainText,
	}
}

// Attachment is the filename of one inbound attachment. Detection only needs
// names; payload bytes stay with the caller.
type Attachment struct {
	Filename string
}

var (
	archiveExts  = extSet(".zip", ".rar", ".7z")
	videoExts    = extSet(".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv")
	imageExts    = extSet(".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp")
	documentExts = extSet(".doc", ".docx", ".pdf")
)

// Large-attachment download hosts recognised in mail bodies.
var largeAttachmentMarkers = []string{
	"wx.mail.qq.com/ftn/download",
	"mail.163.com/large-attachment-download",
}

// Mail-client chrome URLs that must never classify a message as other_url.
var decorativeURLMarkers = []string{
	"icon_att.gif",
	"images/icon",
	"/icons/",
	"readmail_businesscard",
	"get_mailhead_icon",
}

var urlRe = regexp.MustCompile(`https?://[^\s<>"]+`)

const (
	weixinHost  = "mp.weixin.qq.com"
	meipianHost = "meipian.cn"
)

// Detect classifies a message by body text and attachment names.
//
// The ladder is evaluated top to bottom, first match wins; the order encodes
// business precedence (an archive attachment dominates even when the body
// also carries an article link, a document attachment dominates video).
func Detect(body string, attachments []Attachment) ContentType {
	for _, a := range attachments {
		if archiveExts[ext(a.Filename)] {
			return TypeArchive
		}
	}

	for _, marker := range largeAttachmentMarkers {
		if strings.Contains(body, marker) {
			return TypeLargeAttachment
		}
	}

	if strings.Contains(body, weixinHost) {
		return TypeWeixin
	}
	if strings.Contains(body, meipianHost) {
		return TypeMeipian
	}

	if u := firstContentURL(body); u != "" {
		return TypeOtherURL
	}

	var hasDocument, hasVideo, hasImage bool
	for _, a := range attachments {
		switch e := ext(a.Filename); {
		case documentExts[e]:
			hasDocument = true
		case videoExts[e]:
			hasVideo = true
		case imageExts[e]:
			hasImage = true
		}
	}
	switch {
	case hasDocument:
		return TypeDocument
	case hasVideo:
		return TypeVideo
	case hasImage:
		// Image-only mail: the body is the article, images are its figures.
		return TypeDocument
	}

	return TypePlainText
}

// firstContentURL returns the first http(s) URL in body that is neither a
// known article platform nor mail-client decoration, or "".
func firstContentURL(body string) string {
	m := urlRe.FindString(body)
	if m == "" {
		return ""
	}
	for _, marker := range decorativeURLMarkers {
		if strings.Contains(m, marker) {
			return ""
		}
	}
	if strings.Contains(m, weixinHost) || strings.Contains(m, meipianHost) {
		return ""
	}
	return m
}

var (
	weixinURLRe  = regexp.MustCompile(`https?://mp\.weixin\.qq\.com/s/[^\s<>"]+`)
	meipianURLRe = regexp.MustCompile(`https?://(?:www\.)?meipian\.cn/[^\s<>"]+`)
)

// ExtractURL pulls the article URL matching the detected content type out of
// the body, HTML-entity decoded. Returns "" when no URL of that type exists.
func ExtractURL(body string, t ContentType) string {
	switch t {
	case TypeWeixin:
		if m := weixinURLRe.FindString(body); m != "" {
			return html.UnescapeString(m)
		}
	case TypeMeipian:
		if m := meipianURLRe.FindString(body); m != "" {
			return html.UnescapeString(m)
		}
	case TypeOtherURL:
		if m := firstContentURL(body); m != "" {
			return html.UnescapeString(m)
		}
	}
	return ""
}

func ext(filename string) string {
	return strings.ToLower(path.Ext(filename))
}

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}
