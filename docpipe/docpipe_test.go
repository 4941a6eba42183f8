package docpipe

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId10" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
<Relationship Id="rId11" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image2.jpeg"/>
</Relationships>`

// writeDocx assembles a minimal .docx archive in a temp dir.
func writeDocx(t *testing.T, documentXML string, media map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string][]byte{
		"word/document.xml":            []byte(documentXML),
		"word/_rels/document.xml.rels": []byte(relsXML),
	}
	for name, data := range media {
		files["word/media/"+name] = data
	}
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "submission.docx")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const docBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
            xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
            xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<w:body>
<w:p><w:r><w:t>秋收正当时</w:t></w:r></w:p>
<w:p><w:r><w:t>--丰收一线见闻</w:t></w:r></w:p>
<w:p><w:r><w:t>第一段正文。</w:t></w:r></w:p>
<w:p><w:r><a:blip r:embed="rId10"/></w:r></w:p>
<w:p><w:r><w:t>第二段正文。</w:t></w:r></w:p>
<w:p><w:r><a:blip r:embed="rId11"/></w:r></w:p>
</w:body>
</w:document>`

// WHAT: docx extraction yields marker-bearing body text, a subtitle-joined
// title, and images in marker order.
// WHY: the marker positions and image order are what the placeholder map is
// later built from; losing either breaks the draft.
func TestExtract_Docx(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	jpg := []byte{0xFF, 0xD8, 0xFF, 4, 5}
	path := writeDocx(t, docBody, map[string][]byte{
		"image1.png":  png,
		"image2.jpeg": jpg,
	})

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	if doc.Title != "秋收正当时——丰收一线见闻" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.TitleLineCount != 2 {
		t.Errorf("title lines = %d, want 2", doc.TitleLineCount)
	}

	wantText := "第一段正文。\n[[IMG_1]]\n第二段正文。\n[[IMG_2]]"
	if doc.Text != wantText {
		t.Errorf("text = %q, want %q", doc.Text, wantText)
	}

	if len(doc.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(doc.Images))
	}
	if doc.Images[0].Filename != "image_1.png" || !bytes.Equal(doc.Images[0].Data, png) {
		t.Errorf("image 1 = %q (%d bytes)", doc.Images[0].Filename, len(doc.Images[0].Data))
	}
	if doc.Images[1].Filename != "image_2.jpg" || !bytes.Equal(doc.Images[1].Data, jpg) {
		t.Errorf("image 2 = %q (%d bytes)", doc.Images[1].Filename, len(doc.Images[1].Data))
	}
}

const tableBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>统计表</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>单位</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>篇数</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>人社局</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>12</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`

// WHAT: table rows flatten to pipe-joined lines.
func TestExtract_DocxTable(t *testing.T) {
	path := writeDocx(t, tableBody, nil)

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "统计表" {
		t.Errorf("title = %q", doc.Title)
	}
	wantText := "单位 | 篇数\n人社局 | 12"
	if doc.Text != wantText {
		t.Errorf("text = %q, want %q", doc.Text, wantText)
	}
}

func TestExtract_Txt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "body.txt")
	content := "春到田间\n\n万物复苏的季节里，农户开始备耕。\n农技员下乡指导。\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "春到田间" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.TitleLineCount != 1 {
		t.Errorf("title lines = %d", doc.TitleLineCount)
	}
	want := "万物复苏的季节里，农户开始备耕。\n农技员下乡指导。"
	if doc.Text != want {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestExtract_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	content := `<html><head><title>乡村振兴纪实</title><style>p{color:red}</style></head>
<body><nav>首页</nav><p>第一段。</p><p style="display:none">隐藏内容</p><p>第二段。</p></body></html>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := New(Config{}).Extract(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "乡村振兴纪实" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.Text != "第一段。\n第二段。" {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestDetect(t *testing.T) {
	p := New(Config{})
	for path, want := range map[string]Format{
		"a.doc": FormatDoc, "b.DOCX": FormatDocx, "c.pdf": FormatPDF,
		"d.txt": FormatTXT, "e.htm": FormatHTML,
	} {
		got, err := p.Detect(path)
		if err != nil || got != want {
			t.Errorf("Detect(%q) = %v, %v", path, got, err)
		}
	}
	if _, err := p.Detect("weird.xls"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Detect(.xls) err = %v, want ErrUnsupported", err)
	}
}

func TestExtract_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New(Config{MaxFileSize: 10}).Extract(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("err = %v, want size error", err)
	}
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		wantTitle string
		wantCount int
	}{
		{"empty", nil, "", 0},
		{"single line", []string{"标题"}, "标题", 1},
		{"plain second line stays body", []string{"标题", "正文"}, "标题", 1},
		{"dashed subtitle joins", []string{"主标题", "--副标题"}, "主标题——副标题", 2},
		{"marker lines skipped", []string{"[[IMG_1]]", "标题", "[[IMG_2]]", "--副标题"}, "标题——副标题", 2},
		{"only markers", []string{"[[IMG_1]]"}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, count := splitTitle(tt.lines)
			if title != tt.wantTitle || count != tt.wantCount {
				t.Errorf("got (%q, %d), want (%q, %d)", title, count, tt.wantTitle, tt.wantCount)
			}
		})
	}
}

func TestPDFContentStreamHelpers(t *testing.T) {
	stream := []byte("BT\n(Hello \\(PDF\\)) Tj\n0 -14 Td\n[(wor) -20 (ld)] TJ\nT*\n(next line) '\nET")
	got := textFromContentStream(stream)
	if !strings.Contains(got, "Hello (PDF)") || !strings.Contains(got, "world") {
		t.Errorf("stream text = %q", got)
	}
	if !strings.Contains(got, "next line") {
		t.Errorf("quote operator lost: %q", got)
	}

	if s := decodePDFString([]byte(`\101\102 ok`)); s != "AB ok" {
		t.Errorf("octal decode = %q", s)
	}

	if r := printableRatio("正常文本 text"); r != 1.0 {
		t.Errorf("printable ratio = %f", r)
	}
	if r := printableRatio("���ok"); r > 0.6 {
		t.Errorf("garbage ratio = %f, want low", r)
	}
}
