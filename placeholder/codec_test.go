package placeholder

import (
	"strings"
	"testing"
)

func TestEncodeFromRaw_LegacyInlineMarkers(t *testing.T) {
	raw := "第一段\n![图片1](cid:abc)\n第二段\n![图片2](cid:def)"
	media := []Media{
		{URL: "https://oss.example.com/a.jpg"},
		{URL: "https://oss.example.com/b.jpg"},
	}

	text, m := EncodeFromRaw(raw, media)

	if !strings.Contains(text, "[[IMG_1]]") || !strings.Contains(text, "[[IMG_2]]") {
		t.Fatalf("markers not replaced: %q", text)
	}
	if strings.Contains(text, "![图片") {
		t.Errorf("legacy marker left behind: %q", text)
	}
	if m["[[IMG_1]]"] != "https://oss.example.com/a.jpg" || m["[[IMG_2]]"] != "https://oss.example.com/b.jpg" {
		t.Errorf("map = %v", m)
	}
}

func TestEncodeFromRaw_FilenameMarkers(t *testing.T) {
	raw := "正文 ![现场照片](image_1.png) 结尾"
	text, m := EncodeFromRaw(raw, []Media{{URL: "https://oss.example.com/x.png", Filename: "image_1.png"}})

	if !strings.Contains(text, "[[IMG_1]]") {
		t.Errorf("filename marker not replaced: %q", text)
	}
	if m["[[IMG_1]]"] != "https://oss.example.com/x.png" {
		t.Errorf("map = %v", m)
	}
}

func TestEncodeFromRaw_PreexistingTokensJustGetMapEntries(t *testing.T) {
	// Document extraction emits [[IMG_n]] inline already.
	raw := "标题\n[[IMG_1]]\n正文\n[[IMG_2]]"
	text, m := EncodeFromRaw(raw, []Media{{URL: "u1"}, {URL: "u2"}})

	if text != raw {
		t.Errorf("text changed: %q", text)
	}
	if len(m) != 2 {
		t.Errorf("map = %v", m)
	}
}

func TestDecode_PlaceholderBecomesRecoverableEmbed(t *testing.T) {
	c := NewCodec()
	m := Map{"[[IMG_1]]": "https://oss.example.com/a.jpg"}

	out, err := c.Decode("段落一\n\n[[IMG_1]]\n\n段落二", m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `src="https://oss.example.com/a.jpg"`) {
		t.Errorf("missing img src: %s", out)
	}
	if !strings.Contains(out, `data-id="[[IMG_1]]"`) {
		t.Errorf("missing recoverable data-id: %s", out)
	}
}

func TestDecode_StructuralNormalization(t *testing.T) {
	c := NewCodec()

	out, err := c.Decode("## 小标题\n正文从这里开始\n\n\n\n下一段", Map{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<h2>") {
		t.Errorf("heading not promoted: %s", out)
	}
	if !strings.Contains(out, "正文从这里开始") || !strings.Contains(out, "下一段") {
		t.Errorf("body text lost: %s", out)
	}
}

func TestDecode_LegacyMarkerUpgraded(t *testing.T) {
	c := NewCodec()
	m := Map{"[[IMG_3]]": "https://oss.example.com/3.jpg"}

	out, err := c.Decode("开头 ![图片3](old-url) 结尾", m)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `data-id="[[IMG_3]]"`) {
		t.Errorf("legacy marker not upgraded: %s", out)
	}
}

func TestEncode_RoundTripPreservesPlaceholderSet(t *testing.T) {
	// WHAT: decode then encode ends with the same placeholder keys and URLs.
	// WHY: repeated edit cycles must not corrupt the storage format.
	c := NewCodec()
	text := "第一段\n\n[[IMG_1]]\n\n## 小标题\n\n第二段\n\n[[IMG_2]]"
	m := Map{
		"[[IMG_1]]": "https://oss.example.com/1.jpg",
		"[[IMG_2]]": "https://oss.example.com/2.jpg",
	}

	rich, err := c.Decode(text, m)
	if err != nil {
		t.Fatal(err)
	}
	back, got, err := c.Encode(rich, m)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != len(m) {
		t.Fatalf("map keys changed: %v vs %v", got, m)
	}
	for tok, url := range m {
		if got[tok] != url {
			t.Errorf("map[%s] = %q, want %q", tok, got[tok], url)
		}
		if !strings.Contains(back, tok) {
			t.Errorf("token %s missing from round-tripped text: %q", tok, back)
		}
	}
	if !strings.Contains(back, "## 小标题") {
		t.Errorf("heading lost in round-trip: %q", back)
	}
}

func TestEncode_NewImageGetsNextUnusedIndex(t *testing.T) {
	c := NewCodec()
	prev := Map{"[[IMG_1]]": "https://oss.example.com/1.jpg"}
	rich := `<p>旧图 <img src="https://oss.example.com/1.jpg" data-id="[[IMG_1]]"></p>` +
		`<p>新图 <img src="https://oss.example.com/new.jpg"></p>`

	text, m, err := c.Encode(rich, prev)
	if err != nil {
		t.Fatal(err)
	}
	if m["[[IMG_1]]"] != "https://oss.example.com/1.jpg" {
		t.Errorf("existing token lost: %v", m)
	}
	if m["[[IMG_2]]"] != "https://oss.example.com/new.jpg" {
		t.Errorf("new image not assigned [[IMG_2]]: %v", m)
	}
	if !strings.Contains(text, "[[IMG_2]]") {
		t.Errorf("new token missing from text: %q", text)
	}
}

func TestEncode_IndexNeverReusedFromPreviousMap(t *testing.T) {
	// prev already used index 3; a new image must not collide with it.
	prev := Map{"[[IMG_3]]": "https://oss.example.com/3.jpg"}
	c := NewCodec()

	_, m, err := c.Encode(`<p><img src="https://oss.example.com/new.jpg"></p>`, prev)
	if err != nil {
		t.Fatal(err)
	}
	if _, clash := m["[[IMG_3]]"]; clash {
		t.Errorf("index 3 reused for different media: %v", m)
	}
	if m["[[IMG_4]]"] != "https://oss.example.com/new.jpg" {
		t.Errorf("expected [[IMG_4]], got %v", m)
	}
}

func TestEncode_AntiDataLossMerge(t *testing.T) {
	// WHAT: a token the editor round-tripped as literal text (metadata lost)
	// is restored into the new map from the previous one.
	// WHY: partial media loss in the editor must never drop stored URLs.
	c := NewCodec()
	prev := Map{"[[IMG_7]]": "https://oss.example.com/7.jpg"}

	text, m, err := c.Encode("<p>正文 [[IMG_7]] 继续</p>", prev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "[[IMG_7]]") {
		t.Fatalf("literal token lost: %q", text)
	}
	if m["[[IMG_7]]"] != "https://oss.example.com/7.jpg" {
		t.Errorf("anti-data-loss merge failed: %v", m)
	}
}

func TestEncode_LiteralTokenEscapingNormalized(t *testing.T) {
	// WHAT: literal tokens survive the markdown converter's escaping in
	// canonical form, double-digit indices included.
	// WHY: the converter backslash-escapes bracket syntax unevenly; a
	// half-escaped token in storage would be invisible to the map helpers.
	c := NewCodec()
	prev := Map{
		"[[IMG_3]]":  "https://oss.example.com/3.jpg",
		"[[IMG_12]]": "https://oss.example.com/12.jpg",
	}

	text, m, err := c.Encode("<p>[[IMG_3]] 中段 [[IMG_12]] 结尾</p>", prev)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(text, `\`) {
		t.Fatalf("escape characters leaked into storage text: %q", text)
	}
	for _, tok := range []string{"[[IMG_3]]", "[[IMG_12]]"} {
		if !strings.Contains(text, tok) {
			t.Errorf("token %s not canonical in %q", tok, text)
		}
		if m[tok] != prev[tok] {
			t.Errorf("map entry for %s = %q, want %q", tok, m[tok], prev[tok])
		}
	}
}

func TestEncode_VideoBlockPreservedWithControls(t *testing.T) {
	c := NewCodec()
	rich := `<p>前文</p><video src="https://oss.example.com/v.mp4"></video><p>后文</p>`

	text, _, err := c.Encode(rich, Map{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "<video") {
		t.Fatalf("video block lost: %q", text)
	}
	if !strings.Contains(text, "controls") {
		t.Errorf("controls attribute not enforced: %q", text)
	}
}

func TestEncode_Empty(t *testing.T) {
	c := NewCodec()
	text, m, err := c.Encode("", Map{"[[IMG_1]]": "u"})
	if err != nil {
		t.Fatal(err)
	}
	if text != "" || len(m) != 0 {
		t.Errorf("got %q %v", text, m)
	}
}

func TestRenderFinal_NoTokensNoInternalIdentifiers(t *testing.T) {
	// WHAT: published HTML contains no [[IMG_n]] tokens and no data-id marks.
	// WHY: publish targets must never see internal storage artifacts.
	c := NewCodec()
	text := "开头\n\n[[IMG_1]]\n\n中段\n\n[[IMG_2]]\n\n孤儿 [[IMG_9]]"
	m := Map{
		"[[IMG_1]]": "https://oss.example.com/1.jpg",
		"[[IMG_2]]": "https://oss.example.com/2.jpg",
	}

	out, err := c.RenderFinal(text, m)
	if err != nil {
		t.Fatal(err)
	}
	if tokenRe.MatchString(out) {
		t.Errorf("placeholder token leaked: %s", out)
	}
	if strings.Contains(out, "data-id") {
		t.Errorf("internal identifier leaked: %s", out)
	}
	if strings.Count(out, "<img") != 2 {
		t.Errorf("expected 2 imgs, got: %s", out)
	}
}

func TestRenderFinal_VideoControls(t *testing.T) {
	c := NewCodec()
	out, err := c.RenderFinal("正文\n\n<video src=\"https://oss.example.com/v.mp4\"></video>\n", Map{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<video") || !strings.Contains(out, "controls") {
		t.Errorf("video not preserved with controls: %s", out)
	}
}
