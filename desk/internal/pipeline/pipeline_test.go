package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/copydesk/classify"
	"github.com/hazyhaar/copydesk/desk/internal/store"
	"github.com/hazyhaar/copydesk/mailroom"
	"github.com/hazyhaar/copydesk/objstore"
	"github.com/hazyhaar/copydesk/webfetch"
)

type fakeObjects struct {
	puts   []string
	failOn string
}

func (f *fakeObjects) Put(_ context.Context, _ []byte, filename, folder string) (objstore.Object, error) {
	if f.failOn != "" && strings.Contains(filename, f.failOn) {
		return objstore.Object{}, errors.New("disk full")
	}
	f.puts = append(f.puts, filename)
	key := fmt.Sprintf("%s/stored_%d%s", folder, len(f.puts), filepath.Ext(filename))
	return objstore.Object{URL: "https://static.example.cn/" + key, Key: key}, nil
}

func (f *fakeObjects) Delete(context.Context, string) error { return nil }

type fakeFetcher struct {
	art *webfetch.Article
	err error
}

func (f *fakeFetcher) Fetch(context.Context, string) (*webfetch.Article, error) {
	return f.art, f.err
}

func allowAll(string) error { return nil }

func item(t classify.ContentType, body string, atts ...mailroom.Attachment) *Item {
	return &Item{
		Submission: &store.Submission{
			ID:          "sub_1",
			Subject:     "投，时，凤翔区人社局，春风迎归人",
			Title:       "春风迎归人",
			ContentType: t,
			BodyText:    body,
		},
		Attachments: atts,
	}
}

func TestTextHandler(t *testing.T) {
	p := New(Deps{})
	res, err := p.Process(context.Background(), item(classify.TypePlainText, "正文第一段。\n\n正文第二段。"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "正文第一段。\n\n正文第二段。" || len(res.Media) != 0 {
		t.Errorf("res = %+v", res)
	}
	if res.Title != "春风迎归人" {
		t.Errorf("title = %q", res.Title)
	}
}

func TestArchiveHeldForManual(t *testing.T) {
	p := New(Deps{})
	res, err := p.Process(context.Background(), item(classify.TypeArchive, "见附件"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Manual || res.Note == "" {
		t.Errorf("res = %+v", res)
	}
}

func TestLinkHandler_RehostsImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	objects := &fakeObjects{}
	deps := Deps{
		Objects: objects,
		Client:  webfetch.NewClient(webfetch.ClientConfig{URLValidator: allowAll}),
		Weixin: &fakeFetcher{art: &webfetch.Article{
			Title: "就业服务月启动",
			Text: "第一段\n\n![图片1](" + srv.URL + "/a.jpg)\n\n第二段\n\n![图片2](" + srv.URL + "/b.png)",
			Images: []string{srv.URL + "/a.jpg", srv.URL + "/b.png"},
		}},
	}
	p := New(deps)

	it := item(classify.TypeWeixin, "链接见正文")
	it.URL = "https://mp.weixin.qq.com/s/abc"
	res, err := p.Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if res.Title != "就业服务月启动" {
		t.Errorf("title = %q", res.Title)
	}
	if !strings.Contains(res.Text, "[[IMG_1]]") || !strings.Contains(res.Text, "[[IMG_2]]") {
		t.Errorf("text = %q", res.Text)
	}
	if strings.Contains(res.Text, srv.URL) {
		t.Errorf("remote url leaked into text: %q", res.Text)
	}
	if res.Media["[[IMG_1]]"] != "https://static.example.cn/images/stored_1.jpg" {
		t.Errorf("map = %v", res.Media)
	}
	if len(objects.puts) != 2 {
		t.Errorf("puts = %v", objects.puts)
	}
}

// WHAT: a platform article listing images separately still gets one
// marker per image, appended after the prose.
func TestLinkHandler_AppendsMarkers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	deps := Deps{
		Objects: &fakeObjects{},
		Client:  webfetch.NewClient(webfetch.ClientConfig{URLValidator: allowAll}),
		Meipian: &fakeFetcher{art: &webfetch.Article{
			Title:  "乡村行",
			Text:   "正文",
			Images: []string{srv.URL + "/photo.jpg"},
		}},
	}
	it := item(classify.TypeMeipian, "")
	it.URL = "https://www.meipian.cn/abc"
	res, err := New(deps).Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Text, "正文") || !strings.Contains(res.Text, "[[IMG_1]]") {
		t.Errorf("text = %q", res.Text)
	}
}

// WHAT: one failed image drops its map entry but keeps the token and the
// rest of the submission.
func TestLinkHandler_PartialImageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	deps := Deps{
		Objects: &fakeObjects{},
		Client:  webfetch.NewClient(webfetch.ClientConfig{URLValidator: allowAll}),
		Generic: &fakeFetcher{art: &webfetch.Article{
			Text:   "正文",
			Images: []string{srv.URL + "/missing.jpg", srv.URL + "/ok.jpg"},
		}},
	}
	it := item(classify.TypeOtherURL, "")
	it.URL = "https://news.example.cn/article"
	res, err := New(deps).Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "[[IMG_1]]") {
		t.Errorf("failed image token missing: %q", res.Text)
	}
	if _, ok := res.Media["[[IMG_1]]"]; ok {
		t.Errorf("failed image kept a map entry: %v", res.Media)
	}
	if res.Media["[[IMG_2]]"] == "" {
		t.Errorf("surviving image lost: %v", res.Media)
	}
}

func TestLinkHandler_FetchFailureIsCollaborator(t *testing.T) {
	deps := Deps{Generic: &fakeFetcher{err: errors.New("blocked")}}
	it := item(classify.TypeOtherURL, "")
	it.URL = "https://news.example.cn/article"
	_, err := New(deps).Process(context.Background(), it)
	if !errors.Is(err, ErrCollaborator) {
		t.Errorf("err = %v", err)
	}
}

func TestDocumentHandler_ImagesOnly(t *testing.T) {
	objects := &fakeObjects{}
	it := item(classify.TypeDocument, "",
		mailroom.Attachment{Filename: "现场1.jpg", Data: []byte("a")},
		mailroom.Attachment{Filename: "现场2.png", Data: []byte("b")},
	)
	res, err := New(Deps{Objects: objects}).Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "[[IMG_1]]") || !strings.Contains(res.Text, "[[IMG_2]]") {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Media) != 2 {
		t.Errorf("map = %v", res.Media)
	}
}

func TestVideoHandler(t *testing.T) {
	objects := &fakeObjects{}
	it := item(classify.TypeVideo, "活动视频",
		mailroom.Attachment{Filename: "活动.mp4", Data: []byte("vid")})
	res, err := New(Deps{Objects: objects}).Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "<video src=\"https://static.example.cn/videos/stored_1.mp4\"") ||
		!strings.Contains(res.Text, "controls") {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.HasPrefix(res.Text, "活动视频") {
		t.Errorf("body dropped: %q", res.Text)
	}
}

func TestVideoHandler_UploadFailure(t *testing.T) {
	it := item(classify.TypeVideo, "",
		mailroom.Attachment{Filename: "活动.mp4", Data: []byte("vid")})
	_, err := New(Deps{Objects: &fakeObjects{failOn: "活动"}}).Process(context.Background(), it)
	if !errors.Is(err, ErrCollaborator) {
		t.Errorf("err = %v", err)
	}
}

func TestDispatch_UnknownTypeFallsBack(t *testing.T) {
	it := item(classify.ContentType("bogus"), "正文")
	res, err := New(Deps{}).Process(context.Background(), it)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "正文" {
		t.Errorf("res = %+v", res)
	}
}
