package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAI_Complete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "转换后的文本"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "test-model"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Complete(context.Background(), "system prompt", "user text")
	if err != nil {
		t.Fatal(err)
	}
	if out != "转换后的文本" {
		t.Errorf("out = %q", out)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 ||
		gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "user text" {
		t.Errorf("request = %+v", gotReq)
	}
}

// WHAT: 429 and 5xx wrap ErrUnavailable; 4xx does not.
func TestOpenAI_StatusClassification(t *testing.T) {
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", status)
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range []int{429, 500, 503} {
		status = s
		if _, err := c.Complete(context.Background(), "", "x"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("status %d: err = %v, want ErrUnavailable", s, err)
		}
	}
	status = 401
	if _, err := c.Complete(context.Background(), "", "x"); errors.Is(err, ErrUnavailable) {
		t.Errorf("status 401 wrongly retryable: %v", err)
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatal("want error without API key")
	}
}

const sampleText = `光明村的春耕生产正在有序推进，我们组织农技人员深入田间地头开展指导服务工作。

[[IMG_1]]

我局还将继续加大支持力度，确保春耕生产顺利完成，为全年粮食丰收打下坚实基础。

[[IMG_2]]`

type scriptedClient struct {
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedClient) Complete(context.Context, string, string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.outputs[i], nil
}

func fastConfig() TransformConfig {
	return TransformConfig{MaxAttempts: 3, RetryBase: time.Millisecond}
}

// WHAT: a quality rejection triggers a fresh attempt; the second, complete
// sample is accepted.
// WHY: resampling often restores a placeholder the first output dropped.
func TestTransform_RetriesQualityFailure(t *testing.T) {
	good := strings.ReplaceAll(sampleText, "我们", "该村")
	client := &scriptedClient{outputs: []string{
		strings.ReplaceAll(good, "[[IMG_2]]", ""), // dropped placeholder
		good,
	}}

	out, err := NewTransformer(client, fastConfig()).Transform(context.Background(), sampleText)
	if err != nil {
		t.Fatal(err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
	if !strings.Contains(out, "[[IMG_2]]") {
		t.Errorf("output still missing placeholder: %q", out)
	}
}

// WHAT: after the attempt budget the last error is surfaced and it is
// distinguishable as a quality failure.
func TestTransform_QualityExhaustion(t *testing.T) {
	client := &scriptedClient{outputs: []string{"太短", "太短", "太短"}}
	_, err := NewTransformer(client, fastConfig()).Transform(context.Background(), sampleText)
	if !errors.Is(err, ErrQuality) {
		t.Fatalf("err = %v, want ErrQuality", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3", client.calls)
	}
}

func TestTransform_RetriesUnavailable(t *testing.T) {
	good := strings.ReplaceAll(sampleText, "我们", "该村")
	client := &scriptedClient{
		errs:    []error{ErrUnavailable, nil},
		outputs: []string{"", good},
	}
	if _, err := NewTransformer(client, fastConfig()).Transform(context.Background(), sampleText); err != nil {
		t.Fatal(err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
}

// WHAT: non-retryable client errors fail immediately.
func TestTransform_TerminalErrorNoRetry(t *testing.T) {
	terminal := errors.New("llm: http 401: bad key")
	client := &scriptedClient{errs: []error{terminal}, outputs: []string{""}}
	_, err := NewTransformer(client, fastConfig()).Transform(context.Background(), sampleText)
	if !errors.Is(err, terminal) {
		t.Fatalf("err = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestCheckQuality(t *testing.T) {
	long := strings.Repeat("内容", 50)
	tests := []struct {
		name        string
		original    string
		transformed string
		wantErr     bool
	}{
		{"accepts faithful rewrite", sampleText, strings.ReplaceAll(sampleText, "我们", "该村"), false},
		{"rejects empty", sampleText, "   ", true},
		{"rejects missing placeholder", sampleText, "没有占位符的输出，但长度足够充当正文内容并超过了原文的一半长度要求。", true},
		{"rejects refusal", long, "Sorry, " + long, true},
		{"rejects too short", long, "短", true},
		{"accepts no-placeholder text", long, long + "扩写", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckQuality(tt.original, tt.transformed)
			if tt.wantErr && !errors.Is(err, ErrQuality) {
				t.Errorf("err = %v, want ErrQuality", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected err: %v", err)
			}
		})
	}
}
