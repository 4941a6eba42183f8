package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/copydesk/placeholder"
)

// defaultSystemPrompt rewrites first-person submission prose into
// third-person editorial copy. The placeholder constraints are the load
// bearing part: the codec downstream requires every token back verbatim.
const defaultSystemPrompt = `你是一个专业的内容编辑助手。你的任务是将第一人称叙述转换为第三人称叙述，同时保持内容的准确性和可读性。

**关键约束（CRITICAL）：**
1. 文本中包含图片占位符，格式为 [[IMG_1]], [[IMG_2]] 等
2. 你必须**完全保留**这些占位符，不得修改、移动或删除
3. 占位符的位置必须保持不变
4. 不要输出Markdown图片语法（如 ![](url)），只使用占位符
5. 返回结果必须是Markdown格式

**转换规则：**
1. 将所有第一人称代词（我、我们、我局、我司等）转换为第三人称或具体的组织名称
2. 保护引用内容：引号内的内容不要修改
3. 规范化时间表述：将相对时间（如"昨天"、"上周"）转换为具体日期格式（YYYY-MM-DD）
4. 保持原文的语气和风格
5. 不要添加或删除原文中的信息
6. 保持段落结构和格式

请直接返回转换后的文本，不要添加任何解释或说明。`

// refusalMarkers are strings that indicate the model refused or broke
// character instead of transforming the text.
var refusalMarkers = []string{
	"i cannot", "i can't", "i'm unable to",
	"sorry", "i apologize",
	"as an ai", "as a language model",
}

// TransformConfig tunes the transform loop.
type TransformConfig struct {
	// SystemPrompt overrides the default rewrite instructions.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	// MaxAttempts bounds completion calls per Transform. Default: 3.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// RetryBase is the first backoff delay, doubled per attempt. Default: 2s.
	RetryBase time.Duration `json:"retry_base" yaml:"retry_base"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *TransformConfig) defaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaultSystemPrompt
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transformer drives completions through the quality gate with bounded
// retries. Transient failures and quality rejections both retry; a fresh
// sample often fixes a dropped placeholder.
type Transformer struct {
	client Client
	cfg    TransformConfig
	logger *slog.Logger
}

func NewTransformer(client Client, cfg TransformConfig) *Transformer {
	cfg.defaults()
	return &Transformer{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "llm"),
	}
}

// Transform rewrites text, returning output that passed the quality gate.
// The error after the final attempt is the last failure, so callers can
// distinguish ErrQuality from ErrUnavailable.
func (t *Transformer) Transform(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("llm: input text is empty")
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.cfg.RetryBase << (attempt - 2)
			if delay > 10*time.Second {
				delay = 10 * time.Second
			}
			t.logger.Warn("retrying transform", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := t.client.Complete(ctx, t.cfg.SystemPrompt, text)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				lastErr = err
				continue
			}
			return "", err
		}

		out = strings.TrimSpace(out)
		if err := CheckQuality(text, out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return "", lastErr
}

// CheckQuality validates transformed output against the original text.
// Failures wrap ErrQuality.
func CheckQuality(original, transformed string) error {
	if strings.TrimSpace(transformed) == "" {
		return fmt.Errorf("%w: output is empty", ErrQuality)
	}

	// Every placeholder token must survive verbatim.
	for _, tok := range placeholder.Tokens(original) {
		if !strings.Contains(transformed, tok) {
			return fmt.Errorf("%w: placeholder %s missing from output", ErrQuality, tok)
		}
	}

	lower := strings.ToLower(transformed)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return fmt.Errorf("%w: output contains refusal marker %q", ErrQuality, m)
		}
	}

	origLen := len([]rune(strings.TrimSpace(original)))
	gotLen := len([]rune(strings.TrimSpace(transformed)))
	markers := len(placeholder.Tokens(original))

	// A token-dense original is mostly markup; compare against its likely
	// prose share instead of the raw length.
	minLen := origLen / 2
	if markers > 10 {
		est := origLen - markers*10
		minLen = max(100, est*3/10)
	}
	if gotLen < minLen {
		return fmt.Errorf("%w: output too short (%d chars, expected at least %d)",
			ErrQuality, gotLen, minLen)
	}
	return nil
}
