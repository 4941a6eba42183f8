// Package wppub publishes finished drafts to a WordPress site over its
// REST API using application-password basic auth.
package wppub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var ErrUnreachable = errors.New("wppub: site unreachable")

// Post statuses accepted by the WordPress posts endpoint.
const (
	StatusDraft   = "draft"
	StatusPublish = "publish"
	StatusPending = "pending"
)

type Config struct {
	// SiteURL is the WordPress root, e.g. https://news.example.cn.
	SiteURL string `json:"site_url" yaml:"site_url"`
	// Username pairs with an application password, not the login password.
	Username string        `json:"username" yaml:"username"`
	Password string        `json:"password" yaml:"password"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() error {
	if c.SiteURL == "" {
		return errors.New("wppub: site URL is required")
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Publisher is the site-facing contract the draft service depends on.
type Publisher interface {
	CreatePost(ctx context.Context, title, html, status string) (int64, error)
	UpdatePost(ctx context.Context, postID int64, title, html, status string) error
}

// Client talks to a single WordPress site.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger.With("component", "wppub"),
	}, nil
}

type postPayload struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Status  string `json:"status,omitempty"`
}

type postResponse struct {
	ID   int64 `json:"id"`
	Link string `json:"link"`
}

// Verify checks that the REST API root answers with the configured
// credentials. Used at startup and when a site is registered.
func (c *Client) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SiteURL+"/wp-json", nil)
	if err != nil {
		return fmt.Errorf("wppub: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wppub: verify: %s", respError(resp))
	}
	return nil
}

// CreatePost creates a post and returns the WordPress post id.
func (c *Client) CreatePost(ctx context.Context, title, html, status string) (int64, error) {
	var out postResponse
	err := c.post(ctx, "/wp-json/wp/v2/posts", postPayload{
		Title:   title,
		Content: html,
		Status:  status,
	}, &out)
	if err != nil {
		return 0, err
	}
	if out.ID == 0 {
		return 0, errors.New("wppub: create: response carries no post id")
	}
	c.logger.Info("post created", "post_id", out.ID, "status", status)
	return out.ID, nil
}

// UpdatePost overwrites the given fields on an existing post. Empty
// fields are left untouched on the site.
func (c *Client) UpdatePost(ctx context.Context, postID int64, title, html, status string) error {
	err := c.post(ctx, fmt.Sprintf("/wp-json/wp/v2/posts/%d", postID), postPayload{
		Title:   title,
		Content: html,
		Status:  status,
	}, nil)
	if err != nil {
		return err
	}
	c.logger.Info("post updated", "post_id", postID)
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload postPayload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("wppub: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SiteURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wppub: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("wppub: %s %s: %s", http.MethodPost, path, respError(resp))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wppub: decode response: %w", err)
	}
	return nil
}

// respError reads a bounded slice of the body so a WordPress HTML error
// page does not flood the log.
func respError(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	return fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
