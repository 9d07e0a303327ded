package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// MaxExcerptRunes is Ghost's custom_excerpt length limit.
const MaxExcerptRunes = 300

// ExcerptWriter writes a short excerpt for a post.
type ExcerptWriter interface {
	// WriteExcerpt returns a 1-2 sentence excerpt for the post in the given language.
	WriteExcerpt(ctx context.Context, title, body, language string) (string, error)
}

// OpenAIClient implements ExcerptWriter using OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

func NewOpenAI(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai model must be specified")
	}
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	return &OpenAIClient{client: c, model: cfg.Model}, nil
}

func (o *OpenAIClient) WriteExcerpt(ctx context.Context, title, body, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	// Trim inputs to keep tokens reasonable
	body = strings.TrimSpace(body)
	if body == "" {
		body = title
	}
	if len([]rune(body)) > 4000 {
		body = string([]rune(body)[:4000])
	}

	sys := fmt.Sprintf(`
		You write excerpts for blog posts, in %s.
		Return 1-2 plain sentences, at most %d characters, that make a reader want to open the post.
		No markdown, no quotes, no hashtags, no links.
		`, langOrDefault(language), MaxExcerptRunes)
	user := fmt.Sprintf("Title: %s\nPost:\n%s", title, body)
	out, err := o.create(ctx, sys, user)
	if err != nil {
		slog.Error("openai: write excerpt error", "err", err)
		return "", err
	}
	return clip(strings.TrimSpace(out), MaxExcerptRunes), nil
}

func (o *OpenAIClient) create(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// clip cuts s to at most n runes, preferring a sentence or word boundary.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexAny(cut, ".!?"); i > n/2 {
		return cut[:i+1]
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		return strings.TrimSpace(cut[:i]) + "…"
	}
	return string(r[:n-1]) + "…"
}

func langOrDefault(lang string) string {
	l := strings.TrimSpace(lang)
	if l == "" {
		return "English"
	}
	return l
}
