package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts Markdown bodies into HTML.
// The engine is stateless after construction and safe to reuse.
type Renderer struct {
	engine goldmark.Markdown
}

// NewRenderer builds a renderer with tables and strikethrough enabled.
// Raw HTML in the note is dropped unless unsafeHTML is set.
func NewRenderer(unsafeHTML bool) *Renderer {
	var rendererOptions []goldmark.Option
	if unsafeHTML {
		rendererOptions = append(rendererOptions, goldmark.WithRendererOptions(html.WithUnsafe()))
	}
	opts := append([]goldmark.Option{
		goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	}, rendererOptions...)
	return &Renderer{engine: goldmark.New(opts...)}
}

// Render returns the HTML for a Markdown body.
func (r *Renderer) Render(body string) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("markdown render: %w", err)
	}
	return buf.String(), nil
}
