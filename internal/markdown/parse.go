package markdown

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
)

// Document represents a Markdown note with front matter.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// Parse splits raw note text into front matter and body.
// YAML ("---"), TOML ("+++") and JSON ("{" ... "}") blocks are recognised.
// Text without front matter yields an empty map and the whole text as body.
// A leading byte order mark is ignored.
func Parse(src []byte) (Document, error) {
	src = bytes.TrimPrefix(src, []byte("\ufeff"))
	fm := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(src), &fm)
	if err != nil {
		return Document{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return Document{Frontmatter: normalize(fm).(map[string]any), Body: string(body)}, nil
}

// normalize converts YAML's map[interface{}]interface{} values into
// map[string]any so callers only deal with one map type.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
