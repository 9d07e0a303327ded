package publisher

import (
	"fmt"
	"strconv"
	"strings"

	"ghost-publish/internal/ghost"
)

// Front-matter keys read from and written to the note.
const (
	KeyTitle          = "title"
	KeyTags           = "tags"
	KeyFeatured       = "featured"
	KeyPublished      = "published"
	KeyExcerpt        = "excerpt"
	KeyFeatureImage   = "feature_image"
	KeyGhostID        = "ghost_id"
	KeyGhostURL       = "ghost_url"
	KeyGhostUpdatedAt = "ghost_updated_at"
)

const (
	StatusPublished = "published"
	StatusDraft     = "draft"
)

// BuildPost maps front matter and rendered HTML onto a post payload.
// basename is the title fallback. UpdatedAt is never set here.
func BuildPost(fm map[string]any, basename, html string) ghost.Post {
	post := ghost.Post{
		Title:    basename,
		Tags:     tagList(fm[KeyTags]),
		Featured: truthy(fm[KeyFeatured]),
		Status:   StatusDraft,
		HTML:     html,
	}
	if truthy(fm[KeyTitle]) {
		post.Title = stringValue(fm[KeyTitle])
	}
	if truthy(fm[KeyPublished]) {
		post.Status = StatusPublished
	}
	if truthy(fm[KeyExcerpt]) {
		post.CustomExcerpt = stringValue(fm[KeyExcerpt])
	}
	if truthy(fm[KeyFeatureImage]) {
		post.FeatureImage = stringValue(fm[KeyFeatureImage])
	}
	return post
}

// RemoteID returns the note's remote post identifier, or "" for a note that
// was never published.
func RemoteID(fm map[string]any) string {
	if !truthy(fm[KeyGhostID]) {
		return ""
	}
	return strings.TrimSpace(stringValue(fm[KeyGhostID]))
}

// tagList accepts a YAML list or a single comma-separated string.
func tagList(v any) []ghost.Tag {
	tags := []ghost.Tag{}
	if !truthy(v) {
		return tags
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			tags = append(tags, ghost.Tag{Name: stringValue(item)})
		}
	case []string:
		for _, item := range t {
			tags = append(tags, ghost.Tag{Name: item})
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, ghost.Tag{Name: part})
			}
		}
	default:
		tags = append(tags, ghost.Tag{Name: stringValue(t)})
	}
	return tags
}

// truthy follows the loose rules note front matter is written with:
// false, nil, "", and numeric zero are false; anything else is true.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	default:
		return true
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
