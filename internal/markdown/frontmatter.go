package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const yamlDelim = "---"

// ErrUnsupportedFrontmatter is returned when a note's front matter is not YAML
// and therefore cannot be rewritten in place.
var ErrUnsupportedFrontmatter = errors.New("only YAML front matter can be updated")

// UpdateFrontmatter applies fn to the note's YAML front matter and returns the
// rewritten note. Keys fn leaves untouched keep their position, style and
// comments; new keys are appended. Text around the block, including blank
// lines and the opening delimiter line, is kept as is. A note without front
// matter gains a block.
func UpdateFrontmatter(src []byte, fn func(fm map[string]any)) ([]byte, error) {
	head, block, body, found, err := splitYAML(src)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if strings.TrimSpace(block) != "" {
		if err := yaml.Unmarshal([]byte(block), &doc); err != nil {
			return nil, fmt.Errorf("decode frontmatter: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("frontmatter is not a mapping")
	}

	before := map[string]any{}
	if err := root.Decode(&before); err != nil {
		return nil, fmt.Errorf("decode frontmatter: %w", err)
	}
	after := make(map[string]any, len(before))
	for k, v := range before {
		after[k] = v
	}
	fn(after)

	for k := range before {
		if _, ok := after[k]; !ok {
			removeKey(root, k)
		}
	}
	for _, k := range mappingKeys(root) {
		if v, ok := after[k]; ok && !reflect.DeepEqual(v, before[k]) {
			if err := setKey(root, k, v); err != nil {
				return nil, err
			}
		}
	}
	for _, k := range sortedNewKeys(before, after) {
		if err := setKey(root, k, after[k]); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}

	if !found {
		head = yamlDelim + "\n"
	}
	var b bytes.Buffer
	b.WriteString(head)
	b.Write(out.Bytes())
	b.WriteString(yamlDelim + "\n")
	if !found && len(body) > 0 && !strings.HasPrefix(body, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(body)
	return b.Bytes(), nil
}

// splitYAML separates a leading YAML block from the rest of the note. The
// block is found the way Parse finds it: blank lines before the opening
// delimiter are skipped and delimiter lines are compared with surrounding
// whitespace trimmed. head is everything up to and including the opening
// delimiter line; found is false when the note has no front matter at all.
func splitYAML(src []byte) (head, block, body string, found bool, err error) {
	s := strings.TrimPrefix(string(src), "\ufeff")

	off := 0
	var open string
	for {
		line, _, hasNL := strings.Cut(s[off:], "\n")
		if !hasNL {
			// A last line on its own never opens a block.
			return "", "", s, false, nil
		}
		if open = strings.TrimSpace(line); open != "" {
			break
		}
		off += len(line) + 1
	}

	end, ok := closingDelims[open]
	if !ok {
		return "", "", s, false, nil
	}
	first, rest, _ := strings.Cut(s[off:], "\n")
	head = s[:off] + first + "\n"

	var fm strings.Builder
	for {
		line, next, hasNL := strings.Cut(rest, "\n")
		if strings.TrimSpace(line) == end {
			if open != yamlDelim && open != "---yaml" {
				return "", "", "", false, ErrUnsupportedFrontmatter
			}
			return head, fm.String(), next, true, nil
		}
		if !hasNL {
			// An unterminated block is not front matter.
			return "", "", s, false, nil
		}
		fm.WriteString(line)
		fm.WriteString("\n")
		rest = next
	}
}

// closingDelims maps each opening delimiter Parse recognises to its closing one.
var closingDelims = map[string]string{
	yamlDelim: yamlDelim,
	"---yaml": yamlDelim,
	"+++":     "+++",
	"---toml": yamlDelim,
	";;;":     ";;;",
	"---json": yamlDelim,
	"{":       "}",
}

func mappingKeys(m *yaml.Node) []string {
	keys := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys = append(keys, m.Content[i].Value)
	}
	return keys
}

func setKey(m *yaml.Node, key string, value any) error {
	var vn yaml.Node
	if err := vn.Encode(value); err != nil {
		return fmt.Errorf("encode frontmatter key %s: %w", key, err)
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			vn.HeadComment = m.Content[i+1].HeadComment
			vn.LineComment = m.Content[i+1].LineComment
			m.Content[i+1] = &vn
			return nil
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &vn)
	return nil
}

func removeKey(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

func sortedNewKeys(before, after map[string]any) []string {
	var keys []string
	for k := range after {
		if _, ok := before[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
