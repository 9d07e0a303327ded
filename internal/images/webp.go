package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
)

// Encoded is an image ready for upload.
type Encoded struct {
	Name        string
	ContentType string
	Data        []byte
}

// IsRemote reports whether ref is already a hosted image URL.
func IsRemote(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "//")
}

// Resolve maps a front-matter image reference onto a local file. Relative
// references are taken from the note's directory; wiki-style "[[x.png]]"
// embeds are unwrapped.
func Resolve(noteDir, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "!")
	ref = strings.TrimSuffix(strings.TrimPrefix(ref, "[["), "]]")
	if ref == "" || IsRemote(ref) {
		return "", false
	}
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(noteDir, p)
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", false
	}
	return p, true
}

// ToWebP reads a PNG, JPEG or GIF file and re-encodes it as WebP at the
// given quality (1-100). Files that already are WebP are passed through.
func ToWebP(path string, quality int) (Encoded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return Encoded{}, errors.New("image file is empty")
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := base + ".webp"
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return Encoded{Name: name, ContentType: "image/webp", Data: raw}, nil
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Encoded{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	slog.Debug("images: decoded",
		"path", path,
		"format", format,
		"width", bounds.Dx(),
		"height", bounds.Dy(),
	)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return Encoded{}, fmt.Errorf("encode webp: %w", err)
	}
	slog.Info("images: converted to webp", "path", path, "bytes_in", len(raw), "bytes_out", buf.Len(), "quality", quality)
	return Encoded{Name: name, ContentType: "image/webp", Data: buf.Bytes()}, nil
}
