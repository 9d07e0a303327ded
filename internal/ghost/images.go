package ghost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

type imageUploadResponse struct {
	Images []struct {
		URL string `json:"url"`
		Ref string `json:"ref"`
	} `json:"images"`
	Errors []APIError `json:"errors"`
}

// UploadImage uploads image bytes and returns the hosted URL.
// API: POST /ghost/api/v4/admin/images/upload/ (multipart field "file")
func (c *Client) UploadImage(ctx context.Context, token, filename, contentType string, data []byte) (string, error) {
	if c == nil {
		return "", errors.New("nil ghost client")
	}
	if strings.TrimSpace(filename) == "" {
		return "", errors.New("empty image file name")
	}
	if len(data) == 0 {
		return "", errors.New("empty image data")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.WriteField("ref", filename); err != nil {
		return "", fmt.Errorf("write ref field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.adminURL("/images/upload/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	authorize(req, token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}
	var out imageUploadResponse
	decodeErr := json.Unmarshal(b, &out)
	if len(out.Errors) > 0 {
		return "", fmt.Errorf("upload image rejected: %s", out.Errors[0].Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Method: req.Method, URL: endpoint, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode upload response: %w", decodeErr)
	}
	if len(out.Images) == 0 || strings.TrimSpace(out.Images[0].URL) == "" {
		return "", errors.New("upload response missing image url")
	}
	return out.Images[0].URL, nil
}
