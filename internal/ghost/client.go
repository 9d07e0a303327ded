package ghost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Tag is a post tag as the Admin API expects it.
type Tag struct {
	Name string `json:"name"`
}

// Post is the payload sent on create and update.
type Post struct {
	Title         string `json:"title"`
	Tags          []Tag  `json:"tags"`
	Featured      bool   `json:"featured"`
	Status        string `json:"status"`
	CustomExcerpt string `json:"custom_excerpt,omitempty"`
	FeatureImage  string `json:"feature_image,omitempty"`
	HTML          string `json:"html"`
	// UpdatedAt must echo the server's current value on update.
	UpdatedAt string `json:"updated_at,omitempty"`
}

// RemotePost is the subset of a returned post used by this tool.
type RemotePost struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// ErrorDetail is a single validation detail of an API error.
type ErrorDetail struct {
	Message string `json:"message"`
	Params  struct {
		AllowedValues []any `json:"allowedValues"`
	} `json:"params"`
}

// APIError is one entry of an error response.
type APIError struct {
	Message string `json:"message"`
	Context string `json:"context"`
	Type    string `json:"type,omitempty"`
	// Details is nil when the field is absent and empty when sent as [].
	Details []ErrorDetail `json:"details"`
}

// Response is the decoded body of a posts request. Exactly one of Posts or
// Errors is normally set.
type Response struct {
	StatusCode int          `json:"-"`
	Posts      []RemotePost `json:"posts"`
	Errors     []APIError   `json:"errors"`
}

// HasPosts reports whether the body carried a posts list.
func (r *Response) HasPosts() bool {
	return r != nil && r.Posts != nil
}

// HasErrors reports whether the body carried an errors list.
func (r *Response) HasErrors() bool {
	return r != nil && r.Errors != nil
}

// StatusError is returned for non-2xx responses without a structured error body.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client is a minimal HTTP client for the Ghost Admin API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a new Ghost client.
// baseURL is the site root like "https://blog.example.com" (no /ghost suffix).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) adminURL(path string) string {
	return c.baseURL + "/ghost/api/" + APIVersion + "/admin" + path
}

// GetPost fetches an existing post by id.
// API: GET /ghost/api/v4/admin/posts/{id}/
func (c *Client) GetPost(ctx context.Context, token, id string) (*Response, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("empty post id")
	}
	return c.postsRequest(ctx, http.MethodGet, c.adminURL("/posts/"+url.PathEscape(id)+"/"), token, nil)
}

// CreatePost creates a post from HTML.
// API: POST /ghost/api/v4/admin/posts/?source=html
func (c *Client) CreatePost(ctx context.Context, token string, post Post) (*Response, error) {
	return c.postsRequest(ctx, http.MethodPost, c.adminURL("/posts/?source=html"), token, &post)
}

// UpdatePost replaces a post by id. post.UpdatedAt must match the server's value.
// API: PUT /ghost/api/v4/admin/posts/{id}/?source=html
func (c *Client) UpdatePost(ctx context.Context, token, id string, post Post) (*Response, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("empty post id")
	}
	return c.postsRequest(ctx, http.MethodPut, c.adminURL("/posts/"+url.PathEscape(id)+"/?source=html"), token, &post)
}

func (c *Client) postsRequest(ctx context.Context, method, endpoint, token string, post *Post) (*Response, error) {
	if c == nil {
		return nil, errors.New("nil ghost client")
	}
	var body io.Reader = http.NoBody
	if post != nil {
		b, err := json.Marshal(map[string][]Post{"posts": {*post}})
		if err != nil {
			return nil, fmt.Errorf("encode post: %w", err)
		}
		slog.Debug("ghost: request", "method", method, "url", endpoint, "body", string(b))
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	authorize(req, token)
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	return c.do(req)
}

func authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Ghost "+token)
	req.Header.Set("Accept-Version", APIVersion+".0")
}

// do sends req and decodes a posts/errors envelope. Error envelopes are
// returned as a Response regardless of status so callers can report them.
func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	slog.Debug("ghost: response", "method", req.Method, "url", req.URL.String(), "status", resp.StatusCode, "body", string(b))

	out := &Response{StatusCode: resp.StatusCode}
	decodeErr := json.Unmarshal(b, out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.HasErrors() {
			return out, nil
		}
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: string(b)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return out, nil
}
