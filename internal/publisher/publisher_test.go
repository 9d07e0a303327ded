package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ghost-publish/internal/ghost"
	"ghost-publish/internal/markdown"
	"ghost-publish/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "6489f1ab:0123456789abcdef0123456789abcdef"

type memNote struct {
	name     string
	content  string
	fm       map[string]any
	updates  int
	writeErr error
}

func newMemNote(t *testing.T, name, content string) *memNote {
	t.Helper()
	doc, err := markdown.Parse([]byte(content))
	require.NoError(t, err)
	return &memNote{name: name, content: content, fm: doc.Frontmatter}
}

func (n *memNote) Basename() string            { return n.name }
func (n *memNote) Content() string             { return n.content }
func (n *memNote) Frontmatter() map[string]any { return n.fm }
func (n *memNote) UpdateFrontmatter(fn func(fm map[string]any)) error {
	if n.writeErr != nil {
		return n.writeErr
	}
	n.updates++
	next := map[string]any{}
	for k, v := range n.fm {
		next[k] = v
	}
	fn(next)
	n.fm = next
	return nil
}

type notices struct {
	mu  sync.Mutex
	all []Notice
}

func (c *notices) Notify(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, n)
}

func (c *notices) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.all))
	for _, n := range c.all {
		out = append(out, n.Message)
	}
	return out
}

type call struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string][]map[string]any
}

// fakeGhost records calls and answers from the handler map keyed by method.
type fakeGhost struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	srv      *httptest.Server
}

func newFakeGhost(t *testing.T) *fakeGhost {
	t.Helper()
	f := &fakeGhost{handlers: map[string]func(http.ResponseWriter, *http.Request){}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &c.Body)
		}
		f.mu.Lock()
		f.calls = append(f.calls, c)
		h := f.handlers[r.Method]
		f.mu.Unlock()
		if h == nil {
			http.Error(w, "unexpected", http.StatusTeapot)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGhost) on(method, body string, status int) {
	f.handlers[method] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeGhost) client() *ghost.Client {
	return ghost.New(f.srv.URL, 2*time.Second)
}

func (f *fakeGhost) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

const successBody = `{"posts":[{"id":"abc","url":"http://x/p","updated_at":"2024-01-01T00:00:00Z","title":"T","status":"draft"}]}`

func TestInvalidCredentialsMakesNoCalls(t *testing.T) {
	for _, key := range []string{"", "no-colon-here", "abcdef0123"} {
		t.Run(key, func(t *testing.T) {
			fg := newFakeGhost(t)
			n := &notices{}
			note := newMemNote(t, "post", "---\ntitle: T\n---\nbody\n")

			out := New(fg.client(), n).Publish(context.Background(), note, key)

			assert.Equal(t, KindInvalidCredentials, out.Kind)
			assert.Empty(t, fg.recorded())
			assert.Equal(t, []string{InvalidKeyMessage}, n.messages())
			assert.Equal(t, []State{StateIdle, StateValidatingCredentials, StateDone}, out.States)
			assert.Zero(t, note.updates)
		})
	}
}

func TestCreateMakesOneCallAndWritesBack(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, successBody, http.StatusCreated)
	n := &notices{}
	note := newMemNote(t, "My Note", "---\ntags: [go, ghost]\nexcerpt: Short\n---\n# Hello\n")

	out := New(fg.client(), n).Publish(context.Background(), note, validKey)

	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	calls := fg.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/ghost/api/v4/admin/posts/", calls[0].Path)
	assert.Equal(t, "source=html", calls[0].Query)
	assert.True(t, strings.HasPrefix(calls[0].Auth, "Ghost "))

	sent := calls[0].Body["posts"][0]
	assert.Equal(t, "My Note", sent["title"])
	assert.Equal(t, []any{map[string]any{"name": "go"}, map[string]any{"name": "ghost"}}, sent["tags"])
	assert.Equal(t, "draft", sent["status"])
	assert.Equal(t, false, sent["featured"])
	assert.Equal(t, "Short", sent["custom_excerpt"])
	assert.NotContains(t, sent, "feature_image")
	assert.NotContains(t, sent, "updated_at")
	assert.Contains(t, sent["html"], "<h1>Hello</h1>")

	assert.Equal(t, "abc", note.fm[KeyGhostID])
	assert.Equal(t, "http://x/p", note.fm[KeyGhostURL])
	assert.Equal(t, "2024-01-01T00:00:00Z", note.fm[KeyGhostUpdatedAt])
	require.Len(t, n.messages(), 1)
	assert.Contains(t, n.messages()[0], `"T"`)
	assert.Contains(t, n.messages()[0], "draft")
	assert.True(t, out.Created)
	assert.Equal(t, []State{
		StateIdle, StateValidatingCredentials, StateBuildingToken, StateExtractingMetadata,
		StateCreate, StateTransmitting, StateWritingBack, StateDone,
	}, out.States)
}

func TestUpdateCarriesUpdatedAtForward(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodGet, `{"posts":[{"id":"abc","updated_at":"2023-05-05T10:00:00.000Z"}]}`, http.StatusOK)
	fg.on(http.MethodPut, successBody, http.StatusOK)
	note := newMemNote(t, "post", "---\ntitle: T\nghost_id: abc\npublished: true\n---\nbody\n")

	out := New(fg.client(), &notices{}).Publish(context.Background(), note, validKey)

	require.Equal(t, KindSuccess, out.Kind, "err: %v", out.Err)
	calls := fg.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/ghost/api/v4/admin/posts/abc/", calls[0].Path)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	assert.Equal(t, "/ghost/api/v4/admin/posts/abc/", calls[1].Path)
	assert.Equal(t, "source=html", calls[1].Query)
	sent := calls[1].Body["posts"][0]
	assert.Equal(t, "2023-05-05T10:00:00.000Z", sent["updated_at"])
	assert.Equal(t, "published", sent["status"])
	assert.False(t, out.Created)
	assert.Equal(t, "2023-05-05T10:00:00.000Z", out.Sent.UpdatedAt)
	assert.Contains(t, out.States, StateFetchingExisting)
	assert.Contains(t, out.States, StateUpdate)
}

func TestUpdateWithoutExistingPostOmitsUpdatedAt(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "read fails", body: `oops`, status: http.StatusInternalServerError},
		{name: "no post", body: `{"posts":[]}`, status: http.StatusOK},
		{name: "not found", body: `{"errors":[{"message":"Post not found."}]}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newFakeGhost(t)
			fg.on(http.MethodGet, tt.body, tt.status)
			fg.on(http.MethodPut, successBody, http.StatusOK)
			note := newMemNote(t, "post", "---\nghost_id: abc\n---\nbody\n")

			out := New(fg.client(), &notices{}).Publish(context.Background(), note, validKey)

			require.Equal(t, KindSuccess, out.Kind)
			calls := fg.recorded()
			require.Len(t, calls, 2)
			assert.NotContains(t, calls[1].Body["posts"][0], "updated_at")
		})
	}
}

func TestApplicationErrorReportsMessageAndDetail(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, `{"errors":[{"message":"Validation failed","details":[{"message":"must be unique","params":{"allowedValues":["a","b"]}}]}]}`, http.StatusUnprocessableEntity)
	n := &notices{}
	note := newMemNote(t, "post", "body\n")

	out := New(fg.client(), n).Publish(context.Background(), note, validKey)

	assert.Equal(t, KindApplicationError, out.Kind)
	var apiErr *APIError
	require.True(t, errors.As(out.Err, &apiErr))
	msgs := n.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "Validation failed")
	assert.Contains(t, msgs[1], "must be unique")
	assert.Contains(t, msgs[1], "a,b")
	assert.Zero(t, note.updates)
	assert.Contains(t, out.States, StateReporting)
}

func TestApplicationErrorPrefersContextAndFlagsEmptyDetails(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, `{"errors":[{"message":"Validation error","context":"Title is too long","details":[]}]}`, http.StatusOK)
	n := &notices{}

	out := New(fg.client(), n).Publish(context.Background(), newMemNote(t, "post", "body\n"), validKey)

	assert.Equal(t, KindApplicationError, out.Kind)
	assert.Equal(t, []string{"Title is too long", NoDetailsMessage}, n.messages())
}

func TestApplicationErrorWithoutDetails(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, `{"errors":[{"message":"Request not understood"}]}`, http.StatusBadRequest)
	n := &notices{}

	out := New(fg.client(), n).Publish(context.Background(), newMemNote(t, "post", "body\n"), validKey)

	assert.Equal(t, KindApplicationError, out.Kind)
	assert.Equal(t, []string{"Request not understood"}, n.messages())
}

func TestTransportFailureReportsOnceWithoutWriteBack(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	n := &notices{}
	note := newMemNote(t, "post", "---\ntitle: T\n---\nbody\n")
	out := New(ghost.New("http://"+addr, time.Second), n).Publish(context.Background(), note, validKey)

	assert.Equal(t, KindTransportError, out.Kind)
	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], ConnectionHint)
	assert.Contains(t, msgs[0], ghost.CategoryConnectionRefused)
	assert.Zero(t, note.updates)
	assert.Equal(t, "T", note.fm["title"])
	assert.NotContains(t, note.fm, KeyGhostID)
}

func TestTransportFailureOnUpdateWrite(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodGet, `{"posts":[{"id":"abc","updated_at":"2023-05-05T10:00:00.000Z"}]}`, http.StatusOK)
	fg.handlers[http.MethodPut] = func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
	n := &notices{}
	note := newMemNote(t, "post", "---\ntitle: T\nghost_id: abc\n---\nbody\n")

	out := New(fg.client(), n).Publish(context.Background(), note, validKey)

	assert.Equal(t, KindTransportError, out.Kind)
	calls := fg.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPut, calls[1].Method)
	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], ConnectionHint)
	assert.Zero(t, note.updates)
	assert.NotContains(t, note.fm, KeyGhostURL)
	assert.Contains(t, out.States, StateUpdate)
	assert.Contains(t, out.States, StateReporting)
}

func TestWriteBackFailureStillSucceeds(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, successBody, http.StatusOK)
	n := &notices{}
	note := newMemNote(t, "post", "body\n")
	note.writeErr = errors.New("disk full")

	out := New(fg.client(), n).Publish(context.Background(), note, validKey)

	assert.True(t, out.OK())
	require.Error(t, out.WriteBackErr)
	msgs := n.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "disk full")
	assert.Equal(t, LevelWarn, n.all[1].Level)
}

func TestUnexpectedResponse(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, `{}`, http.StatusOK)
	n := &notices{}

	out := New(fg.client(), n).Publish(context.Background(), newMemNote(t, "post", "body\n"), validKey)

	assert.Equal(t, KindApplicationError, out.Kind)
	assert.ErrorIs(t, out.Err, ErrUnexpectedResponse)
	assert.Equal(t, []string{UnexpectedResponse}, n.messages())
}

type fakeRecorder struct{ recs []model.PublishRecord }

func (f *fakeRecorder) Record(_ context.Context, rec model.PublishRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

type fakeExcerpts struct{ calls int }

func (f *fakeExcerpts) WriteExcerpt(_ context.Context, title, body, language string) (string, error) {
	f.calls++
	return " Generated for " + title + ". ", nil
}

func TestOptionalCollaborators(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, successBody, http.StatusOK)
	rec := &fakeRecorder{}
	ex := &fakeExcerpts{}
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p := New(fg.client(), &notices{}, WithRecorder(rec), WithExcerptWriter(ex, "English"), WithClock(func() time.Time { return fixed }))
	out := p.Publish(context.Background(), newMemNote(t, "post", "---\ntitle: Hello\n---\nbody\n"), validKey)

	require.True(t, out.OK())
	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, "Generated for Hello.", fg.recorded()[0].Body["posts"][0]["custom_excerpt"])
	require.Len(t, rec.recs, 1)
	assert.Equal(t, "abc", rec.recs[0].PostID)
	assert.True(t, rec.recs[0].Created)
	assert.Equal(t, fixed, rec.recs[0].PublishedAt)
}

type fakeUploader struct {
	name, contentType string
	size              int
}

func (f *fakeUploader) UploadImage(_ context.Context, _, filename, contentType string, data []byte) (string, error) {
	f.name, f.contentType, f.size = filename, contentType, len(data)
	return "https://blog/content/images/" + filename, nil
}

func TestLocalFeatureImageIsUploaded(t *testing.T) {
	tmp := t.TempDir()
	// A WebP file is passed through unchanged, so any bytes will do.
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "cover.webp"), []byte("RIFF0000WEBP"), 0o644))
	notePath := filepath.Join(tmp, "post.md")
	require.NoError(t, os.WriteFile(notePath, []byte("---\nfeature_image: cover.webp\n---\nbody\n"), 0o644))
	note, err := markdown.OpenNote(notePath)
	require.NoError(t, err)

	fg := newFakeGhost(t)
	fg.on(http.MethodPost, successBody, http.StatusOK)
	up := &fakeUploader{}

	out := New(fg.client(), &notices{}, WithImageUploader(up, 80)).Publish(context.Background(), note, validKey)

	require.True(t, out.OK(), "err: %v", out.Err)
	assert.Equal(t, "cover.webp", up.name)
	assert.Equal(t, "image/webp", up.contentType)
	assert.Equal(t, "https://blog/content/images/cover.webp", fg.recorded()[0].Body["posts"][0]["feature_image"])
	assert.Equal(t, "abc", note.Frontmatter()[KeyGhostID])
	assert.Equal(t, "cover.webp", note.Frontmatter()[KeyFeatureImage])
}

func TestUpdateSkipsExcerptAndImageUpload(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "cover.webp"), []byte("RIFF0000WEBP"), 0o644))
	notePath := filepath.Join(tmp, "post.md")
	require.NoError(t, os.WriteFile(notePath, []byte("---\nghost_id: abc\nfeature_image: cover.webp\n---\nbody\n"), 0o644))
	note, err := markdown.OpenNote(notePath)
	require.NoError(t, err)

	fg := newFakeGhost(t)
	fg.on(http.MethodGet, `{"posts":[{"id":"abc","updated_at":"2023-05-05T10:00:00.000Z"}]}`, http.StatusOK)
	fg.on(http.MethodPut, successBody, http.StatusOK)
	up := &fakeUploader{}
	ex := &fakeExcerpts{}

	out := New(fg.client(), &notices{}, WithImageUploader(up, 80), WithExcerptWriter(ex, "")).Publish(context.Background(), note, validKey)

	require.True(t, out.OK(), "err: %v", out.Err)
	assert.Empty(t, up.name)
	assert.Zero(t, ex.calls)
	calls := fg.recorded()
	require.Len(t, calls, 2)
	sent := calls[1].Body["posts"][0]
	assert.NotContains(t, sent, "feature_image")
	assert.NotContains(t, sent, "custom_excerpt")
	assert.Equal(t, "cover.webp", note.Frontmatter()[KeyFeatureImage])
}

type fakeRenderer struct {
	bodies []string
	err    error
}

func (f *fakeRenderer) Render(body string) (string, error) {
	f.bodies = append(f.bodies, body)
	return "<p>rendered</p>", f.err
}

func TestInjectedRenderer(t *testing.T) {
	fg := newFakeGhost(t)
	fg.on(http.MethodPost, successBody, http.StatusOK)
	r := &fakeRenderer{}

	out := New(fg.client(), &notices{}, WithRenderer(r)).Publish(context.Background(), newMemNote(t, "post", "---\ntitle: T\n---\n# Body\n"), validKey)

	require.True(t, out.OK(), "err: %v", out.Err)
	assert.Equal(t, []string{"# Body\n"}, r.bodies)
	assert.Equal(t, "<p>rendered</p>", fg.recorded()[0].Body["posts"][0]["html"])
}

func TestRenderFailureIsInvalidNote(t *testing.T) {
	fg := newFakeGhost(t)
	n := &notices{}
	r := &fakeRenderer{err: errors.New("bad markdown")}

	out := New(fg.client(), n, WithRenderer(r)).Publish(context.Background(), newMemNote(t, "post", "body\n"), validKey)

	assert.Equal(t, KindInvalidNote, out.Kind)
	assert.Empty(t, fg.recorded())
	require.Len(t, n.messages(), 1)
	assert.Contains(t, n.messages()[0], "bad markdown")
}

func TestPreview(t *testing.T) {
	p := New(nil, nil)
	post, id, err := p.Preview(newMemNote(t, "post", "---\nghost_id: xyz\nfeatured: true\n---\n*hi*\n"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", id)
	assert.True(t, post.Featured)
	assert.Equal(t, "post", post.Title)
	assert.Contains(t, post.HTML, "<em>hi</em>")
}
