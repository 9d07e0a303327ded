package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ghost-publish/internal/ai"
	"ghost-publish/internal/ghost"
	"ghost-publish/internal/images"
	"ghost-publish/internal/markdown"
	"ghost-publish/internal/model"
)

// User-facing notice texts.
const (
	InvalidKeyMessage  = "Error: Ghost API Key is invalid."
	ConnectionHint     = "Couldn't connect to the Ghost API. Is the API URL and Admin API Key correct?"
	NoDetailsMessage   = "Ghost did not supply any validation details."
	UnexpectedResponse = "Ghost returned an unexpected response."
)

// Note is the editor-side view of the note being published.
type Note interface {
	// Basename is the file name without extension.
	Basename() string
	// Content is the raw note text including front matter.
	Content() string
	// Frontmatter is the cached, already parsed front matter.
	Frontmatter() map[string]any
	// UpdateFrontmatter persists fn's changes atomically.
	UpdateFrontmatter(fn func(fm map[string]any)) error
}

// PostsAPI is the part of the Ghost Admin API the publisher calls.
type PostsAPI interface {
	GetPost(ctx context.Context, token, id string) (*ghost.Response, error)
	CreatePost(ctx context.Context, token string, post ghost.Post) (*ghost.Response, error)
	UpdatePost(ctx context.Context, token, id string, post ghost.Post) (*ghost.Response, error)
}

// ImageUploader hosts a local feature image.
type ImageUploader interface {
	UploadImage(ctx context.Context, token, filename, contentType string, data []byte) (string, error)
}

// Renderer turns a Markdown body into HTML.
type Renderer interface {
	Render(body string) (string, error)
}

// Recorder keeps a history of successful publishes.
type Recorder interface {
	Record(ctx context.Context, rec model.PublishRecord) error
}

// Publisher publishes one note per call. It keeps no state between calls.
type Publisher struct {
	api      PostsAPI
	notifier Notifier
	renderer Renderer
	now      func() time.Time

	uploader    ImageUploader
	webpQuality int
	excerpts    ai.ExcerptWriter
	language    string
	recorder    Recorder
}

// Option is a functional option for configuring the publisher.
type Option func(*Publisher)

// WithRenderer replaces the default goldmark renderer.
func WithRenderer(r Renderer) Option {
	return func(p *Publisher) { p.renderer = r }
}

// WithClock sets the time source used for token signing.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// WithImageUploader enables uploading local feature images as WebP.
func WithImageUploader(u ImageUploader, quality int) Option {
	return func(p *Publisher) {
		p.uploader = u
		p.webpQuality = quality
	}
}

// WithExcerptWriter fills a missing excerpt with a generated one.
func WithExcerptWriter(w ai.ExcerptWriter, language string) Option {
	return func(p *Publisher) {
		p.excerpts = w
		p.language = language
	}
}

// WithRecorder records successful publishes.
func WithRecorder(r Recorder) Option {
	return func(p *Publisher) { p.recorder = r }
}

// New creates a publisher talking to api and reporting through n.
func New(api PostsAPI, n Notifier, opts ...Option) *Publisher {
	p := &Publisher{
		api:      api,
		notifier: n,
		renderer: markdown.NewRenderer(false),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = NotifierFunc(func(Notice) {})
	}
	return p
}

// Publish runs one publish of note using the admin key. It never returns an
// error: every failure is reported through the notifier and the outcome.
func (p *Publisher) Publish(ctx context.Context, note Note, adminKey string) Outcome {
	r := &run{p: p, note: note, rawKey: adminKey}
	state := StateIdle
	for state != StateDone {
		r.out.States = append(r.out.States, state)
		state = r.step(ctx, state)
	}
	r.out.States = append(r.out.States, StateDone)
	return r.out
}

// Preview builds the payload a publish would send, without any network call.
// The returned id is the remote post identifier, "" for a create.
func (p *Publisher) Preview(note Note) (ghost.Post, string, error) {
	fm := note.Frontmatter()
	post, _, err := p.buildPost(note, fm)
	if err != nil {
		return ghost.Post{}, "", err
	}
	return post, RemoteID(fm), nil
}

// buildPost parses and renders the note body and maps it onto a payload.
// It also returns the Markdown body.
func (p *Publisher) buildPost(note Note, fm map[string]any) (ghost.Post, string, error) {
	doc, err := markdown.Parse([]byte(note.Content()))
	if err != nil {
		return ghost.Post{}, "", fmt.Errorf("couldn't read the note: %w", err)
	}
	html, err := p.renderer.Render(doc.Body)
	if err != nil {
		return ghost.Post{}, "", fmt.Errorf("couldn't render the note: %w", err)
	}
	return BuildPost(fm, note.Basename(), html), doc.Body, nil
}

func (p *Publisher) notify(level Level, format string, args ...any) {
	p.notifier.Notify(Notice{Level: level, Message: fmt.Sprintf(format, args...)})
}

// run carries the state of a single Publish call.
type run struct {
	p      *Publisher
	note   Note
	rawKey string

	key     ghost.AdminKey
	token   string
	fm      map[string]any
	body    string
	post    ghost.Post
	remote  string
	resp    *ghost.Response
	sendErr error

	out Outcome
}

func (r *run) step(ctx context.Context, s State) State {
	switch s {
	case StateIdle:
		return StateValidatingCredentials
	case StateValidatingCredentials:
		return r.validateCredentials()
	case StateBuildingToken:
		return r.buildToken()
	case StateExtractingMetadata:
		return r.extractMetadata(ctx)
	case StateCreate:
		r.out.Created = true
		return StateTransmitting
	case StateFetchingExisting:
		return r.fetchExisting(ctx)
	case StateUpdate:
		return StateTransmitting
	case StateTransmitting:
		return r.transmit(ctx)
	case StateWritingBack:
		return r.writeBack(ctx)
	case StateReporting:
		return r.report()
	default:
		return StateDone
	}
}

func (r *run) validateCredentials() State {
	key, err := ghost.ParseAdminKey(r.rawKey)
	if err != nil {
		slog.Warn("publish: invalid admin key", "error", err)
		r.fail(KindInvalidCredentials, err)
		r.p.notify(LevelError, InvalidKeyMessage)
		return StateDone
	}
	r.key = key
	return StateBuildingToken
}

func (r *run) buildToken() State {
	token, err := ghost.SignToken(r.key, r.p.now())
	if err != nil {
		r.fail(KindInvalidCredentials, err)
		r.p.notify(LevelError, InvalidKeyMessage)
		return StateDone
	}
	r.token = token
	return StateExtractingMetadata
}

func (r *run) extractMetadata(ctx context.Context) State {
	r.fm = r.note.Frontmatter()
	if r.fm == nil {
		r.fm = map[string]any{}
	}
	post, body, err := r.p.buildPost(r.note, r.fm)
	if err != nil {
		slog.Error("publish: note unreadable", "note", r.note.Basename(), "error", err)
		r.fail(KindInvalidNote, err)
		r.p.notify(LevelError, "Error: %v", err)
		return StateDone
	}
	r.post, r.body = post, body

	r.remote = RemoteID(r.fm)
	r.out.PostID = r.remote
	if r.remote != "" {
		r.keepHostedFeatureImage()
		return StateFetchingExisting
	}
	r.writeExcerpt(ctx)
	r.uploadFeatureImage(ctx)
	return StateCreate
}

// keepHostedFeatureImage leaves a local feature_image out of an update so
// Ghost keeps the copy uploaded when the post was created.
func (r *run) keepHostedFeatureImage() {
	ref := r.post.FeatureImage
	if r.p.uploader == nil || ref == "" || images.IsRemote(ref) {
		return
	}
	slog.Debug("publish: local feature image not re-uploaded on update", "id", r.remote, "ref", ref)
	r.post.FeatureImage = ""
}

// writeExcerpt fills a missing excerpt of a new post when an excerpt writer
// is configured.
func (r *run) writeExcerpt(ctx context.Context) {
	if r.p.excerpts == nil || r.post.CustomExcerpt != "" {
		return
	}
	excerpt, err := r.p.excerpts.WriteExcerpt(ctx, r.post.Title, r.body, r.p.language)
	if err != nil {
		slog.Warn("publish: excerpt generation failed", "title", r.post.Title, "error", err)
		return
	}
	r.post.CustomExcerpt = strings.TrimSpace(excerpt)
}

// uploadFeatureImage replaces a local feature_image reference with a hosted URL.
func (r *run) uploadFeatureImage(ctx context.Context) {
	ref := r.post.FeatureImage
	if r.p.uploader == nil || ref == "" || images.IsRemote(ref) {
		return
	}
	dirNote, ok := r.note.(interface{ Dir() string })
	if !ok {
		return
	}
	path, ok := images.Resolve(dirNote.Dir(), ref)
	if !ok {
		return
	}
	enc, err := images.ToWebP(path, r.p.webpQuality)
	if err == nil {
		var hosted string
		hosted, err = r.p.uploader.UploadImage(ctx, r.token, enc.Name, enc.ContentType, enc.Data)
		if err == nil {
			slog.Info("publish: feature image uploaded", "path", path, "url", hosted)
			r.post.FeatureImage = hosted
			return
		}
	}
	slog.Warn("publish: feature image upload failed", "path", path, "error", err)
	r.p.notify(LevelWarn, "Feature image %s was not uploaded and is left out: %v", ref, err)
	r.post.FeatureImage = ""
}

// fetchExisting reads the server's current updated_at so the update is not
// rejected as a conflict. Failure here is not fatal.
func (r *run) fetchExisting(ctx context.Context) State {
	resp, err := r.p.api.GetPost(ctx, r.token, r.remote)
	switch {
	case err != nil:
		slog.Warn("publish: fetch existing post failed", "id", r.remote, "category", ghost.Category(err), "error", err)
	case resp == nil:
		slog.Warn("publish: existing post not returned", "id", r.remote)
	case len(resp.Posts) == 0 || resp.Posts[0].UpdatedAt == "":
		slog.Warn("publish: existing post not returned", "id", r.remote, "status", resp.StatusCode)
	default:
		r.post.UpdatedAt = resp.Posts[0].UpdatedAt
		slog.Debug("publish: carrying updated_at forward", "id", r.remote, "updated_at", r.post.UpdatedAt)
	}
	return StateUpdate
}

func (r *run) transmit(ctx context.Context) State {
	if r.remote != "" {
		r.resp, r.sendErr = r.p.api.UpdatePost(ctx, r.token, r.remote, r.post)
	} else {
		r.resp, r.sendErr = r.p.api.CreatePost(ctx, r.token, r.post)
	}
	r.out.Sent = r.post
	if r.sendErr == nil && r.resp != nil && len(r.resp.Posts) > 0 {
		return StateWritingBack
	}
	return StateReporting
}

func (r *run) writeBack(ctx context.Context) State {
	published := r.resp.Posts[0]
	r.out.Kind = KindSuccess
	r.out.Post = &published
	r.out.PostID = published.ID
	slog.Info("publish: post saved", "id", published.ID, "title", published.Title, "status", published.Status, "created", r.out.Created)
	r.p.notify(LevelInfo, "%q has been saved to Ghost as %s.", published.Title, published.Status)

	err := r.note.UpdateFrontmatter(func(fm map[string]any) {
		fm[KeyGhostID] = published.ID
		fm[KeyGhostURL] = published.URL
		fm[KeyGhostUpdatedAt] = published.UpdatedAt
	})
	if err != nil {
		r.out.WriteBackErr = err
		slog.Error("publish: front matter write-back failed", "id", published.ID, "error", err)
		r.p.notify(LevelWarn, "The post was saved, but ghost_id could not be written to the note: %v", err)
	}
	r.record(ctx, published)
	return StateDone
}

func (r *run) record(ctx context.Context, published ghost.RemotePost) {
	if r.p.recorder == nil {
		return
	}
	rec := model.PublishRecord{
		PostID:      published.ID,
		URL:         published.URL,
		Title:       published.Title,
		Status:      published.Status,
		UpdatedAt:   published.UpdatedAt,
		Created:     r.out.Created,
		PublishedAt: r.p.now().UTC(),
	}
	if pn, ok := r.note.(interface{ Path() string }); ok {
		rec.NotePath = pn.Path()
	}
	if err := r.p.recorder.Record(ctx, rec); err != nil {
		slog.Warn("publish: history record failed", "id", published.ID, "error", err)
	}
}

func (r *run) report() State {
	if r.sendErr != nil {
		category := ghost.Category(r.sendErr)
		slog.Error("publish: request failed", "category", category, "error", r.sendErr)
		r.fail(KindTransportError, r.sendErr)
		r.p.notify(LevelError, "%s\n\n%s: %s", ConnectionHint, category, r.sendErr.Error())
		return StateDone
	}

	resp := r.resp
	if resp == nil || len(resp.Errors) == 0 {
		r.fail(KindApplicationError, ErrUnexpectedResponse)
		r.p.notify(LevelError, UnexpectedResponse)
		return StateDone
	}

	first := resp.Errors[0]
	msg := first.Context
	if msg == "" {
		msg = first.Message
	}
	r.fail(KindApplicationError, &APIError{Errors: resp.Errors})
	slog.Error("publish: ghost rejected the post", "status", resp.StatusCode, "message", first.Message, "context", first.Context)
	r.p.notify(LevelError, "%s", msg)
	switch {
	case first.Details == nil:
	case len(first.Details) == 0:
		r.p.notify(LevelError, NoDetailsMessage)
	default:
		r.p.notify(LevelError, "%s", formatDetail(first.Details[0]))
	}
	return StateDone
}

func (r *run) fail(kind Kind, err error) {
	r.out.Kind = kind
	r.out.Err = err
}

func formatDetail(d ghost.ErrorDetail) string {
	if len(d.Params.AllowedValues) == 0 {
		return d.Message
	}
	vals := make([]string, 0, len(d.Params.AllowedValues))
	for _, v := range d.Params.AllowedValues {
		vals = append(vals, stringValue(v))
	}
	return d.Message + " - " + strings.Join(vals, ",")
}
