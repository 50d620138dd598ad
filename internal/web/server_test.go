package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoe-concept-studio/internal/generation"
	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/journal"
	"shoe-concept-studio/internal/request"
	"shoe-concept-studio/internal/session"
	"shoe-concept-studio/internal/studio"
)

type fakeClient struct {
	mu    sync.Mutex
	sent  []*request.GenerationRequest
	err   error
	ready chan struct{}
	block chan struct{}
}

func (f *fakeClient) Send(_ context.Context, req *request.GenerationRequest) (*generation.Result, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	err, ready, block := f.err, f.ready, f.block
	f.mu.Unlock()

	if ready != nil {
		close(ready)
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return &generation.Result{
		Images:     []imaging.Image{{Data: []byte("png"), MIMEType: "image/png"}},
		PromptUsed: req.Prompt,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
		ID:         "req_web",
	}, nil
}

func (f *fakeClient) last() *request.GenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeJournal struct {
	mu       sync.Mutex
	sessions []string
	records  []journal.Record
}

func (f *fakeJournal) Recent(_ context.Context, session string, limit int) ([]journal.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, session)
	return f.records[:min(limit, len(f.records))], nil
}

func newTestStack(client *fakeClient, j Journal) (http.Handler, *session.Store) {
	sessions := session.NewStore(session.Options{
		NewStudio: func(id string) *studio.Studio {
			return studio.New(studio.Options{Client: client, SessionID: id})
		},
	})
	return New(Options{
		Sessions: sessions,
		Journal:  j,
		Static:   fstest.MapFS{"index.html": {Data: []byte("<h1>studio</h1>")}},
	}).Routes(), sessions
}

func newTestServer(client *fakeClient) http.Handler {
	h, _ := newTestStack(client, nil)
	return h
}

func pngFile(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

type browser struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (b *browser) do(method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	b.t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if cs := rec.Result().Cookies(); len(cs) > 0 {
		b.cookies = cs
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestGenerateAndRegenerate(t *testing.T) {
	client := &fakeClient{}
	b := &browser{t: t, handler: newTestServer(client)}

	red := pngFile(t, color.RGBA{R: 255, A: 255})
	body, ct := multipartBody(t,
		map[string][]byte{"hardware": red, "part2": red},
		map[string]string{"prompt": " ladies ballerina ", "variations": "3", "preset": "flatlay"},
	)
	rec := b.do(http.MethodPost, "/api/generate", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, b.cookies)
	assert.Equal(t, CookieName, b.cookies[0].Name)

	res := decode[generateResponse](t, rec)
	assert.Equal(t, "req_web", res.RequestID)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "data:image/png;base64,cG5n", res.Images[0])

	first := client.last()
	assert.Equal(t, "ladies ballerina", first.UserPrompt)
	assert.Equal(t, 3, first.Variations)
	assert.Equal(t, []request.Slot{request.Hardware, request.Material}, first.ImageSlots)
	assert.Equal(t, "image/jpeg", first.Images[0].MIMEType)

	rec = b.do(http.MethodPost, "/api/locks/prompt", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	locks := decode[locksResponse](t, rec)
	assert.False(t, locks.Locks["prompt"])
	assert.True(t, locks.Locks["hardware"])
	assert.Equal(t, studio.PhaseRefining, locks.Phase)

	body, ct = multipartBody(t, nil, map[string]string{"prompt": "Y", "n": "1"})
	rec = b.do(http.MethodPost, "/api/regenerate", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	second := client.last()
	assert.Equal(t, "Y", second.UserPrompt)
	assert.Equal(t, first.Images, second.Images)
	assert.Equal(t, 3, second.Variations)

	rec = b.do(http.MethodGet, "/api/prompt/last", nil, "")
	assert.JSONEq(t, `{"prompt":"Y","ok":true}`, rec.Body.String())
}

func TestGenerateValidation(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(&fakeClient{})}

	body, ct := multipartBody(t, map[string][]byte{"sole": pngFile(t, color.RGBA{A: 255})}, nil)
	rec := b.do(http.MethodPost, "/api/generate", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[apiError](t, rec)
	assert.Equal(t, "Please upload Hardware and Material.", got.Error)
	assert.Equal(t, string(request.MissingRequiredInput), got.Kind)
	assert.Equal(t, []string{"hardware", "material"}, got.Missing)

	body, ct = multipartBody(t, nil, map[string]string{"variations": "lots"})
	rec = b.do(http.MethodPost, "/api/generate", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateBackendErrors(t *testing.T) {
	cases := []struct {
		err       *generation.Error
		retryable bool
	}{
		{&generation.Error{Kind: generation.KindTransport}, true},
		{&generation.Error{Kind: generation.KindBadStatus, Status: http.StatusBadRequest, Message: "nope"}, false},
		{&generation.Error{Kind: generation.KindBadStatus, Status: http.StatusServiceUnavailable}, true},
		{&generation.Error{Kind: generation.KindMalformedResponse}, true},
		{&generation.Error{Kind: generation.KindEmptyResult}, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind), func(t *testing.T) {
			client := &fakeClient{err: tc.err}
			b := &browser{t: t, handler: newTestServer(client)}

			red := pngFile(t, color.RGBA{R: 255, A: 255})
			body, ct := multipartBody(t, map[string][]byte{"hardware": red, "material": red}, nil)
			rec := b.do(http.MethodPost, "/api/generate", body, ct)
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			got := decode[apiError](t, rec)
			assert.Equal(t, string(tc.err.Kind), got.Kind)
			assert.Equal(t, tc.retryable, got.Retryable)
		})
	}
}

func TestGenerateRejectsUnsupportedFiles(t *testing.T) {
	client := &fakeClient{}
	b := &browser{t: t, handler: newTestServer(client)}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="hardware"; filename="notes.txt"`},
		"Content-Type":        {"text/plain"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("not an image"))
	require.NoError(t, err)
	part, err = w.CreateFormFile("material", "material.png")
	require.NoError(t, err)
	_, err = part.Write(pngFile(t, color.RGBA{G: 255, A: 255}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := b.do(http.MethodPost, "/api/generate", &buf, w.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	got := decode[apiError](t, rec)
	assert.Equal(t, "unsupported_image", got.Kind)
	assert.Equal(t, "hardware", got.Slot)
	assert.Equal(t, "Unsupported hardware image: text/plain (notes.txt)", got.Error)
	assert.False(t, got.Retryable)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.sent)
}

func TestReadsDoNotCreateSessions(t *testing.T) {
	handler, sessions := newTestStack(&fakeClient{}, nil)

	for _, path := range []string{"/api/locks", "/api/history", "/api/prompt/last"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Result().Cookies(), path)
	}
	assert.Zero(t, sessions.Len())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locks", nil))
	view := decode[locksResponse](t, rec)
	assert.True(t, view.Locks["hardware"])
	assert.Equal(t, studio.PhaseInitial, view.Phase)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/locks/sole", nil))
	assert.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, 1, sessions.Len())
}

func TestJournalEndpoint(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(&fakeClient{})}
	assert.Equal(t, http.StatusNotFound, b.do(http.MethodGet, "/api/journal", nil, "").Code)

	j := &fakeJournal{records: []journal.Record{
		{Outcome: string(generation.KindTransport), UserPrompt: "lost", Variations: 2, ImagesIn: 2},
		{Outcome: journal.OutcomeOK, UserPrompt: "kept", RequestID: "req_1", Variations: 2, ImagesIn: 2, ImagesOut: 2},
	}}
	handler, _ := newTestStack(&fakeClient{}, j)
	b = &browser{t: t, handler: handler}

	rec := b.do(http.MethodGet, "/api/journal", nil, "")
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())

	require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/api/locks/sole", nil, "").Code)
	rec = b.do(http.MethodGet, "/api/journal?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Records []journalRecord `json:"records"`
	}](t, rec)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "transport", list.Records[0].Outcome)
	assert.Equal(t, "lost", list.Records[0].UserPrompt)

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.sessions, 1)
	assert.Equal(t, b.cookies[0].Value, j.sessions[0])
}

func TestBusySession(t *testing.T) {
	client := &fakeClient{ready: make(chan struct{}), block: make(chan struct{})}
	b := &browser{t: t, handler: newTestServer(client)}

	// Establish the session cookie first.
	require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/api/locks/sole?locked=true", nil, "").Code)
	require.NotEmpty(t, b.cookies)

	red := pngFile(t, color.RGBA{R: 255, A: 255})
	body, ct := multipartBody(t, map[string][]byte{"hardware": red, "material": red}, nil)

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
		req.Header.Set("Content-Type", ct)
		for _, c := range b.cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		b.handler.ServeHTTP(rec, req)
		done <- rec.Code
	}()
	<-client.ready

	body2, ct2 := multipartBody(t, map[string][]byte{"hardware": red, "material": red}, nil)
	rec := b.do(http.MethodPost, "/api/regenerate", body2, ct2)
	assert.Equal(t, http.StatusConflict, rec.Code)
	busy := decode[apiError](t, rec)
	assert.Equal(t, "busy", busy.Kind)
	assert.True(t, busy.Retryable)

	close(client.block)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHistoryEndpoints(t *testing.T) {
	client := &fakeClient{}
	b := &browser{t: t, handler: newTestServer(client)}

	red := pngFile(t, color.RGBA{R: 255, A: 255})
	for _, text := range []string{"one", "two"} {
		body, ct := multipartBody(t, map[string][]byte{"hardware": red, "material": red}, map[string]string{"prompt": text})
		require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/api/generate", body, ct).Code)
	}

	rec := b.do(http.MethodGet, "/api/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Entries []historyEntry `json:"entries"`
	}](t, rec)
	require.Len(t, list.Entries, 2)
	assert.Equal(t, "two", list.Entries[0].UserPrompt)
	assert.True(t, list.Entries[0].OK)

	rec = b.do(http.MethodPost, "/api/history/1/reuse", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	draft := decode[draftResponse](t, rec)
	assert.Equal(t, "one", draft.Prompt)
	assert.Equal(t, []string{"hardware", "material"}, draft.Slots)

	assert.Equal(t, http.StatusNotFound, b.do(http.MethodPost, "/api/history/9/reuse", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, b.do(http.MethodPost, "/api/history/x/reuse", nil, "").Code)

	assert.Equal(t, http.StatusNoContent, b.do(http.MethodDelete, "/api/history", nil, "").Code)
	rec = b.do(http.MethodGet, "/api/history", nil, "")
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestMiscEndpoints(t *testing.T) {
	b := &browser{t: t, handler: newTestServer(&fakeClient{})}

	rec := b.do(http.MethodGet, "/healthz", nil, "")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = b.do(http.MethodGet, "/api/presets", nil, "")
	presets := decode[[]presetResponse](t, rec)
	require.Len(t, presets, 6)
	assert.Equal(t, "", presets[0].ID)
	assert.Equal(t, "studio_product", presets[1].ID)

	assert.Equal(t, http.StatusNotFound, b.do(http.MethodPost, "/api/locks/laces", nil, "").Code)

	rec = b.do(http.MethodPost, "/api/locks/sole?locked=false", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[locksResponse](t, rec).Locks["sole"])

	rec = b.do(http.MethodGet, "/api/prompt/last", nil, "")
	assert.JSONEq(t, `{"prompt":"","ok":false}`, rec.Body.String())

	rec = b.do(http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "studio")
}
