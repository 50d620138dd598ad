package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildRequest(t *testing.T) *request.GenerationRequest {
	t.Helper()
	data := pngBytes(t, 4, 4)
	req, err := request.NewBuilder(request.DefaultConfig()).Build(request.Draft{
		Images: map[request.Slot]imaging.Image{
			request.Hardware: {Data: data, MIMEType: "image/png", Width: 4, Height: 4, Filename: "buckle.png"},
			request.Material: {Data: data, MIMEType: "image/png", Width: 4, Height: 4, Filename: "suede.png"},
		},
		Prompt:     "ladies ballerina",
		Variations: 2,
		Background: "transparent",
	})
	require.NoError(t, err)
	return req
}

func newOpenAI(srv *httptest.Server) *OpenAIClient {
	return NewOpenAI(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func TestOpenAIClient_Send(t *testing.T) {
	t.Run("multipart request and success", func(t *testing.T) {
		out := base64.StdEncoding.EncodeToString(pngBytes(t, 2, 2))

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/images/edits", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			require.NoError(t, r.ParseMultipartForm(10<<20))
			assert.Equal(t, DefaultOpenAIModel, r.FormValue("model"))
			assert.Equal(t, "ladies ballerina", r.FormValue("prompt"))
			assert.Equal(t, "2", r.FormValue("n"))
			assert.Equal(t, DefaultImageSize, r.FormValue("size"))
			assert.Equal(t, "transparent", r.FormValue("background"))

			files := r.MultipartForm.File["image[]"]
			require.Len(t, files, 2)
			assert.Equal(t, "buckle.png", files[0].Filename)
			assert.Equal(t, "suede.png", files[1].Filename)
			assert.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

			w.Header().Set("x-request-id", "req_123")
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"created": 1767225600,
				"data": []map[string]string{
					{"b64_json": out},
					{"b64_json": "data:image/png;base64," + out},
				},
			})
		}))
		defer srv.Close()

		res, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		require.NoError(t, err)
		require.Len(t, res.Images, 2)
		assert.Equal(t, "image/png", res.Images[0].MIMEType)
		assert.Equal(t, 2, res.Images[1].Width)
		assert.Equal(t, "ladies ballerina", res.PromptUsed)
		assert.Equal(t, "req_123", res.ID)
		assert.Equal(t, time.Unix(1767225600, 0).UTC(), res.CreatedAt)
	})

	t.Run("bad status surfaces the structured message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"Invalid image file","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindBadStatus, genErr.Kind)
		assert.Equal(t, http.StatusBadRequest, genErr.Status)
		assert.Equal(t, "Invalid image file", genErr.UserMessage())
		assert.NotEmpty(t, genErr.RequestID)
		assert.False(t, genErr.Retryable())
		assert.False(t, IsRetryable(err))
	})

	t.Run("bad status without a JSON body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindBadStatus, genErr.Kind)
		assert.Equal(t, "Generation failed: Service Unavailable.", genErr.UserMessage())
		assert.True(t, genErr.Retryable())
	})

	t.Run("html body with success status is malformed", func(t *testing.T) {
		page := "<html><body>" + strings.Repeat("gateway error ", 100) + "</body></html>"
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, page)
		}))
		defer srv.Close()

		_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindMalformedResponse, genErr.Kind)
		assert.Len(t, genErr.Body, maxBodySnippet)
		assert.True(t, strings.HasPrefix(page, genErr.Body))
		assert.Equal(t, "The server returned an unexpected response.", genErr.UserMessage())
	})

	t.Run("undecodable image payload is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"data":[{"b64_json":"%%%not-base64"}]}`)
		}))
		defer srv.Close()

		_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		assert.Equal(t, KindMalformedResponse, KindOf(err))
	})

	t.Run("success status with the wrong shape is malformed", func(t *testing.T) {
		for name, raw := range map[string]string{
			"no data key":       `{"unexpected":true}`,
			"null data":         `{"data":null}`,
			"error object":      `{"error":{"message":"upstream broke"}}`,
			"url only item":     `{"data":[{"url":"https://x/y.png"}]}`,
			"item without data": `{"data":[{"revised_prompt":"a shoe"}]}`,
		} {
			t.Run(name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = io.WriteString(w, raw)
				}))
				defer srv.Close()

				_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
				var genErr *Error
				require.ErrorAs(t, err, &genErr)
				assert.Equal(t, KindMalformedResponse, genErr.Kind)
				assert.Equal(t, raw, genErr.Body)
			})
		}
	})

	t.Run("zero images is an empty result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("x-request-id", "req_empty")
			_, _ = io.WriteString(w, `{"created":1,"data":[]}`)
		}))
		defer srv.Close()

		_, err := newOpenAI(srv).Send(context.Background(), buildRequest(t))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindEmptyResult, genErr.Kind)
		assert.Equal(t, "req_empty", genErr.RequestID)
		assert.Equal(t, "No images were returned. Try again.", genErr.UserMessage())
	})

	t.Run("unreachable server is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		client := newOpenAI(srv)
		srv.Close()

		_, err := client.Send(context.Background(), buildRequest(t))
		var genErr *Error
		require.ErrorAs(t, err, &genErr)
		assert.Equal(t, KindTransport, genErr.Kind)
		assert.NotEmpty(t, genErr.RequestID)
		assert.Error(t, errors.Unwrap(genErr))
		assert.True(t, IsRetryable(fmt.Errorf("send: %w", err)))
		assert.False(t, IsRetryable(errors.New("plain")))
	})

	t.Run("nil http client", func(t *testing.T) {
		_, err := NewOpenAI(OpenAIOptions{}).Send(context.Background(), buildRequest(t))
		assert.EqualError(t, err, "http client is nil")
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("json object", func(t *testing.T) {
		body, err := ParseResponse([]byte(` {"data":[{"b64_json":"abc"}]}`))
		require.NoError(t, err)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "abc", body.Data[0].B64JSON)
	})

	t.Run("empty data array", func(t *testing.T) {
		body, err := ParseResponse([]byte(`{"data":[]}`))
		require.NoError(t, err)
		assert.Empty(t, body.Data)
	})

	for name, raw := range map[string]string{
		"empty":     "",
		"html":      "<!DOCTYPE html><html></html>",
		"array":     `[{"b64_json":"abc"}]`,
		"truncated": `{"data":[`,
		"no data":   `{"created":1}`,
		"error":     `{"error":{"message":"nope"}}`,
		"url item":  `{"data":[{"url":"https://x/y.png"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse([]byte(raw))
			assert.Error(t, err)
		})
	}
}
