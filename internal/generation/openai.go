package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOpenAIModel   = "gpt-image-1"
	DefaultImageSize     = "1024x1024"
)

type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Size       string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// OpenAIClient talks to the multipart image edits endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewOpenAI(opts OpenAIOptions) *OpenAIClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = DefaultImageSize
	}

	return &OpenAIClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		size:       size,
		httpClient: opts.HTTPClient,
		logger:     loggerOrDiscard(opts.Logger),
		now:        clockOrNow(opts.Now),
	}
}

func (c *OpenAIClient) Send(ctx context.Context, req *request.GenerationRequest) (*Result, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if c.httpClient == nil {
		return nil, errors.New("http client is nil")
	}

	payload, contentType, err := c.encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/edits", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", contentType)
	httpReq.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("authorization", "Bearer "+c.apiKey)
	}

	start := c.now()
	c.logger.Debug("generation request", "backend", "openai", "model", c.model, "images", len(req.Images), "n", req.Variations)

	raw, status, requestID, err := do(c.httpClient, httpReq)
	if err != nil {
		return nil, err
	}

	if status < 200 || status > 299 {
		return nil, &Error{
			Kind:      KindBadStatus,
			Status:    status,
			Message:   errorMessage(raw),
			RequestID: requestID,
			Body:      truncate(raw),
		}
	}

	body, err := ParseResponse(raw)
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Status: status, RequestID: requestID, Body: truncate(raw), Err: err}
	}

	images := make([]imaging.Image, 0, len(body.Data))
	for i, item := range body.Data {
		img, err := imaging.FromBase64(item.B64JSON, fmt.Sprintf("concept-%d", i+1))
		if err != nil {
			return nil, &Error{Kind: KindMalformedResponse, Status: status, RequestID: requestID, Body: truncate(raw), Err: err}
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindEmptyResult, Status: status, RequestID: requestID, Body: truncate(raw)}
	}

	createdAt := c.now()
	if body.Created > 0 {
		createdAt = time.Unix(body.Created, 0).UTC()
	}

	c.logger.Info("generation finished", "backend", "openai", "request_id", requestID, "images", len(images), "dur_ms", c.now().Sub(start).Milliseconds())

	return &Result{
		Images:     images,
		PromptUsed: req.Prompt,
		CreatedAt:  createdAt,
		ID:         requestID,
	}, nil
}

func (c *OpenAIClient) encode(req *request.GenerationRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"model", c.model},
		{"prompt", req.Prompt},
		{"n", strconv.Itoa(req.Variations)},
		{"size", c.size},
	}
	if bg := strings.TrimSpace(req.Background); bg != "" {
		fields = append(fields, [2]string{"background", bg})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for i, img := range req.Images {
		name := img.Filename
		if name == "" {
			name = fmt.Sprintf("image-%d", i+1)
		}
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = imaging.Sniff(img.Data)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="%s"`, quoteEscaper.Replace(name)))
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// do performs the call and reads the whole body. Any failure before a complete
// body is available is a transport error.
func do(client *http.Client, req *http.Request) ([]byte, int, string, error) {
	resp, err := client.Do(req)
	if err != nil {
		id := uuid.NewString()
		return nil, 0, id, &Error{Kind: KindTransport, RequestID: id, Err: err}
	}
	defer resp.Body.Close()

	requestID := strings.TrimSpace(resp.Header.Get("x-request-id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, requestID, &Error{Kind: KindTransport, Status: resp.StatusCode, RequestID: requestID, Err: fmt.Errorf("read response: %w", err)}
	}
	return raw, resp.StatusCode, requestID, nil
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
