package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shoe-concept-studio/internal/imaging"
	"shoe-concept-studio/internal/request"
)

const (
	DefaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultGeminiAPIVersion = "v1beta"
	DefaultGeminiModel      = "gemini-2.5-flash-image"
)

type GeminiOptions struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

// GeminiClient calls generateContent with the reference images inlined.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewGemini(opts GeminiOptions) *GeminiClient {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultGeminiAPIVersion
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiClient{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
		httpClient: opts.HTTPClient,
		logger:     loggerOrDiscard(opts.Logger),
		now:        clockOrNow(opts.Now),
	}
}

func (c *GeminiClient) Send(ctx context.Context, req *request.GenerationRequest) (*Result, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	if c.httpClient == nil {
		return nil, errors.New("http client is nil")
	}

	payload, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := c.now()
	raw, status, requestID, err := do(c.httpClient, httpReq)
	if err != nil {
		return nil, err
	}

	if status >= 400 {
		return nil, &Error{
			Kind:      KindBadStatus,
			Status:    status,
			Message:   errorMessage(raw),
			RequestID: requestID,
			Body:      truncate(raw),
		}
	}

	decoded, err := parseGeminiResponse(raw)
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Status: status, RequestID: requestID, Body: truncate(raw), Err: err}
	}

	var images []imaging.Image
	for _, cand := range decoded.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			img, err := imaging.FromBase64(p.InlineData.Data, fmt.Sprintf("concept-%d", len(images)+1))
			if err != nil {
				return nil, &Error{Kind: KindMalformedResponse, Status: status, RequestID: requestID, Body: truncate(raw), Err: err}
			}
			if p.InlineData.MimeType != "" {
				img.MIMEType = p.InlineData.MimeType
			}
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, &Error{Kind: KindEmptyResult, Status: status, RequestID: requestID, Body: truncate(raw)}
	}

	c.logger.Info("generation finished", "backend", "gemini", "request_id", requestID, "images", len(images), "dur_ms", c.now().Sub(start).Milliseconds())

	return &Result{
		Images:     images,
		PromptUsed: req.Prompt,
		CreatedAt:  c.now(),
		ID:         requestID,
	}, nil
}

func buildGeminiRequest(req *request.GenerationRequest) geminiRequest {
	parts := []geminiPart{{Text: req.Prompt}}
	for i, img := range req.Images {
		label := fmt.Sprintf("Reference #%d:", i+1)
		switch {
		case req.Collage:
			label = "Concept board (hardware, material, sole, inspiration):"
		case i < len(req.ImageSlots):
			label = req.ImageSlots[i].Label() + " reference:"
		}
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = imaging.Sniff(img.Data)
		}
		parts = append(parts,
			geminiPart{Text: label},
			geminiPart{InlineData: &geminiBlob{
				Data:     base64.StdEncoding.EncodeToString(img.Data),
				MimeType: mimeType,
			}},
		)
	}

	return geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			CandidateCount:     req.Variations,
			ImageConfig:        &geminiImageConfig{AspectRatio: "1:1"},
		},
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	CandidateCount     int                `json:"candidateCount,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error *BodyError `json:"error,omitempty"`
}

// parseGeminiResponse checks the success body shape. A blocked prompt answers
// with promptFeedback and no candidates, which is an empty result rather than a
// schema mismatch.
func parseGeminiResponse(raw []byte) (geminiResponse, error) {
	var decoded geminiResponse
	if err := decodeObject(raw, &decoded); err != nil {
		return geminiResponse{}, err
	}
	if decoded.Error != nil {
		return geminiResponse{}, fmt.Errorf("success body carries an error: %q", decoded.Error.Message)
	}
	if decoded.Candidates == nil && decoded.PromptFeedback == nil {
		return geminiResponse{}, errors.New("body has no candidates")
	}
	for i, cand := range decoded.Candidates {
		for j, p := range cand.Content.Parts {
			if p.InlineData != nil && strings.TrimSpace(p.InlineData.Data) == "" {
				return geminiResponse{}, fmt.Errorf("candidates[%d].parts[%d] has empty inline data", i, j)
			}
		}
	}
	return decoded, nil
}
