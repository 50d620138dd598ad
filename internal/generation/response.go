package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Body is the JSON document returned by the image edits endpoint.
type Body struct {
	Created int64       `json:"created,omitempty"`
	Data    []BodyImage `json:"data"`
	Error   *BodyError  `json:"error,omitempty"`
}

type BodyImage struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type BodyError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// ParseResponse decodes and checks a success body. Anything that is not a JSON
// object, such as an HTML error page from a proxy, is an error, and so is an
// object without a data array, one carrying an error, or an item without
// inline image data. An empty data array is valid.
func ParseResponse(raw []byte) (Body, error) {
	var body Body
	if err := decodeObject(raw, &body); err != nil {
		return Body{}, err
	}
	if body.Error != nil {
		return Body{}, fmt.Errorf("success body carries an error: %q", body.Error.Message)
	}
	if body.Data == nil {
		return Body{}, errors.New("body has no data array")
	}
	for i, item := range body.Data {
		if strings.TrimSpace(item.B64JSON) == "" {
			return Body{}, fmt.Errorf("data[%d] has no b64_json", i)
		}
	}
	return body, nil
}

func decodeObject(raw []byte, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return errors.New("empty body")
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("body is not a JSON object (starts with %q)", firstRune(trimmed))
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// errorMessage pulls a structured error message out of a failure body, if any.
func errorMessage(raw []byte) string {
	var body Body
	if err := decodeObject(raw, &body); err != nil || body.Error == nil {
		return ""
	}
	return strings.TrimSpace(body.Error.Message)
}

func firstRune(b []byte) string {
	s := string(b)
	for _, r := range s {
		return string(r)
	}
	return ""
}
