package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DataType is the payload family the remote assistant accepts.
type DataType string

const (
	DataTypeImage DataType = "image"
	DataTypeText  DataType = "text"
	DataTypeAudio DataType = "audio"
)

// DataTypeForMIME maps a MIME type to the payload family, or "" when the API
// has no family for it.
func DataTypeForMIME(mime string) DataType {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return DataTypeImage
	case strings.HasPrefix(mime, "audio/"):
		return DataTypeAudio
	case strings.HasPrefix(mime, "text/"),
		mime == "application/json",
		mime == "application/xml":
		return DataTypeText
	}
	return ""
}

// AnalysisRequest is a single call to the assistant. Data holds raw bytes and
// is base64-encoded on the wire.
type AnalysisRequest struct {
	AssistantID string   `validate:"required"`
	Type        DataType `validate:"required,oneof=image text audio"`
	Data        []byte   `validate:"required"`
	MIMEType    string   `validate:"required"`
}

// ResultError is the top-level "error" object of a response body.
type ResultError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// AnalysisResult is a parsed response. Error is the discriminant: nil means
// success. Fields holds every other top-level key, untouched.
type AnalysisResult struct {
	Error  *ResultError
	Fields map[string]json.RawMessage
}

// ParseAnalysisResult splits a response body into the error discriminant and
// the opaque field bag.
func ParseAnalysisResult(body []byte) (*AnalysisResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	result := &AnalysisResult{Fields: make(map[string]json.RawMessage, len(raw))}
	for k, v := range raw {
		if k == "error" {
			continue
		}
		result.Fields[k] = v
	}

	if errRaw, ok := raw["error"]; ok && string(errRaw) != "null" {
		result.Error = parseResultError(errRaw)
	}
	return result, nil
}

func parseResultError(raw json.RawMessage) *ResultError {
	// The service sends {"message", "code"} but a bare string also occurs.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &ResultError{Message: s}
	}

	var obj struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return &ResultError{Message: string(raw)}
	}

	re := &ResultError{Message: obj.Message}
	if len(obj.Code) > 0 && string(obj.Code) != "null" {
		var code string
		if err := json.Unmarshal(obj.Code, &code); err == nil {
			re.Code = code
		} else {
			re.Code = string(obj.Code)
		}
	}
	return re
}

// Field decodes a single top-level field into v.
func (r *AnalysisResult) Field(name string, v interface{}) error {
	raw, ok := r.Fields[name]
	if !ok {
		return fmt.Errorf("field %q not present", name)
	}
	return json.Unmarshal(raw, v)
}

// Confidence returns the optional confidence score.
func (r *AnalysisResult) Confidence() (float64, bool) {
	var c float64
	if err := r.Field("confidence", &c); err != nil {
		return 0, false
	}
	return c, true
}

// ProcessingTime returns the optional server-side processing time.
func (r *AnalysisResult) ProcessingTime() (time.Duration, bool) {
	var ms float64
	if err := r.Field("processingTimeMs", &ms); err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// MarshalJSON emits the original shape: the field bag plus "error" when set.
func (r *AnalysisResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.Error != nil {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}
