// Package assistant provides a client for the hosted smart-assistant analysis
// API. Every call is a single attempt: no retry, backoff or circuit breaking.
package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
)

const (
	// DefaultBaseURL is the hosted analysis endpoint.
	DefaultBaseURL = "https://a.pyunto.com/api/i/v1"

	// DefaultTimeout covers uploads of tens of MB.
	DefaultTimeout = 120 * time.Second
)

// Client is an analysis API client. One Client owns one *http.Client, so all
// callers (including concurrent batch workers) share its connection pool.
type Client struct {
	baseURL            string
	apiKey             string
	defaultAssistantID string
	httpClient         *http.Client
	logger             arbor.ILogger
	validate           *validator.Validate
}

// Compile-time interface assertion
var _ interfaces.AnalysisClient = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom endpoint.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout on the owned HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDefaultAssistant sets the assistant used when a request leaves it empty.
func WithDefaultAssistant(assistantID string) ClientOption {
	return func(c *Client) {
		c.defaultAssistantID = assistantID
	}
}

// NewClient creates a new analysis API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// envelope is the JSON body sent to the endpoint.
type envelope struct {
	AssistantID string `json:"assistantId"`
	Type        string `json:"type"`
	Data        string `json:"data"`
	MIMEType    string `json:"mimeType"`
}

// Analyze submits one payload and returns the parsed result.
func (c *Client) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if req.AssistantID == "" {
		req.AssistantID = c.defaultAssistantID
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, apperr.InvalidParameter("invalid analysis request: %v", err)
	}
	if c.apiKey == "" {
		return nil, apperr.InvalidParameter("API key is required")
	}

	body, err := json.Marshal(envelope{
		AssistantID: req.AssistantID,
		Type:        string(req.Type),
		Data:        base64.StdEncoding.EncodeToString(req.Data),
		MIMEType:    req.MIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Str("assistant_id", req.AssistantID).
			Str("type", string(req.Type)).
			Str("mime_type", req.MIMEType).
			Int("payload_bytes", len(req.Data)).
			Msg("Analysis API request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnreachableError{URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnreachableError{URL: c.baseURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if c.logger != nil {
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("Analysis API response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestFailedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	result, err := models.ParseAnalysisResult(respBody)
	if err != nil {
		return nil, &RequestFailedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if result.Error != nil {
		return result, &APIError{Code: result.Error.Code, Message: result.Error.Message}
	}

	return result, nil
}

// AnalyzeDocument submits doc with the payload family of its MIME type.
func (c *Client) AnalyzeDocument(ctx context.Context, assistantID string, doc *models.SourceDocument) (*models.AnalysisResult, error) {
	dataType := models.DataTypeForMIME(doc.MIMEType)
	if dataType == "" {
		return nil, apperr.Newf(apperr.KindInvalidParameter, doc.Path, "unsupported content type %s", doc.MIMEType)
	}
	return c.Analyze(ctx, models.AnalysisRequest{
		AssistantID: assistantID,
		Type:        dataType,
		Data:        doc.Data,
		MIMEType:    baseMIME(doc.MIMEType),
	})
}

// AnalyzeBytes detects the MIME type and payload family of data and submits it.
func (c *Client) AnalyzeBytes(ctx context.Context, assistantID string, data []byte) (*models.AnalysisResult, error) {
	return c.AnalyzeDocument(ctx, assistantID, models.NewSourceDocumentFromBytes("", data))
}

// AnalyzeFile reads path and submits it with a detected type.
func (c *Client) AnalyzeFile(ctx context.Context, assistantID, path string) (*models.AnalysisResult, error) {
	doc, err := models.NewSourceDocument(path)
	if err != nil {
		return nil, err
	}
	return c.AnalyzeDocument(ctx, assistantID, doc)
}

// AnalyzeText submits UTF-8 text.
func (c *Client) AnalyzeText(ctx context.Context, assistantID, text string) (*models.AnalysisResult, error) {
	return c.Analyze(ctx, models.AnalysisRequest{
		AssistantID: assistantID,
		Type:        models.DataTypeText,
		Data:        []byte(text),
		MIMEType:    "text/plain",
	})
}

// baseMIME strips parameters such as "; charset=utf-8".
func baseMIME(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}
