package assistant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/models"
)

// newTestServer returns a server answering every request with status and body,
// counting the calls it receives.
func newTestServer(t *testing.T, status int, body string, calls *int32, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func textRequest() models.AnalysisRequest {
	return models.AnalysisRequest{
		AssistantID: "asst-1",
		Type:        models.DataTypeText,
		Data:        []byte("hello world"),
		MIMEType:    "text/plain",
	}
}

func TestAnalyze_Success(t *testing.T) {
	var calls int32
	var gotAuth string
	var gotBody envelope

	srv := newTestServer(t, http.StatusOK, `{"summary":"greeting","confidence":0.8}`, &calls, func(r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	})

	client := NewClient("secret-key", WithBaseURL(srv.URL), WithLogger(arbor.NewLogger()))
	result, err := client.Analyze(context.Background(), textRequest())
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "asst-1", gotBody.AssistantID)
	assert.Equal(t, "text", gotBody.Type)
	assert.Equal(t, "text/plain", gotBody.MIMEType)

	decoded, err := base64.StdEncoding.DecodeString(gotBody.Data)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(decoded))

	var summary string
	require.NoError(t, result.Field("summary", &summary))
	assert.Equal(t, "greeting", summary)
}

func TestAnalyze_ErrorFieldOnOK(t *testing.T) {
	var calls int32
	srv := newTestServer(t, http.StatusOK, `{"error":{"message":"bad assistant id"}}`, &calls, nil)

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Analyze(context.Background(), textRequest())
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad assistant id", apiErr.Message)
	assert.True(t, errors.Is(err, apperr.ErrAPIError))
	assert.Equal(t, apperr.KindAPIError, apperr.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnalyze_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newTestServer(t, tt.status, `upstream said no`, &calls, nil)

			client := NewClient("k", WithBaseURL(srv.URL))
			_, err := client.Analyze(context.Background(), textRequest())
			require.Error(t, err)

			var reqErr *RequestFailedError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.StatusCode)
			assert.Equal(t, "upstream said no", reqErr.Body)
			assert.Equal(t, tt.retryable, reqErr.Retryable())
			assert.True(t, errors.Is(err, apperr.ErrAPIRequestFailed))
			// Exactly one attempt even for retryable statuses.
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestAnalyze_InvalidJSONOnOK(t *testing.T) {
	var calls int32
	srv := newTestServer(t, http.StatusOK, `<html>gateway</html>`, &calls, nil)

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Analyze(context.Background(), textRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindAPIRequestFailed, apperr.KindOf(err))
}

func TestAnalyze_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient("k", WithBaseURL(url))
	_, err := client.Analyze(context.Background(), textRequest())
	require.Error(t, err)

	var unreachable *UnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, url, unreachable.URL)
	assert.True(t, errors.Is(err, apperr.ErrAPIUnreachable))
}

func TestAnalyze_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient("k", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	_, err := client.Analyze(context.Background(), textRequest())
	require.Error(t, err)
	assert.Equal(t, apperr.KindAPIUnreachable, apperr.KindOf(err))
}

func TestAnalyze_InvalidRequest(t *testing.T) {
	var calls int32
	srv := newTestServer(t, http.StatusOK, `{}`, &calls, nil)
	client := NewClient("k", WithBaseURL(srv.URL))

	tests := []struct {
		name string
		req  models.AnalysisRequest
	}{
		{"missing assistant", models.AnalysisRequest{Type: models.DataTypeText, Data: []byte("x"), MIMEType: "text/plain"}},
		{"unknown type", models.AnalysisRequest{AssistantID: "a", Type: "video", Data: []byte("x"), MIMEType: "video/mp4"}},
		{"empty data", models.AnalysisRequest{AssistantID: "a", Type: models.DataTypeText, MIMEType: "text/plain"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Analyze(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestAnalyze_MissingAPIKey(t *testing.T) {
	var calls int32
	srv := newTestServer(t, http.StatusOK, `{}`, &calls, nil)

	client := NewClient("", WithBaseURL(srv.URL))
	_, err := client.Analyze(context.Background(), textRequest())
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestAnalyze_DefaultAssistant(t *testing.T) {
	var calls int32
	var gotBody envelope
	srv := newTestServer(t, http.StatusOK, `{}`, &calls, func(r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	})

	client := NewClient("k", WithBaseURL(srv.URL), WithDefaultAssistant("fallback"))
	req := textRequest()
	req.AssistantID = ""
	_, err := client.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "fallback", gotBody.AssistantID)
}

func TestAnalyzeFile_DetectsType(t *testing.T) {
	var calls int32
	var gotBody envelope
	srv := newTestServer(t, http.StatusOK, `{"ok":true}`, &calls, func(r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	})

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain words"), 0644))

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.AnalyzeFile(context.Background(), "asst", path)
	require.NoError(t, err)
	assert.Equal(t, "text", gotBody.Type)
	assert.Equal(t, "text/plain", gotBody.MIMEType)
}

func TestAnalyzeBytes(t *testing.T) {
	var calls int32
	var gotBody envelope
	srv := newTestServer(t, http.StatusOK, `{"ok":true}`, &calls, func(r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	})
	client := NewClient("k", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err := client.AnalyzeBytes(context.Background(), "asst", png)
	require.NoError(t, err)
	assert.Equal(t, "image", gotBody.Type)
	assert.Equal(t, "image/png", gotBody.MIMEType)

	_, err = client.AnalyzeBytes(context.Background(), "asst", []byte("PK\x03\x04\x14\x00\x00\x00"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnalyzeFile_Missing(t *testing.T) {
	client := NewClient("k")
	_, err := client.AnalyzeFile(context.Background(), "asst", filepath.Join(t.TempDir(), "none.png"))
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestRequestFailedError_TruncatesBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	err := &RequestFailedError{StatusCode: 500, Body: string(long)}
	assert.Less(t, len(err.Error()), 600)
}
