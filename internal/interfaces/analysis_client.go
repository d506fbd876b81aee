package interfaces

import (
	"context"

	"github.com/ternarybob/assay/internal/models"
)

// AnalysisClient submits payloads to the remote assistant.
type AnalysisClient interface {
	// Analyze performs exactly one request. Failures are *assistant.RequestFailedError,
	// *assistant.APIError or *assistant.UnreachableError.
	Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)

	// AnalyzeFile detects the payload type of a file and submits it.
	AnalyzeFile(ctx context.Context, assistantID, path string) (*models.AnalysisResult, error)

	// AnalyzeBytes detects the payload type of in-memory data and submits it.
	AnalyzeBytes(ctx context.Context, assistantID string, data []byte) (*models.AnalysisResult, error)

	// AnalyzeText submits plain text.
	AnalyzeText(ctx context.Context, assistantID, text string) (*models.AnalysisResult, error)
}
