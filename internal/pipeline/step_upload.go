package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pipeliner/pkg/backoff"
)

// UploadStep transfers a named file from the run workspace to external
// artifact storage via HTTP PUT. Transient failures (network errors, 5xx)
// are retried with exponential backoff inside the step; a 4xx response is
// final. Typically guarded with "if: failure" to ship diagnostics.
type UploadStep struct {
	ID   string    `json:"id"`
	Path string    `json:"path"` // file to upload, relative to the workspace
	URL  string    `json:"url"`  // destination
	If   Condition `json:"if,omitempty"`
}

func (s *UploadStep) StepID() string   { return s.ID }
func (s *UploadStep) StepType() string { return "upload" }

func (s *UploadStep) Condition() Condition {
	if s.If == "" {
		return OnSuccess
	}
	return s.If
}

// Execute uploads the file with retry.
func (s *UploadStep) Execute(ctx context.Context, ec *ExecContext) *StepResult {
	srcPath := filepath.Join(ec.Workdir, s.Path)

	fileInfo, err := os.Stat(srcPath)
	if err != nil {
		return failure("", fmt.Errorf("artifact not found: %w", err))
	}
	size := fileInfo.Size()

	client := ec.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	maxRetries := ec.UploadRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return failure("", err)
		}

		if attempt > 0 {
			wait := backoff.Exponential(attempt, nil)
			slog.Debug("Retrying artifact upload", "attempt", attempt, "backoff", wait, "path", srcPath)
			select {
			case <-ctx.Done():
				return failure("", ctx.Err())
			case <-time.After(wait):
			}
		}

		lastErr = s.doUpload(ctx, client, srcPath, size)
		if lastErr == nil {
			if attempt > 0 {
				slog.Info("Artifact upload succeeded after retry", "attempt", attempt, "path", srcPath)
			}
			return success("")
		}

		if isClientError(lastErr) {
			return failure("", lastErr)
		}

		slog.Warn("Artifact upload failed", "attempt", attempt, "error", lastErr, "path", srcPath)
	}

	return failure("", fmt.Errorf("upload failed after %d retries: %w", maxRetries, lastErr))
}

func (s *UploadStep) doUpload(ctx context.Context, client *http.Client, filePath string, size int64) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.URL, file)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		slog.Debug("Uploaded artifact", "bytes", size)
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	return &uploadError{statusCode: resp.StatusCode, message: string(respBody)}
}

type uploadError struct {
	statusCode int
	message    string
}

func (e *uploadError) Error() string {
	return fmt.Sprintf("upload failed with status %d: %s", e.statusCode, e.message)
}

func isClientError(err error) bool {
	if ue, ok := err.(*uploadError); ok {
		return ue.statusCode >= 400 && ue.statusCode < 500
	}
	return false
}
