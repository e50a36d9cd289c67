package automation

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// FileUniquifier rewrites a media file with a fresh trailing marker so
// byte-level duplicate detection sees new content. Frame-level
// re-encoding belongs to the external media toolchain; this adapter
// covers the orchestration contract.
type FileUniquifier struct {
	logger arbor.ILogger
}

// NewFileUniquifier creates a file-based media uniquifier
func NewFileUniquifier(logger arbor.ILogger) *FileUniquifier {
	return &FileUniquifier{logger: logger}
}

// Uniquify mutates the file in place and returns its path
func (u *FileUniquifier) Uniquify(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	marker := uuid.New()
	if _, err := f.Write(marker[:]); err != nil {
		return "", fmt.Errorf("write marker to %s: %w", path, err)
	}

	u.logger.Debug().Str("path", path).Msg("Media file uniquified")
	return path, nil
}
