package parser

import (
	"fmt"
	"path/filepath"
	"time"
)

// Metadata contains context about the file being parsed.
// Create instances using NewMetadata; it validates the required fields.
type Metadata struct {
	filePath   string
	detectedAt time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
// Returns an error if filePath is empty or detectedAt is zero.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the file path or upload name
func (m *Metadata) FilePath() string {
	return m.filePath
}

// FileName returns the base name of the file
func (m *Metadata) FileName() string {
	return filepath.Base(m.filePath)
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}
