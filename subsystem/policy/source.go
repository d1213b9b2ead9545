package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ThresholdSource provides thresholds at evaluation time.
type ThresholdSource interface {
	Thresholds(ctx context.Context) (Thresholds, error)
}

// StaticSource always provides the same thresholds.
type StaticSource Thresholds

// Thresholds returns s.
func (s StaticSource) Thresholds(_ context.Context) (Thresholds, error) {
	return Thresholds(s), nil
}

// FileSource reads thresholds from a YAML file on every call.
// Edits to the file take effect on the next evaluation.
type FileSource struct {
	path string
}

// NewFileSource creates a new FileSource reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Thresholds reads and parses the policy file.
func (s *FileSource) Thresholds(_ context.Context) (Thresholds, error) {
	var t Thresholds
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return t, fmt.Errorf("%w: reading %s: %v", ErrInvalidPolicy, s.path, err)
	}
	t, err = ParseThresholds(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", s.path, err)
	}
	return t, nil
}

// ParseThresholds parses YAML policy content.
// An empty document yields zero-value thresholds.
func ParseThresholds(raw []byte) (Thresholds, error) {
	var t Thresholds
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Thresholds{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}
