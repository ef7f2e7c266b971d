// Package output writes previews and reports as indented JSON files.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
)

// WriteOptions configures where previews are written
type WriteOptions struct {
	// MergeMode loads an existing file and replaces previews by file name
	MergeMode bool
	// FilePath is the output path; empty writes to stdout
	FilePath string
	// Stderr receives warnings; nil means os.Stderr
	Stderr io.Writer
}

// WriteJSON serializes v as JSON with 2-space indentation
func WriteJSON(v any, w io.Writer) error {
	if v == nil {
		return fmt.Errorf("value cannot be nil")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteFile writes v to path, or to stdout when path is empty
func WriteFile(v any, path string) (err error) {
	if path == "" {
		return WriteJSON(v, os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", path, closeErr)
		}
	}()

	if err = WriteJSON(v, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WritePreviews writes previews according to opts
func WritePreviews(previews []*pipeline.Preview, opts WriteOptions) error {
	if opts.MergeMode && opts.FilePath != "" {
		existing, err := LoadPreviews(opts.FilePath)
		switch {
		case os.IsNotExist(err):
			stderr := opts.Stderr
			if stderr == nil {
				stderr = os.Stderr
			}
			fmt.Fprintf(stderr, "Warning: merge mode requested but %s does not exist, creating new file\n", opts.FilePath)
		case err != nil:
			return fmt.Errorf("failed to load existing previews for merge: %w", err)
		default:
			previews = mergePreviews(existing, previews)
		}
	}
	if previews == nil {
		previews = []*pipeline.Preview{}
	}
	return WriteFile(previews, opts.FilePath)
}

// LoadPreviews reads a file written by WritePreviews. A missing file is
// returned unwrapped so callers can check os.IsNotExist.
func LoadPreviews(path string) ([]*pipeline.Preview, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var previews []*pipeline.Preview
	if err := json.NewDecoder(f).Decode(&previews); err != nil {
		return nil, fmt.Errorf("failed to decode previews in %s: %w", path, err)
	}
	return previews, nil
}

// mergePreviews replaces previews of the same file and appends new ones,
// keeping the order of target.
func mergePreviews(target, source []*pipeline.Preview) []*pipeline.Preview {
	index := make(map[string]int, len(target))
	for i, p := range target {
		index[p.FileName] = i
	}
	for _, p := range source {
		if i, ok := index[p.FileName]; ok {
			target[i] = p
			continue
		}
		index[p.FileName] = len(target)
		target = append(target, p)
	}
	return target
}
