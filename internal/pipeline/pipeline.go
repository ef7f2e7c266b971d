// Package pipeline runs statement files through format detection, parsing
// and classification, producing previews for review before commit.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rumor-ml/commons.systems/finreport/internal/classify"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/parser"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
	"github.com/rumor-ml/commons.systems/finreport/internal/validate"
)

// Preview is one parsed and classified file, not yet committed
type Preview struct {
	FileName string                        `json:"fileName"`
	Format   domain.Format                 `json:"format"`
	Skipped  []parser.SkippedRow           `json:"skipped"`
	Results  []domain.ClassificationResult `json:"results"`
	Warnings []validate.ValidationWarning  `json:"warnings,omitempty"`
}

// Classified returns how many results carry a suggestion
func (p *Preview) Classified() int {
	n := 0
	for i := range p.Results {
		if p.Results[i].IsClassified() {
			n++
		}
	}
	return n
}

// FileResult is the outcome for one file of a multi-file run
type FileResult struct {
	Path    string
	Preview *Preview
	Err     error
}

// Pipeline orchestrates detection, parsing and classification
type Pipeline struct {
	registry   *registry.Registry
	classifier *classify.Classifier
	now        func() time.Time
}

// New creates a pipeline. A nil classifier uses the default weights.
func New(reg *registry.Registry, classifier *classify.Classifier) *Pipeline {
	if classifier == nil {
		classifier = classify.NewClassifier()
	}
	return &Pipeline{
		registry:   reg,
		classifier: classifier,
		now:        time.Now,
	}
}

// Preview parses r as the statement file fileName and classifies its
// transactions against categories and history.
func (p *Pipeline) Preview(ctx context.Context, fileName string, r io.Reader, categories []domain.Category, history classify.History) (*Preview, error) {
	br := bufio.NewReaderSize(r, registry.HeaderSize)
	header, err := br.Peek(registry.HeaderSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read header from %s: %w", fileName, err)
	}

	prs, err := p.registry.Resolve(fileName, header)
	if err != nil {
		return nil, err
	}

	meta, err := parser.NewMetadata(fileName, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata: %w", err)
	}

	log := logger.FromContext(ctx).With().Str("file", fileName).Str("format", string(prs.Format())).Logger()

	parsed, err := prs.Parse(ctx, br, meta)
	if err != nil {
		return nil, fmt.Errorf("parsing %s failed: %w", fileName, err)
	}
	if len(parsed.Skipped) > 0 {
		log.Warn().Int("skipped", len(parsed.Skipped)).Msg("malformed rows skipped")
	}

	results := p.classifier.Classify(parsed.Transactions, history, categories)
	check := validate.ValidateResults(results, categories)

	preview := &Preview{
		FileName: filepath.Base(fileName),
		Format:   parsed.Format,
		Skipped:  parsed.Skipped,
		Results:  results,
		Warnings: check.Warnings,
	}
	log.Debug().
		Int("transactions", len(results)).
		Int("classified", preview.Classified()).
		Dur("elapsed", p.now().Sub(meta.DetectedAt())).
		Msg("statement previewed")
	return preview, nil
}

// PreviewFile opens path and previews it
func (p *Pipeline) PreviewFile(ctx context.Context, path string, categories []domain.Category, history classify.History) (*Preview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.Preview(ctx, path, f, categories, history)
}

// PreviewFiles previews many files concurrently, one worker per CPU.
// A failing file does not stop the others; its error is kept on its
// result. Results follow the order of paths. Only cancellation of ctx
// is returned as an error.
func (p *Pipeline) PreviewFiles(ctx context.Context, paths []string, categories []domain.Category, history classify.History) ([]FileResult, error) {
	results := make([]FileResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			preview, err := p.PreviewFile(ctx, path, categories, history)
			results[i] = FileResult{Path: path, Preview: preview, Err: err}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
