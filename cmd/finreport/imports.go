package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rumor-ml/commons.systems/finreport/internal/batch"
	"github.com/rumor-ml/commons.systems/finreport/internal/classify"
	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/output"
	"github.com/rumor-ml/commons.systems/finreport/internal/pipeline"
	"github.com/rumor-ml/commons.systems/finreport/internal/registry"
	"github.com/rumor-ml/commons.systems/finreport/internal/scanner"
	"github.com/rumor-ml/commons.systems/finreport/internal/ui"
)

// statementPaths expands input into statement files: a directory is
// scanned, anything else is taken as one file.
func (a *app) statementPaths(input string, verbose bool) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input %s: %w", input, err)
	}
	if !info.IsDir() {
		return []string{input}, nil
	}

	files, err := scanner.New(input).Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", input, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no statement files found in %s\n\nPlease check:\n  - Directory path is correct\n  - Files have supported extensions (.csv, .txt, .ofx, .qfx, .qif, .xlsx)\n  - You have read permissions on the directory and files\n\nRun with -verbose to see file discovery details", input)
	}
	if verbose {
		for _, f := range files {
			fmt.Fprintf(a.stderr, "  - %s (%s, bank: %s, account: %s)\n", f.Path, f.Format, f.Bank, f.Account)
		}
	}
	return scanner.Paths(files), nil
}

// previewAll parses and classifies every path, printing per-file failures.
// It returns the successful previews and the number of failed files.
func (a *app) previewAll(ctx context.Context, paths []string, categories []domain.Category, history classify.History) ([]*pipeline.Preview, int, error) {
	p := pipeline.New(registry.MustNew(), nil)
	results, err := p.PreviewFiles(ctx, paths, categories, history)
	if err != nil {
		return nil, 0, err
	}

	var (
		previews []*pipeline.Preview
		failed   int
	)
	for _, r := range results {
		if r.Err != nil {
			failed++
			a.out.Error(r.Err.Error())
			continue
		}
		previews = append(previews, r.Preview)
	}
	return previews, failed, nil
}

func categoryNames(categories []domain.Category) map[string]string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

func (a *app) runImport(ctx context.Context, args []string) error {
	fs := a.flags("import", "import -input DIR|FILE [-db PATH] [-dry-run] [-verbose]")
	input := fs.String("input", "", "Statement file or directory of statements (required)")
	dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
	dryRun := fs.Bool("dry-run", false, "Parse and classify without committing")
	verbose := fs.Bool("verbose", false, "Print every classified transaction")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *input == "" {
		fmt.Fprintf(a.stderr, "Error: -input flag is required\n\n")
		fs.Usage()
		return errUsage
	}

	a.out.Header("Importing Bank Statements")

	a.out.Step(1, 4, "Scanning input")
	paths, err := a.statementPaths(*input, *verbose)
	if err != nil {
		return err
	}
	a.out.Success(fmt.Sprintf("Found %d statement files", len(paths)))

	a.out.Step(2, 4, "Loading categories and history")
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	txns, err := st.ListTransactions(ctx)
	if err != nil {
		return err
	}
	history := classify.HistoryFrom(txns)
	a.out.Success(fmt.Sprintf("%d categories, %d remembered classifications", cat.Len(), len(history)))

	a.out.Step(3, 4, "Parsing and classifying")
	previews, failed, err := a.previewAll(ctx, paths, cat.Categories(), history)
	if err != nil {
		return err
	}
	names := categoryNames(cat.Categories())
	for _, pv := range previews {
		if *verbose || *dryRun {
			a.out.Preview(pv, names)
		} else {
			a.out.Info(fmt.Sprintf("%s: %d transactions, %d classified", pv.FileName, len(pv.Results), pv.Classified()))
		}
	}

	if *dryRun {
		fmt.Fprintf(a.stdout, "\nDry run complete. Would import %d files.\n", len(previews))
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be parsed", failed, len(paths))
		}
		return nil
	}

	a.out.Step(4, 4, "Committing batches")
	importer := batch.NewImporter(st, cat)
	var partial int
	for _, pv := range previews {
		b, err := importer.Commit(ctx, pv.FileName, pv.Format, pv.Results, func(written, total int) {
			fmt.Fprintf(a.stderr, "\r  %s: %d/%d transactions", pv.FileName, written, total)
		})
		fmt.Fprintln(a.stderr)
		if err != nil {
			if errors.Is(err, domain.ErrPartialImport) {
				partial++
			} else {
				failed++
			}
			a.out.Error(err.Error())
			continue
		}
		a.out.Success(fmt.Sprintf("Batch %s: %d transactions (%d unclassified), income %s, expenses %s",
			b.ID, b.TotalCount, b.UnclassifiedCount, ui.Money(b.TotalIncome), ui.Money(b.TotalExpense)))
	}

	if failed+partial > 0 {
		return fmt.Errorf("%d of %d files were not imported (%d partial)", failed+partial, len(paths), partial)
	}
	return nil
}

func (a *app) runClassify(ctx context.Context, args []string) error {
	fs := a.flags("classify", "classify -file F | -input DIR [-output out.json] [-merge] [-db PATH]")
	file := fs.String("file", "", "Statement file to classify")
	input := fs.String("input", "", "Directory of statements to classify")
	outputFile := fs.String("output", "", "Write previews as JSON to this file")
	mergeMode := fs.Bool("merge", false, "Merge with existing output file")
	dbPath := fs.String("db", "", "Use the classification history of this database")
	if err := parse(fs, args); err != nil {
		return err
	}

	var paths []string
	switch {
	case *file != "":
		paths = append([]string{*file}, fs.Args()...)
	case *input != "":
		var err error
		if paths, err = a.statementPaths(*input, false); err != nil {
			return err
		}
	case fs.NArg() > 0:
		paths = fs.Args()
	default:
		fmt.Fprintf(a.stderr, "Error: -file or -input is required\n\n")
		fs.Usage()
		return errUsage
	}

	cat, err := a.catalog()
	if err != nil {
		return err
	}

	var history classify.History
	if *dbPath != "" {
		st, err := a.openStore(ctx, *dbPath)
		if err != nil {
			return err
		}
		txns, err := st.ListTransactions(ctx)
		st.Close()
		if err != nil {
			return err
		}
		history = classify.HistoryFrom(txns)
	}

	previews, failed, err := a.previewAll(ctx, paths, cat.Categories(), history)
	if err != nil {
		return err
	}

	if *outputFile != "" {
		opts := output.WriteOptions{MergeMode: *mergeMode, FilePath: *outputFile, Stderr: a.stderr}
		if err := output.WritePreviews(previews, opts); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		a.out.Success(fmt.Sprintf("Output written to %s", *outputFile))
	} else {
		names := categoryNames(cat.Categories())
		for _, pv := range previews {
			a.out.Preview(pv, names)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be parsed", failed, len(paths))
	}
	return nil
}
