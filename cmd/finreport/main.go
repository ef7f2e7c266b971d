// Command finreport imports bank statements into a local SQLite database
// and produces DRE reports for accounting periods.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/finreport/internal/catalog"
	"github.com/rumor-ml/commons.systems/finreport/internal/config"
	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
	"github.com/rumor-ml/commons.systems/finreport/internal/store/sqlite"
	"github.com/rumor-ml/commons.systems/finreport/internal/ui"
)

const version = "0.1.0"

const usage = `finreport - bank statement import and DRE reporting

Usage:
  finreport <command> [flags]

Commands:
  import      scan, classify and commit statement files
  classify    preview classification without writing
  period      create | list | close | delete accounting periods
  entry       add | list | update | delete manual entries of a period
  report      print the DRE of a period, or a trend of the last periods
  categories  list the chart of accounts
  batches     list committed import batches
  version     print the version

Run "finreport <command> -h" for the flags of a command.

Examples:
  # Preview the classification of one statement
  finreport classify -file extrato.ofx

  # Import every statement under a directory
  finreport import -input ~/extratos -db finreport.db

  # Create March 2026, add rent and print its report
  finreport period create -granularity monthly -start 2026-03-01
  finreport entry add -period 2026-03 -category aluguel -value 1500 -description "Aluguel"
  finreport report -period 2026-03
`

// errUsage signals a command line mistake; usage has already been printed
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return
	}
	if !errors.Is(err, errUsage) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// app carries what every command needs
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
	out    *ui.Printer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "finreport version %s\n", version)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a := &app{
		cfg:    cfg,
		log:    logger.New(cfg.LogLevel).Output(zerolog.ConsoleWriter{Out: stderr}),
		stdout: stdout,
		stderr: stderr,
		out:    ui.New(stdout),
	}

	cmd, rest := args[0], args[1:]
	a.log = logger.WithFields(a.log, map[string]interface{}{"command": cmd})
	ctx = logger.WithContext(ctx, a.log)

	switch cmd {
	case "import":
		return a.runImport(ctx, rest)
	case "classify":
		return a.runClassify(ctx, rest)
	case "period":
		return a.runPeriod(ctx, rest)
	case "entry":
		return a.runEntry(ctx, rest)
	case "report":
		return a.runReport(ctx, rest)
	case "categories":
		return a.runCategories(ctx, rest)
	case "batches":
		return a.runBatches(ctx, rest)
	}

	fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmd)
	fmt.Fprint(stderr, usage)
	return errUsage
}

// flags creates the flag set of a command; parse errors are returned, not
// fatal.
func (a *app) flags(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage:\n  finreport %s\n\nFlags:\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args; flag errors have been reported by fs already
func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return errUsage
}

func (a *app) catalog() (*catalog.Catalog, error) {
	c, err := catalog.Load(a.cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return c, nil
}

// openStore opens the database at path, or the configured one when empty
func (a *app) openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	if path == "" {
		path = a.cfg.DatabasePath
	}
	st, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("db", path).Msg("database opened")
	return st, nil
}
