package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/finreport/internal/domain"
	"github.com/rumor-ml/commons.systems/finreport/internal/output"
	"github.com/rumor-ml/commons.systems/finreport/internal/period"
	"github.com/rumor-ml/commons.systems/finreport/internal/ui"
)

// withService opens the database named by -db and runs fn with a period
// service over it.
func (a *app) withService(ctx context.Context, dbPath string, fn func(*period.Service) error) error {
	cat, err := a.catalog()
	if err != nil {
		return err
	}
	st, err := a.openStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(period.NewService(st, st, cat))
}

func parseDay(flagName, value string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: -%s must be a date like 2026-03-01, got %q", domain.ErrInvalidInput, flagName, value)
	}
	return t, nil
}

func (a *app) printPeriods(periods []domain.Period) {
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGRANULARITY\tSTART\tEND\tSTATUS")
	for _, p := range periods {
		status := "open"
		if p.IsClosed {
			status = "closed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Granularity,
			p.Start.Format(domain.DateLayout), p.End.Format(domain.DateLayout), status)
	}
	tw.Flush()
}

func (a *app) runPeriod(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(a.stderr, "Usage:\n  finreport period create|list|close|delete [flags]\n")
		return errUsage
	}
	verb, args := args[0], args[1:]

	switch verb {
	case "create":
		fs := a.flags("period create", "period create -granularity monthly|quarterly|annual -start YYYY-MM-DD [-end YYYY-MM-DD] [-name NAME] [-id ID]")
		granularity := fs.String("granularity", string(domain.GranularityMonthly), "monthly, quarterly or annual")
		start := fs.String("start", "", "First day of the period (required)")
		end := fs.String("end", "", "Last day of the period (default: end of granularity)")
		name := fs.String("name", "", "Display name (default: the id)")
		id := fs.String("id", "", "Period id (default: derived from start, e.g. 2026-03)")
		dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
		if err := parse(fs, args); err != nil {
			return err
		}

		req := period.CreateRequest{ID: *id, Name: *name, Granularity: domain.Granularity(*granularity)}
		var err error
		if req.Start, err = parseDay("start", *start); err != nil {
			return err
		}
		if *end != "" {
			if req.End, err = parseDay("end", *end); err != nil {
				return err
			}
		}
		return a.withService(ctx, *dbPath, func(svc *period.Service) error {
			p, err := svc.Create(ctx, req)
			if err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("Period %s created (%s to %s)", p.ID,
				p.Start.Format(domain.DateLayout), p.End.Format(domain.DateLayout)))
			return nil
		})

	case "list":
		fs := a.flags("period list", "period list [-db PATH]")
		dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
		if err := parse(fs, args); err != nil {
			return err
		}
		return a.withService(ctx, *dbPath, func(svc *period.Service) error {
			periods, err := svc.List(ctx)
			if err != nil {
				return err
			}
			a.printPeriods(periods)
			return nil
		})

	case "close", "delete":
		fs := a.flags("period "+verb, "period "+verb+" [-db PATH] ID")
		dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
		if err := parse(fs, args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			fs.Usage()
			return errUsage
		}
		id := fs.Arg(0)
		return a.withService(ctx, *dbPath, func(svc *period.Service) error {
			if verb == "delete" {
				if err := svc.Delete(ctx, id); err != nil {
					return err
				}
				a.out.Success(fmt.Sprintf("Period %s deleted", id))
				return nil
			}
			p, err := svc.Close(ctx, id)
			if err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("Period %s closed at %s", p.ID, p.ClosedAt.Format(time.RFC3339)))
			return nil
		})
	}

	fmt.Fprintf(a.stderr, "Error: unknown period command %q\n", verb)
	return errUsage
}

func (a *app) runEntry(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(a.stderr, "Usage:\n  finreport entry add|list|update|delete [flags]\n")
		return errUsage
	}
	verb, args := args[0], args[1:]

	fs := a.flags("entry "+verb, "entry "+verb+" -period ID [flags]")
	periodID := fs.String("period", "", "Period id (required)")
	dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
	var (
		entryID     *string
		categoryID  *string
		description *string
		value       *string
	)
	switch verb {
	case "add", "update":
		categoryID = fs.String("category", "", "Category id (required)")
		description = fs.String("description", "", "Description")
		value = fs.String("value", "", "Non-negative amount, e.g. 1500.00 (required)")
		if verb == "update" {
			entryID = fs.String("id", "", "Entry id (required)")
		}
	case "delete":
		entryID = fs.String("id", "", "Entry id (required)")
	case "list":
	default:
		fmt.Fprintf(a.stderr, "Error: unknown entry command %q\n", verb)
		return errUsage
	}
	if err := parse(fs, args); err != nil {
		return err
	}
	if *periodID == "" || (entryID != nil && *entryID == "") {
		fs.Usage()
		return errUsage
	}

	input := func() (period.EntryInput, error) {
		v, err := decimal.NewFromString(*value)
		if err != nil {
			return period.EntryInput{}, fmt.Errorf("%w: -value must be a number, got %q", domain.ErrInvalidInput, *value)
		}
		return period.EntryInput{CategoryID: *categoryID, Description: *description, Value: v}, nil
	}

	return a.withService(ctx, *dbPath, func(svc *period.Service) error {
		switch verb {
		case "add", "update":
			in, err := input()
			if err != nil {
				return err
			}
			var e domain.ManualEntry
			if verb == "add" {
				e, err = svc.AddEntry(ctx, *periodID, in)
			} else {
				e, err = svc.UpdateEntry(ctx, *periodID, *entryID, in)
			}
			if err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("Entry %s: %s %s", e.ID, e.CategoryID, ui.Money(e.Value)))
		case "delete":
			if err := svc.DeleteEntry(ctx, *periodID, *entryID); err != nil {
				return err
			}
			a.out.Success(fmt.Sprintf("Entry %s deleted", *entryID))
		case "list":
			entries, err := svc.ListEntries(ctx, *periodID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tVALUE\tDESCRIPTION")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.CategoryID, ui.Money(e.Value), e.Description)
			}
			tw.Flush()
		}
		return nil
	})
}

func (a *app) runReport(ctx context.Context, args []string) error {
	fs := a.flags("report", "report -period ID | -trend N [-output F] [-db PATH]")
	periodID := fs.String("period", "", "Period to report")
	trend := fs.Int("trend", 0, "Report the last N periods instead")
	outputFile := fs.String("output", "", "Write the report as JSON to this file")
	dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if (*periodID == "") == (*trend <= 0) {
		fmt.Fprintf(a.stderr, "Error: exactly one of -period or -trend is required\n\n")
		fs.Usage()
		return errUsage
	}

	return a.withService(ctx, *dbPath, func(svc *period.Service) error {
		var reports []domain.Report
		if *periodID != "" {
			r, err := svc.Report(ctx, *periodID)
			if err != nil {
				return err
			}
			reports = []domain.Report{r}
		} else {
			var err error
			if reports, err = svc.Trend(ctx, *trend); err != nil {
				return err
			}
		}

		if *outputFile != "" {
			var v any = reports
			if *periodID != "" {
				v = reports[0]
			}
			if err := output.WriteFile(v, *outputFile); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			a.out.Success(fmt.Sprintf("Output written to %s", *outputFile))
			return nil
		}

		for _, r := range reports {
			p, err := svc.Get(ctx, r.PeriodID)
			if err != nil {
				return err
			}
			a.out.Report(p, r)
		}
		return nil
	})
}

func (a *app) runCategories(ctx context.Context, args []string) error {
	fs := a.flags("categories", "categories")
	if err := parse(fs, args); err != nil {
		return err
	}
	cat, err := a.catalog()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBUCKET")
	for _, c := range cat.Categories() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Bucket)
	}
	return tw.Flush()
}

func (a *app) runBatches(ctx context.Context, args []string) error {
	fs := a.flags("batches", "batches [-db PATH]")
	dbPath := fs.String("db", "", "SQLite database (default: DATABASE_PATH)")
	if err := parse(fs, args); err != nil {
		return err
	}
	st, err := a.openStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	batches, err := st.ListBatches(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tFORMAT\tTRANSACTIONS\tUNCLASSIFIED\tSTATUS\tCREATED")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", b.ID, b.FileName, b.Format,
			b.TotalCount, b.UnclassifiedCount, b.Status, b.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
