/*
main.go - Batch command line

PURPOSE:
  Runs the engine's batch actions outside the HTTP server, for cron jobs
  and one-off maintenance. Every action except the receipts export is
  recorded in the run log, exactly as when triggered through the API.

USAGE:
  batch <command> [flags]

COMMANDS:
  objectives   -plan P -year Y [-salespeople 1,2]   apportion a plan year
  commissions  -year Y -month M [-salespeople 1,2] [-actor A]
  rapels       -year Y -quarter Q [-salespeople 1,2]
  import-plan  -file plan.yaml [-format yaml|json]
  receipts     -out recibos.xlsx [-year Y] [-salesperson S] [-from D] [-to D]

COMMON FLAGS:
  -config, -env   configuration sources (see config/config.go)
  -db             SQLite database path (overrides configuration)

SEE ALSO:
  - engine/batch.go: tracked actions
  - export/receipts.go: receipts workbook
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/warp/commission-engine/commissions"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/engine"
	"github.com/warp/commission-engine/export"
	"github.com/warp/commission-engine/factory"
	"github.com/warp/commission-engine/generic"
	"github.com/warp/commission-engine/runs"
	"go.uber.org/zap"
)

const usage = "usage: batch <objectives|commissions|rapels|import-plan|receipts> [flags]"

func main() {
	if len(os.Args) < 2 {
		fatalf(usage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "objectives":
		err = objectivesCmd(ctx, os.Args[2:])
	case "commissions":
		err = commissionsCmd(ctx, os.Args[2:])
	case "rapels":
		err = rapelsCmd(ctx, os.Args[2:])
	case "import-plan":
		err = importPlanCmd(ctx, os.Args[2:])
	case "receipts":
		err = receiptsCmd(ctx, os.Args[2:])
	default:
		fatalf("unknown command: %s\n%s", os.Args[1], usage)
	}
	if err != nil {
		stop()
		fatal(err)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func objectivesCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("objectives")
	plan := fs.String("plan", "", "plan name")
	year := fs.Int("year", 0, "plan year")
	people := fs.String("salespeople", "", "comma-separated salesperson ids (default: every active one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *plan == "" || *year == 0 {
		return errors.New("objectives: -plan and -year are required")
	}
	ids, err := parseIDs(*people)
	if err != nil {
		return err
	}

	return withEngine(ctx, common, func(e *engine.Engine) error {
		res, run, err := e.GenerateObjectives(ctx, engine.ObjectivesParams{Plan: *plan, Year: *year, Salespeople: ids})
		if err != nil {
			return err
		}
		fmt.Printf("objectives %s %d: %d upserts, %d skipped (run %s)\n", *plan, *year, res.Upserts, res.Skipped, runID(run))
		return nil
	})
}

func commissionsCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("commissions")
	year := fs.Int("year", 0, "year")
	month := fs.Int("month", 0, "month (1-12)")
	people := fs.String("salespeople", "", "comma-separated salesperson ids (default: every active one)")
	actor := fs.String("actor", "batch", "recorded as the calculating actor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*people)
	if err != nil {
		return err
	}

	return withEngine(ctx, common, func(e *engine.Engine) error {
		records, run, err := e.ComputeCommissions(ctx, engine.CommissionParams{
			Year: *year, Month: *month, Salespeople: ids, Actor: *actor,
		})
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%d\t%s\t%s\t%s\n", r.SalespersonID, r.State, r.TotalSales.StringFixed(2), r.TotalCommission.StringFixed(2))
		}
		fmt.Printf("commissions %d/%02d: %d records (run %s)\n", *year, *month, len(records), runID(run))
		return nil
	})
}

func rapelsCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("rapels")
	year := fs.Int("year", 0, "year")
	quarter := fs.Int("quarter", 0, "quarter (1-4)")
	people := fs.String("salespeople", "", "comma-separated salesperson ids (default: every active one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids, err := parseIDs(*people)
	if err != nil {
		return err
	}

	return withEngine(ctx, common, func(e *engine.Engine) error {
		records, run, err := e.ComputeRapels(ctx, engine.RapelParams{Quarter: *quarter, Year: *year, Salespeople: ids})
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%d\t%d\t%s%%\t%s\n", r.SalespersonID, r.BrandID, r.AchievementPercentage.StringFixed(2), r.RebateAmount.StringFixed(2))
		}
		fmt.Printf("rapels Q%d %d: %d records (run %s)\n", *quarter, *year, len(records), runID(run))
		return nil
	})
}

func importPlanCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("import-plan")
	file := fs.String("file", "", "plan document")
	format := fs.String("format", "", "yaml or json (default: from the file extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("import-plan: -file is required")
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	if *format == "" {
		switch {
		case strings.HasSuffix(*file, ".yaml"), strings.HasSuffix(*file, ".yml"):
			*format = "yaml"
		case strings.HasSuffix(*file, ".json"):
			*format = "json"
		}
	}
	doc, err := factory.ParsePlan(data, *format)
	if err != nil {
		return err
	}

	return withEngine(ctx, common, func(e *engine.Engine) error {
		res, run, err := e.ImportPlan(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Printf("plan %s %d: %d quotas, %d splits (run %s)\n", doc.Plan, doc.Year, res.Quotas, res.Splits, runID(run))
		for _, w := range res.SplitWarnings {
			fmt.Printf("warning: channel %s splits total %s%%\n", w.Channel, w.Total.String())
		}
		return nil
	})
}

func receiptsCmd(ctx context.Context, args []string) error {
	fs, common := newFlagSet("receipts")
	out := fs.String("out", "recibos.xlsx", "output workbook")
	year := fs.Int("year", 0, "year")
	person := fs.Int64("salesperson", 0, "salesperson id")
	from := fs.String("from", "", "first payment day (YYYY-MM-DD)")
	to := fs.String("to", "", "last payment day (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f := commissions.ReceiptFilter{From: *from, To: *to}
	if *year != 0 {
		f.Year = year
	}
	if *person != 0 {
		f.SalespersonID = generic.Ptr(generic.SalespersonID(*person))
	}

	return withEngine(ctx, common, func(e *engine.Engine) error {
		receipts, err := e.Commissions.ListPaymentReceipts(ctx, f)
		if err != nil {
			return err
		}
		w, err := os.Create(*out)
		if err != nil {
			return err
		}
		if err := export.WriteReceipts(w, receipts); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		fmt.Printf("%d receipts written to %s\n", len(receipts), *out)
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

type commonFlags struct {
	config *string
	env    *string
	db     *string
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs, commonFlags{
		config: fs.String("config", "config.toml", "TOML configuration file"),
		env:    fs.String("env", ".env", "dotenv file"),
		db:     fs.String("db", "", "SQLite database path"),
	}
}

// withEngine loads the configuration, opens the store and runs fn.
func withEngine(ctx context.Context, c commonFlags, fn func(*engine.Engine) error) error {
	cfg, err := config.Load(*c.config, *c.env)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if *c.db != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = *c.db
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := cfg.Database.Open(ctx, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	opts, exceptions, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	e := engine.New(db, engine.Options{Objectives: opts, JanuaryExceptions: exceptions}, logger)
	if err := fn(e); err != nil {
		logger.Error("batch failed", zap.Error(err))
		return err
	}
	return nil
}

func parseIDs(s string) ([]generic.SalespersonID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []generic.SalespersonID
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid salesperson id %q", part)
		}
		ids = append(ids, generic.SalespersonID(id))
	}
	return ids, nil
}

func runID(run *runs.Run) string {
	if run == nil {
		return "-"
	}
	return run.ID.String()
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
