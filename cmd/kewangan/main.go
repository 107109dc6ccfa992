package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"kewangan/internal/cache"
	"kewangan/internal/cli"
	"kewangan/internal/core"
	klog "kewangan/internal/log"
	"kewangan/internal/report"
	"kewangan/internal/services"
)

type app struct {
	categorizer *services.Categorizer
	reports     *services.ReportService
	taxonomy    *services.TaxonomyService
	statements  *services.StatementService
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) (any, error)
}

var commands = map[string]command{
	"preview":         {"Propose categories for uncategorized transactions", runPreview},
	"commit":          {"Write proposed categories", runCommit},
	"recategorize":    {"Rerun the rules over transactions whatever their category", runRecategorize},
	"assign":          {"File transactions under a category", runAssign},
	"report":          {"Yearly report", runReport},
	"month":           {"Monthly report", runMonth},
	"nota":            {"Regenerate the auto nota rows of a year", runNota},
	"import":          {"Import a statement document", runImport},
	"statements":      {"List imported statements", runStatements},
	"keywords":        {"List keywords", runKeywords},
	"keyword-add":     {"Add a keyword", runKeywordAdd},
	"keyword-active":  {"Enable or disable a keyword", runKeywordActive},
	"categories":      {"List categories", runCategories},
	"category-add":    {"Add a category", runCategoryAdd},
	"category-delete": {"Delete an unused category", runCategoryDelete},
	"category-active": {"Enable or disable a category", runCategoryActive},
}

var order = []string{
	"preview", "commit", "recategorize", "assign",
	"report", "month", "nota",
	"import", "statements",
	"keywords", "keyword-add", "keyword-active",
	"categories", "category-add", "category-delete", "category-active",
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	cli.LoadEnvFile()
	cfg, err := cli.LoadConfig()
	if err != nil {
		klog.New(klog.Config{Output: os.Stderr}).Error("Configuration validation failed",
			klog.FieldError, err,
			klog.FieldErrorType, klog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, klog.ComponentCLI, os.Stderr)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open backend", klog.FieldError, err, klog.FieldErrorType, klog.ErrorTypeDatabase)
		os.Exit(1)
	}

	reports := services.NewReportService(res.Store, cache.NewLRUCache[int, report.YearAggregate](cfg.ReportCacheSize, cfg.ReportCacheTTL))
	var publisher services.EventPublisher
	if res.Events != nil {
		publisher = res.Events
	}
	a := &app{
		categorizer: services.NewCategorizer(res.Store, cfg.Fallback(), publisher, reports),
		reports:     reports,
		taxonomy:    services.NewTaxonomyService(res.Store, reports),
		statements:  services.NewStatementService(res.Store, publisher, reports),
	}

	start := time.Now()
	out, err := cmd.run(ctx, a, os.Args[2:])
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Cleanup failed", klog.FieldOperation, klog.OpShutdown, klog.FieldError, cerr)
	}
	if err != nil {
		logger.Error("Command failed",
			klog.FieldOperation, name,
			klog.FieldError, err,
			klog.FieldErrorType, errorType(err))
		os.Exit(exitCode(err))
	}
	logger.Debug("Command finished", klog.FieldOperation, name, klog.FieldDuration, time.Since(start).Milliseconds())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write output", klog.FieldError, err)
		os.Exit(1)
	}
}

// exitCode is 2 for rejected input and 1 for everything else.
func exitCode(err error) int {
	if errorType(err) == klog.ErrorTypeInternal {
		return 1
	}
	return 2
}

func errorType(err error) string {
	switch {
	case core.IsValidation(err):
		return klog.ErrorTypeValidation
	case core.IsNotFound(err):
		return klog.ErrorTypeNotFound
	case errors.Is(err, core.ErrCategoryInUse):
		return klog.ErrorTypeConflict
	default:
		return klog.ErrorTypeInternal
	}
}

func printUsage() {
	fmt.Println("kewangan - transaction categorization and reporting")
	fmt.Println("\nUsage:")
	fmt.Println("  kewangan <command> [options]")
	fmt.Println("\nCommands:")
	for _, name := range order {
		fmt.Printf("  %-16s %s\n", name, commands[name].usage)
	}
	fmt.Println("\nRun 'kewangan <command> -h' for more information on a command.")
}
