package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
	"kewangan/internal/services"
)

// idList is a comma-separated list of transaction ids.
type idList []int64

func (l *idList) String() string {
	parts := make([]string, len(*l))
	for i, id := range *l {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (l *idList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", part)
		}
		*l = append(*l, id)
	}
	return nil
}

func scopeFlags(fs *flag.FlagSet) *services.Scope {
	scope := &services.Scope{}
	fs.Int64Var(&scope.StatementID, "statement", 0, "statement id")
	fs.IntVar(&scope.Year, "year", 0, "calendar year of the transaction dates")
	fs.Var((*idList)(&scope.IDs), "ids", "comma-separated transaction ids")
	return scope
}

func runPreview(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	scope := scopeFlags(fs)
	fs.Parse(args)
	return a.categorizer.Preview(ctx, *scope)
}

func runCommit(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("commit", flag.ExitOnError)
	scope := scopeFlags(fs)
	fs.Parse(args)
	return a.categorizer.Commit(ctx, *scope)
}

func runRecategorize(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("recategorize", flag.ExitOnError)
	var ids idList
	fs.Var(&ids, "ids", "comma-separated transaction ids")
	fs.Parse(args)
	return a.categorizer.Recategorize(ctx, ids)
}

func runAssign(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	var (
		ids    idList
		req    services.BulkAssignRequest
		dir    = fs.String("direction", "", "receipt or payment")
		marker = fs.String("period", "", "this_month, next_month or prior_month")
	)
	fs.Var(&ids, "ids", "comma-separated transaction ids")
	fs.StringVar(&req.Category, "category", "", "category name")
	fs.StringVar(&req.SubCategory, "sub", "", "sub-category")
	fs.StringVar(&req.SubCategory2, "sub2", "", "second payment sub-category")
	fs.StringVar(&req.Actor, "actor", os.Getenv("USER"), "who is assigning")
	fs.Parse(args)

	d, err := core.ParseDirection(*dir)
	if err != nil {
		return nil, core.NewValidationError("direction", err.Error())
	}
	if *marker != "" {
		if req.PeriodMarker, err = core.ParsePeriodMarker(*marker); err != nil {
			return nil, core.NewValidationError("period", err.Error())
		}
	}
	req.IDs, req.Direction = ids, d
	return a.categorizer.BulkAssign(ctx, req)
}

func runReport(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	year := fs.Int("year", 0, "reporting year")
	fs.Parse(args)
	return a.reports.YearlyReport(ctx, *year)
}

func runMonth(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("month", flag.ExitOnError)
	year := fs.Int("year", 0, "reporting year")
	month := fs.Int("month", 0, "reporting month 1-12")
	fs.Parse(args)
	return a.reports.MonthlyReport(ctx, *year, *month)
}

func runNota(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("nota", flag.ExitOnError)
	year := fs.Int("year", 0, "reporting year")
	fs.Parse(args)
	n, err := a.reports.RegenerateNota(ctx, *year)
	if err != nil {
		return nil, err
	}
	return map[string]int{"year": *year, "rows": n}, nil
}

func runImport(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	path := fs.String("file", "", "statement JSON document")
	fs.Parse(args)
	if *path == "" {
		return nil, core.NewValidationError("file", "is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc ledger.StatementFile
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, core.NewValidationError("file", err.Error())
	}
	return a.statements.Import(ctx, doc)
}

func runStatements(ctx context.Context, a *app, _ []string) (any, error) {
	return a.statements.List(ctx)
}

func runKeywords(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("keywords", flag.ExitOnError)
	all := fs.Bool("all", false, "include inactive keywords")
	fs.Parse(args)
	return a.taxonomy.ListKeywords(ctx, !*all)
}

func runKeywordAdd(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("keyword-add", flag.ExitOnError)
	dir := fs.String("direction", "", "receipt or payment")
	category := fs.String("category", "", "category the keyword files into")
	text := fs.String("text", "", "text to look for")
	fs.Parse(args)

	d, err := core.ParseDirection(*dir)
	if err != nil {
		return nil, core.NewValidationError("direction", err.Error())
	}
	return a.taxonomy.AddKeyword(ctx, core.Keyword{Direction: d, Category: *category, Text: *text})
}

func runKeywordActive(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("keyword-active", flag.ExitOnError)
	id := fs.Int64("id", 0, "keyword id")
	active := fs.Bool("active", true, "enable (true) or disable (false)")
	fs.Parse(args)
	if err := a.taxonomy.SetKeywordActive(ctx, *id, *active); err != nil {
		return nil, err
	}
	return map[string]any{"id": *id, "active": *active}, nil
}

func runCategories(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	dir := fs.String("direction", "", "receipt or payment; both when empty")
	fs.Parse(args)

	d, err := core.ParseDirection(*dir)
	if err != nil {
		return nil, core.NewValidationError("direction", err.Error())
	}
	return a.taxonomy.ListCategories(ctx, d)
}

func runCategoryAdd(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("category-add", flag.ExitOnError)
	var c core.Category
	dir := fs.String("direction", "", "receipt or payment")
	fs.StringVar(&c.Name, "name", "", "category name")
	fs.StringVar(&c.Parent, "parent", "", "parent category for sub-categories")
	fs.IntVar(&c.Level, "level", 0, "0 for top level, 1 or 2 for sub-categories")
	fs.IntVar(&c.SortOrder, "sort", 0, "report row order")
	fs.Parse(args)

	d, err := core.ParseDirection(*dir)
	if err != nil {
		return nil, core.NewValidationError("direction", err.Error())
	}
	c.Direction, c.Active = d, true
	return a.taxonomy.AddCategory(ctx, c)
}

func runCategoryDelete(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("category-delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "category id")
	fs.Parse(args)
	if err := a.taxonomy.DeleteCategory(ctx, *id); err != nil {
		return nil, err
	}
	return map[string]any{"id": *id, "deleted": true}, nil
}

func runCategoryActive(ctx context.Context, a *app, args []string) (any, error) {
	fs := flag.NewFlagSet("category-active", flag.ExitOnError)
	id := fs.Int64("id", 0, "category id")
	active := fs.Bool("active", true, "enable (true) or disable (false)")
	fs.Parse(args)
	if err := a.taxonomy.SetCategoryActive(ctx, *id, *active); err != nil {
		return nil, err
	}
	return map[string]any{"id": *id, "active": *active}, nil
}
