package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kewangan/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "kewangan.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func importJanuary(t *testing.T, repo *SQLiteRepository) core.Statement {
	t.Helper()
	opening := core.Money{Cents: 100000}
	st, err := repo.ImportStatement(context.Background(), core.Statement{Year: 2024, Month: 1, OpeningBalance: &opening}, []core.Transaction{
		{Date: core.NewDate(2024, 1, 5), Credit: core.Money{Cents: 5000}, CounterpartyRef: "YURAN AHMAD"},
		{Date: core.NewDate(2024, 1, 31), Debit: core.Money{Cents: 1200}, CounterpartyRef: "TNB", PeriodMarker: core.PeriodNextMonth},
		{Date: core.NewDate(2024, 2, 1), Credit: core.Money{Cents: 800}, PaymentDetail: "derma 8", Direction: core.Receipt},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return st
}

func TestRepository_ImportAndRead(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	st := importJanuary(t, repo)

	sts, err := repo.ListStatements(ctx)
	if err != nil || len(sts) != 1 || sts[0].ID != st.ID || sts[0].OpeningBalance == nil || sts[0].OpeningBalance.Cents != 100000 {
		t.Fatalf("statements: %+v err=%v", sts, err)
	}

	txs, err := repo.ListTransactions(ctx, core.TransactionQuery{StatementID: st.ID})
	if err != nil || len(txs) != 3 {
		t.Fatalf("transactions: %+v err=%v", txs, err)
	}
	if txs[1].PeriodMarker != core.PeriodNextMonth || txs[1].Date.String() != "2024-01-31" {
		t.Fatalf("unexpected second line %+v", txs[1])
	}
	if txs[2].Direction != core.Receipt || txs[0].Direction != core.DirectionUnset {
		t.Fatalf("directions not preserved: %v %v", txs[0].Direction, txs[2].Direction)
	}

	jan, _ := repo.ListTransactions(ctx, core.TransactionQuery{
		From: core.YearMonth{Year: 2024, Month: 1},
		To:   core.YearMonth{Year: 2024, Month: 1},
	})
	if len(jan) != 2 {
		t.Fatalf("january lines = %d, want 2", len(jan))
	}

	if _, err := repo.GetTransaction(ctx, 999); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepository_ApplyClassifications(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	importJanuary(t, repo)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	n, err := repo.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Yuran Bulanan", ""), Provenance: core.Provenance{Actor: core.ActorAuto, Auto: true, RuleID: "keyword:1", BatchID: "b1", At: at}},
		{TransactionID: 2, Classification: core.PaymentClass("Utiliti", "Elektrik", "TNB")},
		{TransactionID: 42, Classification: core.ReceiptClass("Yuran Bulanan", "")},
	}, core.OnlyUnclassified)
	if err != nil || n != 2 {
		t.Fatalf("apply: n=%d err=%v", n, err)
	}

	tx, err := repo.GetTransaction(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Classification.Category() != "Yuran Bulanan" || tx.Direction != core.Receipt {
		t.Fatalf("classification not stored: %+v", tx)
	}
	if !tx.Provenance.Auto || tx.Provenance.RuleID != "keyword:1" || tx.Provenance.BatchID != "b1" || !tx.Provenance.At.Equal(at) {
		t.Fatalf("provenance not stored: %+v", tx.Provenance)
	}

	n, err = repo.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Derma Jumaat", "")},
	}, core.OnlyUnclassified)
	if err != nil || n != 0 {
		t.Fatalf("categorized row rewritten: n=%d err=%v", n, err)
	}

	n, err = repo.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.PaymentClass("Utiliti", "", ""), UpdateMarker: true, PeriodMarker: core.PeriodPriorMonth},
	}, core.Overwrite)
	if err != nil || n != 1 {
		t.Fatalf("overwrite: n=%d err=%v", n, err)
	}
	tx, _ = repo.GetTransaction(ctx, 1)
	if tx.Direction != core.Payment || tx.Classification.Category() != "Utiliti" || tx.PeriodMarker != core.PeriodPriorMonth {
		t.Fatalf("overwrite not stored: %+v", tx)
	}

	tx2, _ := repo.GetTransaction(ctx, 2)
	if tx2.Classification.SubCategory2() != "TNB" || tx2.PeriodMarker != core.PeriodNextMonth {
		t.Fatalf("marker changed without UpdateMarker: %+v", tx2)
	}

	classified, _ := repo.ListTransactions(ctx, core.TransactionQuery{Classified: true})
	unclassified, _ := repo.ListTransactions(ctx, core.TransactionQuery{Unclassified: true})
	if len(classified) != 2 || len(unclassified) != 1 || unclassified[0].ID != 3 {
		t.Fatalf("classified=%d unclassified=%+v", len(classified), unclassified)
	}
}

func TestRepository_ApplyClassificationsRejectsInvalidBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	importJanuary(t, repo)

	_, err := repo.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Yuran Bulanan", "")},
		{TransactionID: 2, Classification: core.PaymentClass("", "x", "")},
	}, core.Overwrite)
	if err == nil {
		t.Fatal("expected error")
	}
	tx, _ := repo.GetTransaction(ctx, 1)
	if tx.IsClassified() {
		t.Fatal("partial batch written")
	}
}

func TestRepository_Taxonomy(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	importJanuary(t, repo)

	c, err := repo.AddCategory(ctx, core.Category{Direction: core.Payment, Name: "Utiliti", Active: true, SortOrder: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddCategory(ctx, core.Category{Direction: core.Payment, Name: "Utiliti"}); !core.IsValidation(err) {
		t.Fatalf("duplicate category: %v", err)
	}
	sub, err := repo.AddCategory(ctx, core.Category{Direction: core.Payment, Name: "Elektrik", Parent: "Utiliti", Level: 1, Active: true})
	if err != nil {
		t.Fatal(err)
	}
	cats, _ := repo.ListCategories(ctx, core.Payment)
	if len(cats) != 2 {
		t.Fatalf("categories: %+v", cats)
	}
	if err := repo.SetCategoryActive(ctx, sub.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetCategory(ctx, sub.ID)
	if got.Active || got.Parent != "Utiliti" || got.Level != 1 {
		t.Fatalf("unexpected category %+v", got)
	}

	_, _ = repo.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 2, Classification: core.PaymentClass("Utiliti", "Elektrik", "")},
	}, core.Overwrite)
	if n, _ := repo.CountClassified(ctx, core.Payment, "Elektrik"); n != 1 {
		t.Fatalf("CountClassified(Elektrik) = %d", n)
	}
	if n, _ := repo.CountClassified(ctx, core.Receipt, "Utiliti"); n != 0 {
		t.Fatalf("CountClassified(receipt Utiliti) = %d", n)
	}

	if err := repo.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteCategory(ctx, c.ID); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	k, err := repo.AddKeyword(ctx, core.Keyword{Direction: core.Receipt, Category: "Yuran Bulanan", Text: " YURAN ", Active: true})
	if err != nil || k.Text != "YURAN" {
		t.Fatalf("add keyword: %+v %v", k, err)
	}
	if _, err := repo.AddKeyword(ctx, core.Keyword{Direction: core.Receipt, Category: "Yuran Bulanan", Text: "YURAN"}); !core.IsValidation(err) {
		t.Fatalf("duplicate keyword: %v", err)
	}
	if err := repo.SetKeywordActive(ctx, k.ID, false); err != nil {
		t.Fatal(err)
	}
	if active, _ := repo.ListKeywords(ctx, true); len(active) != 0 {
		t.Fatalf("inactive keyword listed: %+v", active)
	}
	if all, _ := repo.ListKeywords(ctx, false); len(all) != 1 {
		t.Fatalf("keywords: %+v", all)
	}
}

func TestRepository_ReplaceAutoNota(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.db.ExecContext(ctx,
		"INSERT INTO nota_rows (year, month, direction, category, amount_cents, auto) VALUES (2024, 1, 'receipt', 'Manual', 1, 0)"); err != nil {
		t.Fatal(err)
	}
	rows := []core.NotaRow{
		{Year: 2024, Month: 2, Direction: core.Receipt, Category: "Derma Jumaat", Amount: core.Money{Cents: 1000}, Auto: true},
		{Year: 2024, Month: 3, Direction: core.Payment, Category: "Utiliti", Amount: core.Money{Cents: 200}, Auto: true},
	}
	for range 2 {
		if err := repo.ReplaceAutoNota(ctx, 2024, rows); err != nil {
			t.Fatal(err)
		}
	}
	got, err := repo.ListNota(ctx, 2024)
	if err != nil || len(got) != 3 {
		t.Fatalf("nota rows: %+v err=%v", got, err)
	}
	if got[0].Auto || !got[1].Auto || got[2].Amount.Cents != 200 {
		t.Fatalf("unexpected rows %+v", got)
	}

	if err := repo.ReplaceAutoNota(ctx, 2025, rows); err == nil {
		t.Fatal("expected error for rows of another year")
	}
	if got, _ := repo.ListNota(ctx, 2024); len(got) != 3 {
		t.Fatalf("failed replacement changed rows: %+v", got)
	}
}
