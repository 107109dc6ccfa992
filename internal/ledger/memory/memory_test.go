package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kewangan/internal/core"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	_, err := s.ImportStatement(context.Background(), core.Statement{Year: 2024, Month: 1}, []core.Transaction{
		{Date: core.NewDate(2024, 1, 5), Credit: core.Money{Cents: 5000}, CounterpartyRef: "yuran"},
		{Date: core.NewDate(2024, 1, 31), Debit: core.Money{Cents: 1200}, CounterpartyRef: "TNB"},
		{Date: core.NewDate(2024, 2, 1), Credit: core.Money{Cents: 800}, PaymentDetail: "derma 8"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return s
}

func TestImportAssignsIDs(t *testing.T) {
	s := seeded(t)
	txs, err := s.ListTransactions(context.Background(), core.TransactionQuery{})
	if err != nil || len(txs) != 3 {
		t.Fatalf("list: %v %v", txs, err)
	}
	for i, tx := range txs {
		if tx.ID != int64(i+1) || tx.StatementID != 1 {
			t.Fatalf("unexpected ids %+v", tx)
		}
	}
	if _, err := s.GetTransaction(context.Background(), 42); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestImportRejectsInvalidLine(t *testing.T) {
	s := New()
	_, err := s.ImportStatement(context.Background(), core.Statement{Year: 2024, Month: 1}, []core.Transaction{
		{Date: core.NewDate(2024, 1, 5), Credit: core.Money{Cents: 1}, Debit: core.Money{Cents: 1}},
	})
	if err == nil {
		t.Fatal("expected error for line with both amounts")
	}
	if sts, _ := s.ListStatements(context.Background()); len(sts) != 0 {
		t.Fatalf("statement stored despite invalid line: %+v", sts)
	}
}

func TestListTransactionsFilters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	if _, err := s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Yuran Bulanan", "")},
	}, core.OnlyUnclassified); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		q    core.TransactionQuery
		want []int64
	}{
		{"all", core.TransactionQuery{}, []int64{1, 2, 3}},
		{"ids", core.TransactionQuery{IDs: []int64{3, 1, 99}}, []int64{1, 3}},
		{"january", core.TransactionQuery{From: core.YearMonth{Year: 2024, Month: 1}, To: core.YearMonth{Year: 2024, Month: 1}}, []int64{1, 2}},
		{"from february", core.TransactionQuery{From: core.YearMonth{Year: 2024, Month: 2}}, []int64{3}},
		{"unclassified", core.TransactionQuery{Unclassified: true}, []int64{2, 3}},
		{"classified", core.TransactionQuery{Classified: true}, []int64{1}},
		{"other statement", core.TransactionQuery{StatementID: 2}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := s.ListTransactions(ctx, tt.q)
			if err != nil {
				t.Fatal(err)
			}
			var got []int64
			for _, tx := range txs {
				got = append(got, tx.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestApplyClassificationsModes(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	n, err := s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Yuran Bulanan", ""), Provenance: core.Provenance{Actor: core.ActorAuto, Auto: true}},
		{TransactionID: 99, Classification: core.ReceiptClass("Yuran Bulanan", "")},
	}, core.OnlyUnclassified)
	if err != nil || n != 1 {
		t.Fatalf("first write: n=%d err=%v", n, err)
	}

	n, err = s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Derma Jumaat", "")},
	}, core.OnlyUnclassified)
	if err != nil || n != 0 {
		t.Fatalf("categorized row overwritten: n=%d err=%v", n, err)
	}

	n, err = s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.PaymentClass("Utiliti", "", ""), UpdateMarker: true, PeriodMarker: core.PeriodNextMonth},
	}, core.Overwrite)
	if err != nil || n != 1 {
		t.Fatalf("overwrite: n=%d err=%v", n, err)
	}
	tx, _ := s.GetTransaction(ctx, 1)
	if tx.Direction != core.Payment || tx.Classification.Category() != "Utiliti" || tx.PeriodMarker != core.PeriodNextMonth {
		t.Fatalf("unexpected transaction %+v", tx)
	}
}

func TestApplyClassificationsIsAllOrNothing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	bad := core.PaymentClass("", "", "")
	_, err := s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 1, Classification: core.ReceiptClass("Yuran Bulanan", "")},
		{TransactionID: 2, Classification: bad},
	}, core.Overwrite)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if tx, _ := s.GetTransaction(ctx, 1); tx.IsClassified() {
		t.Fatal("partial write visible after failed batch")
	}
}

func TestTaxonomy(t *testing.T) {
	s := New()
	ctx := context.Background()

	c, err := s.AddCategory(ctx, core.Category{Direction: core.Payment, Name: "Utiliti", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCategory(ctx, core.Category{Direction: core.Payment, Name: "Utiliti"}); !core.IsValidation(err) {
		t.Fatalf("duplicate category: %v", err)
	}
	if _, err := s.AddCategory(ctx, core.Category{Direction: core.Receipt, Name: "Utiliti"}); err != nil {
		t.Fatalf("same name in the other direction: %v", err)
	}
	if err := s.SetCategoryActive(ctx, c.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetCategory(ctx, c.ID)
	if got.Active {
		t.Fatal("category still active")
	}
	if err := s.DeleteCategory(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCategory(ctx, c.ID); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if cats, _ := s.ListCategories(ctx, core.Payment); len(cats) != 0 {
		t.Fatalf("payment categories left: %+v", cats)
	}

	k, err := s.AddKeyword(ctx, core.Keyword{Direction: core.Receipt, Category: "Yuran", Text: "YURAN", Active: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetKeywordActive(ctx, k.ID, false); err != nil {
		t.Fatal(err)
	}
	if kws, _ := s.ListKeywords(ctx, true); len(kws) != 0 {
		t.Fatalf("inactive keyword listed: %+v", kws)
	}
	if err := s.SetKeywordActive(ctx, 77, true); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCountClassified(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	_, _ = s.ApplyClassifications(ctx, []core.Assignment{
		{TransactionID: 2, Classification: core.PaymentClass("Utiliti", "Elektrik", "")},
	}, core.Overwrite)

	for name, want := range map[string]int{"Utiliti": 1, "Elektrik": 1, "Air": 0} {
		if n, _ := s.CountClassified(ctx, core.Payment, name); n != want {
			t.Errorf("CountClassified(%q) = %d, want %d", name, n, want)
		}
	}
	if n, _ := s.CountClassified(ctx, core.Receipt, "Utiliti"); n != 0 {
		t.Errorf("receipt count = %d", n)
	}
}

func TestReplaceAutoNotaKeepsManualRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AddManualNota(core.NotaRow{Year: 2024, Month: 1, Direction: core.Receipt, Category: "Lain-lain", Amount: core.Money{Cents: 1}})

	rows := []core.NotaRow{{Year: 2024, Month: 2, Direction: core.Receipt, Category: "Derma Jumaat", Amount: core.Money{Cents: 100}}}
	for range 2 {
		if err := s.ReplaceAutoNota(ctx, 2024, rows); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := s.ListNota(ctx, 2024)
	if len(got) != 2 {
		t.Fatalf("expected manual + one auto row, got %+v", got)
	}
	if err := s.ReplaceAutoNota(ctx, 2023, rows); err == nil {
		t.Fatal("expected error for rows of another year")
	}
}

func TestNewFromFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cats, _ := s.ListCategories(context.Background(), ""); len(cats) == 0 {
		t.Fatal("expected default categories when files missing")
	}

	mustWrite := func(name, content string) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("seed_categories.txt", "# direction|name|parent|level\nterimaan|Yuran Bulanan\nbayaran|Utiliti\nbayaran|Elektrik|Utiliti\n")
	mustWrite("seed_keywords.txt", "# direction|category|text\nreceipt|Yuran Bulanan|YURAN\n")
	mustWrite("seed_statements/2024-01.json", `{"year":2024,"month":1,"opening_balance":"100.00","lines":[
		{"date":"2024-01-05","credit":"50.00","counterparty_ref":"YURAN AHMAD"},
		{"date":"2024-01-31","debit":12.5,"payment_detail":"bil","period_marker":"bulan_depan"}]}`)

	s, err = NewFromFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	cats, _ := s.ListCategories(ctx, core.Payment)
	if len(cats) != 2 || cats[1].Level != 1 || cats[1].Parent != "Utiliti" {
		t.Fatalf("unexpected categories %+v", cats)
	}
	if kws, _ := s.ListKeywords(ctx, true); len(kws) != 1 || kws[0].Direction != core.Receipt {
		t.Fatalf("unexpected keywords %+v", kws)
	}
	sts, _ := s.ListStatements(ctx)
	if len(sts) != 1 || sts[0].OpeningBalance == nil || sts[0].OpeningBalance.Cents != 10000 {
		t.Fatalf("unexpected statements %+v", sts)
	}
	txs, _ := s.ListTransactions(ctx, core.TransactionQuery{})
	if len(txs) != 2 || txs[1].Debit.Cents != 1250 || txs[1].PeriodMarker != core.PeriodNextMonth {
		t.Fatalf("unexpected transactions %+v", txs)
	}

	mustWrite("seed_keywords.txt", "receipt|only two\n")
	if _, err := NewFromFiles(dir); err == nil {
		t.Fatal("expected error for malformed keyword line")
	}
}
