// Package ledger declares the storage ports the categorizer and the report
// services depend on. Adapters live in ledger/memory, storage and
// storage/postgres.
package ledger

import (
	"context"

	"kewangan/internal/core"
)

// Ports for outbound adapters.
type (
	TransactionReader interface {
		// ListTransactions returns the transactions matching q ordered by id.
		ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error)
		// GetTransaction returns a *core.NotFoundError for an unknown id.
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	}

	// ClassificationWriter persists classifications in one all-or-nothing
	// write. Unknown transaction ids are skipped; with OnlyUnclassified,
	// rows that already carry a category are skipped too. It returns the
	// number of rows actually updated.
	ClassificationWriter interface {
		ApplyClassifications(ctx context.Context, as []core.Assignment, mode core.WriteMode) (int, error)
	}

	KeywordStore interface {
		// ListKeywords returns keywords in insertion order.
		ListKeywords(ctx context.Context, activeOnly bool) ([]core.Keyword, error)
		AddKeyword(ctx context.Context, k core.Keyword) (core.Keyword, error)
		SetKeywordActive(ctx context.Context, id int64, active bool) error
	}

	TaxonomyStore interface {
		// ListCategories returns the categories of dir, or of both
		// directions when dir is unset.
		ListCategories(ctx context.Context, dir core.Direction) ([]core.Category, error)
		AddCategory(ctx context.Context, c core.Category) (core.Category, error)
		// CountClassified counts transactions filed under the named
		// category at any level of dir.
		CountClassified(ctx context.Context, dir core.Direction, name string) (int, error)
		DeleteCategory(ctx context.Context, id int64) error
		SetCategoryActive(ctx context.Context, id int64, active bool) error
		GetCategory(ctx context.Context, id int64) (core.Category, error)
	}

	StatementStore interface {
		ListStatements(ctx context.Context) ([]core.Statement, error)
		// ImportStatement stores s and its lines, returning the stored
		// statement with ids assigned.
		ImportStatement(ctx context.Context, s core.Statement, lines []core.Transaction) (core.Statement, error)
	}

	NotaStore interface {
		// ReplaceAutoNota deletes the auto rows of year and inserts rows in
		// one write. Manual rows are left untouched.
		ReplaceAutoNota(ctx context.Context, year int, rows []core.NotaRow) error
		ListNota(ctx context.Context, year int) ([]core.NotaRow, error)
	}

	// Store is a complete ledger backend.
	Store interface {
		TransactionReader
		ClassificationWriter
		KeywordStore
		TaxonomyStore
		StatementStore
		NotaStore
		Close() error
	}
)
