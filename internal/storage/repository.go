package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
	klog "kewangan/internal/log"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db     *sql.DB
	logger *klog.Logger
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, logger: klog.Named(klog.ComponentStorage)}, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const transactionColumns = `id, statement_id, txn_date, credit_cents, debit_cents, counterparty_ref,
	payment_detail, direction, receipt_category, receipt_sub, payment_category, payment_sub1,
	payment_sub2, period_marker, categorized_by, categorized_auto, rule_id, batch_id, categorized_at`

// ListTransactions implements ledger.TransactionReader
func (r *SQLiteRepository) ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if q.StatementID != 0 {
		where = append(where, "statement_id = ?")
		args = append(args, q.StatementID)
	}
	if len(q.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(q.IDs))+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if !q.From.IsZero() {
		where = append(where, "txn_date >= ?")
		args = append(args, q.From.FirstDay().Format(dateLayout))
	}
	if !q.To.IsZero() {
		where = append(where, "txn_date < ?")
		args = append(args, q.To.Next().FirstDay().Format(dateLayout))
	}
	if q.Unclassified {
		where = append(where, "receipt_category IS NULL AND payment_category IS NULL")
	}
	if q.Classified {
		where = append(where, "(receipt_category IS NOT NULL OR payment_category IS NOT NULL)")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// GetTransaction implements ledger.TransactionReader
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	return tx, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx                                       core.Transaction
		date                                     string
		direction, marker                        sql.NullString
		recCat, recSub, payCat, paySub1, paySub2 sql.NullString
		actor, ruleID, batchID                   sql.NullString
		auto                                     bool
		at                                       sql.NullTime
	)
	err := s.Scan(&tx.ID, &tx.StatementID, &date, &tx.Credit.Cents, &tx.Debit.Cents,
		&tx.CounterpartyRef, &tx.PaymentDetail, &direction, &recCat, &recSub, &payCat,
		&paySub1, &paySub2, &marker, &actor, &auto, &ruleID, &batchID, &at)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	if tx.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.Direction, err = core.ParseDirection(direction.String); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.PeriodMarker, err = core.ParsePeriodMarker(marker.String); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Classification, err = core.ClassificationFromColumns(core.Columns{
		ReceiptCategory: nullPtr(recCat),
		ReceiptSub:      nullPtr(recSub),
		PaymentCategory: nullPtr(payCat),
		PaymentSub1:     nullPtr(paySub1),
		PaymentSub2:     nullPtr(paySub2),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Provenance = core.Provenance{
		Actor:   actor.String,
		Auto:    auto,
		RuleID:  ruleID.String,
		BatchID: batchID.String,
	}
	if at.Valid {
		tx.Provenance.At = at.Time
	}
	return tx, nil
}

const updateClassification = `UPDATE transactions SET
	direction = ?, receipt_category = ?, receipt_sub = ?, payment_category = ?,
	payment_sub1 = ?, payment_sub2 = ?,
	period_marker = CASE WHEN ? THEN ? ELSE period_marker END,
	categorized_by = ?, categorized_auto = ?, rule_id = ?, batch_id = ?, categorized_at = ?
	WHERE id = ?`

// ApplyClassifications implements ledger.ClassificationWriter
func (r *SQLiteRepository) ApplyClassifications(ctx context.Context, as []core.Assignment, mode core.WriteMode) (int, error) {
	for _, a := range as {
		if err := a.Classification.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", a.TransactionID, err)
		}
	}

	query := updateClassification
	if mode == core.OnlyUnclassified {
		query += " AND receipt_category IS NULL AND payment_category IS NULL"
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin classification batch: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare classification update: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for _, a := range as {
		cols := a.Classification.Columns()
		at := a.Provenance.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		res, err := stmt.ExecContext(ctx,
			nullString(string(a.Classification.Direction())),
			fromPtr(cols.ReceiptCategory), fromPtr(cols.ReceiptSub), fromPtr(cols.PaymentCategory),
			fromPtr(cols.PaymentSub1), fromPtr(cols.PaymentSub2),
			a.UpdateMarker, nullString(a.PeriodMarker.String()),
			nullString(a.Provenance.Actor), a.Provenance.Auto, nullString(a.Provenance.RuleID),
			nullString(a.Provenance.BatchID), at,
			a.TransactionID,
		)
		if err != nil {
			return 0, fmt.Errorf("classify transaction %d: %w", a.TransactionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("classify transaction %d: %w", a.TransactionID, err)
		}
		updated += int(n)
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit classification batch: %w", err)
	}

	r.logger.InfoContext(ctx, "Classifications saved to SQLite",
		klog.FieldCount, len(as),
		klog.FieldUpdated, updated)

	return updated, nil
}

// ListKeywords implements ledger.KeywordStore
func (r *SQLiteRepository) ListKeywords(ctx context.Context, activeOnly bool) ([]core.Keyword, error) {
	query := "SELECT id, direction, category, text, active FROM keywords"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []core.Keyword
	for rows.Next() {
		var k core.Keyword
		if err := rows.Scan(&k.ID, &k.Direction, &k.Category, &k.Text, &k.Active); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddKeyword implements ledger.KeywordStore
func (r *SQLiteRepository) AddKeyword(ctx context.Context, k core.Keyword) (core.Keyword, error) {
	k.Category = strings.TrimSpace(k.Category)
	k.Text = strings.TrimSpace(k.Text)
	if err := k.Validate(); err != nil {
		return core.Keyword{}, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO keywords (direction, category, text, active) VALUES (?, ?, ?, ?)",
		string(k.Direction), k.Category, k.Text, k.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Keyword{}, core.NewValidationError("text", "keyword already exists")
		}
		return core.Keyword{}, fmt.Errorf("insert keyword: %w", err)
	}
	if k.ID, err = res.LastInsertId(); err != nil {
		return core.Keyword{}, fmt.Errorf("insert keyword: %w", err)
	}
	return k, nil
}

// SetKeywordActive implements ledger.KeywordStore
func (r *SQLiteRepository) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, "keyword", id, "UPDATE keywords SET active = ? WHERE id = ?", active, id)
}

const categoryColumns = "id, direction, name, parent, level, active, sort_order"

// ListCategories implements ledger.TaxonomyStore
func (r *SQLiteRepository) ListCategories(ctx context.Context, dir core.Direction) ([]core.Category, error) {
	query := "SELECT " + categoryColumns + " FROM categories"
	var args []any
	if dir != core.DirectionUnset {
		query += " WHERE direction = ?"
		args = append(args, string(dir))
	}
	query += " ORDER BY direction, sort_order, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(s scanner) (core.Category, error) {
	var c core.Category
	if err := s.Scan(&c.ID, &c.Direction, &c.Name, &c.Parent, &c.Level, &c.Active, &c.SortOrder); err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	return c, nil
}

// GetCategory implements ledger.TaxonomyStore
func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	return c, err
}

// AddCategory implements ledger.TaxonomyStore
func (r *SQLiteRepository) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Parent = strings.TrimSpace(c.Parent)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (direction, name, parent, level, active, sort_order) VALUES (?, ?, ?, ?, ?, ?)",
		string(c.Direction), c.Name, c.Parent, c.Level, c.Active, c.SortOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, core.NewValidationError("name", "category already exists")
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

// CountClassified implements ledger.TaxonomyStore
func (r *SQLiteRepository) CountClassified(ctx context.Context, dir core.Direction, name string) (int, error) {
	var query string
	switch dir {
	case core.Receipt:
		query = "SELECT COUNT(*) FROM transactions WHERE receipt_category = ?1 OR receipt_sub = ?1"
	case core.Payment:
		query = "SELECT COUNT(*) FROM transactions WHERE payment_category = ?1 OR payment_sub1 = ?1 OR payment_sub2 = ?1"
	default:
		return 0, core.ErrInvalidDirection
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classified: %w", err)
	}
	return n, nil
}

// DeleteCategory implements ledger.TaxonomyStore
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	if err := r.execOne(ctx, "category", id, "DELETE FROM categories WHERE id = ?", id); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Category deleted", klog.FieldID, id)
	return nil
}

// SetCategoryActive implements ledger.TaxonomyStore
func (r *SQLiteRepository) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, "category", id, "UPDATE categories SET active = ? WHERE id = ?", active, id)
}

// ListStatements implements ledger.StatementStore
func (r *SQLiteRepository) ListStatements(ctx context.Context) ([]core.Statement, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, year, month, opening_balance_cents FROM statements ORDER BY year, month, id")
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []core.Statement
	for rows.Next() {
		var (
			s       core.Statement
			opening sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Year, &s.Month, &opening); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		if opening.Valid {
			s.OpeningBalance = &core.Money{Cents: opening.Int64}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ImportStatement implements ledger.StatementStore
func (r *SQLiteRepository) ImportStatement(ctx context.Context, s core.Statement, lines []core.Transaction) (core.Statement, error) {
	if err := s.YearMonth().Validate(); err != nil {
		return core.Statement{}, err
	}
	for i, tx := range lines {
		if err := tx.Validate(); err != nil {
			return core.Statement{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Statement{}, fmt.Errorf("begin import: %w", err)
	}
	defer dbtx.Rollback()

	var opening any
	if s.OpeningBalance != nil {
		opening = s.OpeningBalance.Cents
	}
	res, err := dbtx.ExecContext(ctx,
		"INSERT INTO statements (year, month, opening_balance_cents) VALUES (?, ?, ?)",
		s.Year, s.Month, opening)
	if err != nil {
		return core.Statement{}, fmt.Errorf("insert statement: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return core.Statement{}, fmt.Errorf("insert statement: %w", err)
	}

	stmt, err := dbtx.PrepareContext(ctx, `INSERT INTO transactions
		(statement_id, txn_date, credit_cents, debit_cents, counterparty_ref, payment_detail,
		 direction, receipt_category, receipt_sub, payment_category, payment_sub1, payment_sub2, period_marker)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return core.Statement{}, fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for i, tx := range lines {
		cols := tx.Classification.Columns()
		_, err := stmt.ExecContext(ctx, s.ID, tx.Date.String(), tx.Credit.Cents, tx.Debit.Cents,
			tx.CounterpartyRef, tx.PaymentDetail, nullString(string(tx.Direction)),
			fromPtr(cols.ReceiptCategory), fromPtr(cols.ReceiptSub), fromPtr(cols.PaymentCategory),
			fromPtr(cols.PaymentSub1), fromPtr(cols.PaymentSub2),
			nullString(tx.PeriodMarker.String()))
		if err != nil {
			return core.Statement{}, fmt.Errorf("insert line %d: %w", i+1, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return core.Statement{}, fmt.Errorf("commit import: %w", err)
	}

	r.logger.InfoContext(ctx, "Statement imported to SQLite",
		klog.FieldStatementID, s.ID,
		klog.FieldYear, s.Year,
		klog.FieldMonth, s.Month,
		klog.FieldCount, len(lines))

	return s, nil
}

// ReplaceAutoNota implements ledger.NotaStore
func (r *SQLiteRepository) ReplaceAutoNota(ctx context.Context, year int, rows []core.NotaRow) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin nota refresh: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, "DELETE FROM nota_rows WHERE year = ? AND auto = 1", year); err != nil {
		return fmt.Errorf("delete auto nota: %w", err)
	}
	for _, row := range rows {
		if row.Year != year {
			return fmt.Errorf("nota row for %d in replacement of %d", row.Year, year)
		}
		_, err := dbtx.ExecContext(ctx,
			"INSERT INTO nota_rows (year, month, direction, category, amount_cents, auto) VALUES (?, ?, ?, ?, ?, 1)",
			row.Year, row.Month, string(row.Direction), row.Category, row.Amount.Cents)
		if err != nil {
			return fmt.Errorf("insert nota row: %w", err)
		}
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit nota refresh: %w", err)
	}

	r.logger.InfoContext(ctx, "Auto nota rows replaced", klog.FieldYear, year, klog.FieldCount, len(rows))
	return nil
}

// ListNota implements ledger.NotaStore
func (r *SQLiteRepository) ListNota(ctx context.Context, year int) ([]core.NotaRow, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT year, month, direction, category, amount_cents, auto FROM nota_rows WHERE year = ? ORDER BY id", year)
	if err != nil {
		return nil, fmt.Errorf("list nota: %w", err)
	}
	defer rows.Close()

	var out []core.NotaRow
	for rows.Next() {
		var n core.NotaRow
		if err := rows.Scan(&n.Year, &n.Month, &n.Direction, &n.Category, &n.Amount.Cents, &n.Auto); err != nil {
			return nil, fmt.Errorf("scan nota row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) execOne(ctx context.Context, entity string, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", entity, id, err)
	}
	if n == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
