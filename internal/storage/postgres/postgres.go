// Package postgres provides a PostgreSQL ledger backend.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
	"kewangan/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ ledger.Store = (*Repository)(nil)

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Repository stores the ledger in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, migrates and returns a ready repository.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Repository{pool: pool, logger: logger}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	return storage.Up("pgx5", driver, migrationsFS, "migrations")
}

// Close closes the connection pool.
func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
		r.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}

const transactionColumns = `id, statement_id, txn_date, credit_cents, debit_cents, counterparty_ref,
	payment_detail, direction, receipt_category, receipt_sub, payment_category, payment_sub1,
	payment_sub2, period_marker, categorized_by, categorized_auto, rule_id, batch_id, categorized_at`

// ListTransactions implements ledger.TransactionReader.
func (r *Repository) ListTransactions(ctx context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.StatementID != 0 {
		where = append(where, "statement_id = "+arg(q.StatementID))
	}
	if len(q.IDs) > 0 {
		where = append(where, "id = ANY("+arg(q.IDs)+")")
	}
	if !q.From.IsZero() {
		where = append(where, "txn_date >= "+arg(q.From.FirstDay()))
	}
	if !q.To.IsZero() {
		where = append(where, "txn_date < "+arg(q.To.Next().FirstDay()))
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

	rows, err := r.pool.Query(ctx, query, args...)
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

// GetTransaction implements ledger.TransactionReader.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := scanTransaction(r.pool.QueryRow(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	return tx, err
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		tx                                       core.Transaction
		date                                     time.Time
		direction, marker                        *string
		recCat, recSub, payCat, paySub1, paySub2 *string
		actor, ruleID, batchID                   *string
		at                                       *time.Time
	)
	err := row.Scan(&tx.ID, &tx.StatementID, &date, &tx.Credit.Cents, &tx.Debit.Cents,
		&tx.CounterpartyRef, &tx.PaymentDetail, &direction, &recCat, &recSub, &payCat,
		&paySub1, &paySub2, &marker, &actor, &tx.Provenance.Auto, &ruleID, &batchID, &at)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	tx.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	if tx.Direction, err = core.ParseDirection(deref(direction)); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	if tx.PeriodMarker, err = core.ParsePeriodMarker(deref(marker)); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Classification, err = core.ClassificationFromColumns(core.Columns{
		ReceiptCategory: recCat,
		ReceiptSub:      recSub,
		PaymentCategory: payCat,
		PaymentSub1:     paySub1,
		PaymentSub2:     paySub2,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tx.ID, err)
	}
	tx.Provenance.Actor = deref(actor)
	tx.Provenance.RuleID = deref(ruleID)
	tx.Provenance.BatchID = deref(batchID)
	if at != nil {
		tx.Provenance.At = at.UTC()
	}
	return tx, nil
}

// ApplyClassifications implements ledger.ClassificationWriter. The batch
// runs in one database transaction.
func (r *Repository) ApplyClassifications(ctx context.Context, as []core.Assignment, mode core.WriteMode) (int, error) {
	for _, a := range as {
		if err := a.Classification.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", a.TransactionID, err)
		}
	}
	if len(as) == 0 {
		return 0, nil
	}

	query := `UPDATE transactions SET
		direction = $1, receipt_category = $2, receipt_sub = $3, payment_category = $4,
		payment_sub1 = $5, payment_sub2 = $6,
		period_marker = CASE WHEN $7 THEN $8 ELSE period_marker END,
		categorized_by = $9, categorized_auto = $10, rule_id = $11, batch_id = $12, categorized_at = $13
		WHERE id = $14`
	if mode == core.OnlyUnclassified {
		query += " AND receipt_category IS NULL AND payment_category IS NULL"
	}

	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, a := range as {
		cols := a.Classification.Columns()
		at := a.Provenance.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		batch.Queue(query,
			optional(string(a.Classification.Direction())),
			cols.ReceiptCategory, cols.ReceiptSub, cols.PaymentCategory, cols.PaymentSub1, cols.PaymentSub2,
			a.UpdateMarker, optional(a.PeriodMarker.String()),
			optional(a.Provenance.Actor), a.Provenance.Auto, optional(a.Provenance.RuleID),
			optional(a.Provenance.BatchID), at,
			a.TransactionID,
		)
	}

	results := dbtx.SendBatch(ctx, batch)
	updated := 0
	for _, a := range as {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, fmt.Errorf("classify transaction %d: %w", a.TransactionID, err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("closing batch: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.Info("classifications saved to PostgreSQL",
		"requested", len(as),
		"updated", updated,
	)
	return updated, nil
}

// ListKeywords implements ledger.KeywordStore.
func (r *Repository) ListKeywords(ctx context.Context, activeOnly bool) ([]core.Keyword, error) {
	query := "SELECT id, direction, category, text, active FROM keywords"
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []core.Keyword
	for rows.Next() {
		var (
			k   core.Keyword
			dir string
		)
		if err := rows.Scan(&k.ID, &dir, &k.Category, &k.Text, &k.Active); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		k.Direction = core.Direction(dir)
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddKeyword implements ledger.KeywordStore.
func (r *Repository) AddKeyword(ctx context.Context, k core.Keyword) (core.Keyword, error) {
	k.Category = strings.TrimSpace(k.Category)
	k.Text = strings.TrimSpace(k.Text)
	if err := k.Validate(); err != nil {
		return core.Keyword{}, err
	}
	err := r.pool.QueryRow(ctx,
		"INSERT INTO keywords (direction, category, text, active) VALUES ($1, $2, $3, $4) RETURNING id",
		string(k.Direction), k.Category, k.Text, k.Active).Scan(&k.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Keyword{}, core.NewValidationError("text", "keyword already exists")
		}
		return core.Keyword{}, fmt.Errorf("insert keyword: %w", err)
	}
	return k, nil
}

// SetKeywordActive implements ledger.KeywordStore.
func (r *Repository) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, "keyword", id, "UPDATE keywords SET active = $1 WHERE id = $2", active, id)
}

const categoryColumns = "id, direction, name, parent, level, active, sort_order"

// ListCategories implements ledger.TaxonomyStore.
func (r *Repository) ListCategories(ctx context.Context, dir core.Direction) ([]core.Category, error) {
	query := "SELECT " + categoryColumns + " FROM categories"
	var args []any
	if dir != core.DirectionUnset {
		query += " WHERE direction = $1"
		args = append(args, string(dir))
	}
	query += " ORDER BY direction, sort_order, id"

	rows, err := r.pool.Query(ctx, query, args...)
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

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c   core.Category
		dir string
	)
	if err := row.Scan(&c.ID, &dir, &c.Name, &c.Parent, &c.Level, &c.Active, &c.SortOrder); err != nil {
		return core.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.Direction = core.Direction(dir)
	return c, nil
}

// GetCategory implements ledger.TaxonomyStore.
func (r *Repository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Category{}, core.NewNotFoundError("category", id)
	}
	return c, err
}

// AddCategory implements ledger.TaxonomyStore.
func (r *Repository) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Parent = strings.TrimSpace(c.Parent)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (direction, name, parent, level, active, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(c.Direction), c.Name, c.Parent, c.Level, c.Active, c.SortOrder).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Category{}, core.NewValidationError("name", "category already exists")
		}
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

// CountClassified implements ledger.TaxonomyStore.
func (r *Repository) CountClassified(ctx context.Context, dir core.Direction, name string) (int, error) {
	var query string
	switch dir {
	case core.Receipt:
		query = "SELECT COUNT(*) FROM transactions WHERE receipt_category = $1 OR receipt_sub = $1"
	case core.Payment:
		query = "SELECT COUNT(*) FROM transactions WHERE payment_category = $1 OR payment_sub1 = $1 OR payment_sub2 = $1"
	default:
		return 0, core.ErrInvalidDirection
	}
	var n int
	if err := r.pool.QueryRow(ctx, query, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classified: %w", err)
	}
	return n, nil
}

// DeleteCategory implements ledger.TaxonomyStore.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	return r.execOne(ctx, "category", id, "DELETE FROM categories WHERE id = $1", id)
}

// SetCategoryActive implements ledger.TaxonomyStore.
func (r *Repository) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	return r.execOne(ctx, "category", id, "UPDATE categories SET active = $1 WHERE id = $2", active, id)
}

// ListStatements implements ledger.StatementStore.
func (r *Repository) ListStatements(ctx context.Context) ([]core.Statement, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, year, month, opening_balance_cents FROM statements ORDER BY year, month, id")
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []core.Statement
	for rows.Next() {
		var (
			s       core.Statement
			opening *int64
		)
		if err := rows.Scan(&s.ID, &s.Year, &s.Month, &opening); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		if opening != nil {
			s.OpeningBalance = &core.Money{Cents: *opening}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ImportStatement implements ledger.StatementStore.
func (r *Repository) ImportStatement(ctx context.Context, s core.Statement, lines []core.Transaction) (core.Statement, error) {
	if err := s.YearMonth().Validate(); err != nil {
		return core.Statement{}, err
	}
	for i, tx := range lines {
		if err := tx.Validate(); err != nil {
			return core.Statement{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return core.Statement{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	var opening *int64
	if s.OpeningBalance != nil {
		opening = &s.OpeningBalance.Cents
	}
	err = dbtx.QueryRow(ctx,
		"INSERT INTO statements (year, month, opening_balance_cents) VALUES ($1, $2, $3) RETURNING id",
		s.Year, s.Month, opening).Scan(&s.ID)
	if err != nil {
		return core.Statement{}, fmt.Errorf("insert statement: %w", err)
	}

	rows := make([][]any, 0, len(lines))
	for _, tx := range lines {
		cols := tx.Classification.Columns()
		rows = append(rows, []any{
			s.ID, tx.Date.Time, tx.Credit.Cents, tx.Debit.Cents, tx.CounterpartyRef, tx.PaymentDetail,
			optional(string(tx.Direction)), cols.ReceiptCategory, cols.ReceiptSub,
			cols.PaymentCategory, cols.PaymentSub1, cols.PaymentSub2, optional(tx.PeriodMarker.String()),
		})
	}
	_, err = dbtx.CopyFrom(ctx, pgx.Identifier{"transactions"}, []string{
		"statement_id", "txn_date", "credit_cents", "debit_cents", "counterparty_ref", "payment_detail",
		"direction", "receipt_category", "receipt_sub", "payment_category", "payment_sub1", "payment_sub2",
		"period_marker",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return core.Statement{}, fmt.Errorf("copy statement lines: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return core.Statement{}, fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.Info("statement imported to PostgreSQL",
		"statement_id", s.ID,
		"year", s.Year,
		"month", s.Month,
		"lines", len(lines),
	)
	return s, nil
}

// ReplaceAutoNota implements ledger.NotaStore.
func (r *Repository) ReplaceAutoNota(ctx context.Context, year int, rows []core.NotaRow) error {
	for _, row := range rows {
		if row.Year != year {
			return fmt.Errorf("nota row for %d in replacement of %d", row.Year, year)
		}
	}

	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbtx.Rollback(ctx)

	if _, err := dbtx.Exec(ctx, "DELETE FROM nota_rows WHERE year = $1 AND auto", year); err != nil {
		return fmt.Errorf("delete auto nota: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			"INSERT INTO nota_rows (year, month, direction, category, amount_cents, auto) VALUES ($1, $2, $3, $4, $5, TRUE)",
			row.Year, row.Month, string(row.Direction), row.Category, row.Amount.Cents,
		)
	}
	if err := dbtx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert nota rows: %w", err)
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	r.logger.Info("auto nota rows replaced", "year", year, "rows", len(rows))
	return nil
}

// ListNota implements ledger.NotaStore.
func (r *Repository) ListNota(ctx context.Context, year int) ([]core.NotaRow, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT year, month, direction, category, amount_cents, auto FROM nota_rows WHERE year = $1 ORDER BY id", year)
	if err != nil {
		return nil, fmt.Errorf("list nota: %w", err)
	}
	defer rows.Close()

	var out []core.NotaRow
	for rows.Next() {
		var (
			n   core.NotaRow
			dir string
		)
		if err := rows.Scan(&n.Year, &n.Month, &dir, &n.Category, &n.Amount.Cents, &n.Auto); err != nil {
			return nil, fmt.Errorf("scan nota row: %w", err)
		}
		n.Direction = core.Direction(dir)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) execOne(ctx context.Context, entity string, id int64, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", entity, id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError(entity, id)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
