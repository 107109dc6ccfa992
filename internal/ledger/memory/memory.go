package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

// Store keeps the whole ledger in process memory. It backs tests and the
// memory DATA_BACKEND.
type Store struct {
	mu         sync.Mutex
	txs        []core.Transaction
	keywords   []core.Keyword
	categories []core.Category
	statements []core.Statement
	nota       []core.NotaRow

	nextTx, nextKeyword, nextCategory, nextStatement int64
}

func New() *Store {
	return &Store{}
}

// NewFromFiles seeds a store from base:
//
//	seed_categories.txt     direction|name[|parent|level|sort_order]
//	seed_keywords.txt       direction|category|text
//	seed_statements/*.json  statement documents (ledger.StatementFile)
//
// Missing files are skipped; a store without category seeds gets a small
// default taxonomy.
func NewFromFiles(base string) (*Store, error) {
	s := New()
	ctx := context.Background()

	cats, err := parseCategories(readLines(filepath.Join(base, "seed_categories.txt")))
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		cats = defaultCategories()
	}
	for _, c := range cats {
		if _, err := s.AddCategory(ctx, c); err != nil {
			return nil, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}

	kws, err := parseKeywords(readLines(filepath.Join(base, "seed_keywords.txt")))
	if err != nil {
		return nil, err
	}
	for _, k := range kws {
		if _, err := s.AddKeyword(ctx, k); err != nil {
			return nil, fmt.Errorf("seed keyword %q: %w", k.Text, err)
		}
	}

	files, _ := filepath.Glob(filepath.Join(base, "seed_statements", "*.json"))
	slices.Sort(files)
	for _, name := range files {
		if err := s.importFile(ctx, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) importFile(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	st, lines, err := ledger.DecodeStatementFile(f)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	_, err = s.ImportStatement(ctx, st, lines)
	return err
}

func (s *Store) Close() error { return nil }

// ListTransactions implements ledger.TransactionReader.
func (s *Store) ListTransactions(_ context.Context, q core.TransactionQuery) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids map[int64]bool
	if len(q.IDs) > 0 {
		ids = make(map[int64]bool, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = true
		}
	}

	var out []core.Transaction
	for _, tx := range s.txs {
		if q.StatementID != 0 && tx.StatementID != q.StatementID {
			continue
		}
		if ids != nil && !ids[tx.ID] {
			continue
		}
		cal := tx.CalendarMonth()
		if !q.From.IsZero() && cal.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && cal.After(q.To) {
			continue
		}
		if q.Unclassified && tx.IsClassified() {
			continue
		}
		if q.Classified && !tx.IsClassified() {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// GetTransaction implements ledger.TransactionReader.
func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.indexOf(id)
	if !ok {
		return core.Transaction{}, core.NewNotFoundError("transaction", id)
	}
	return s.txs[i], nil
}

// ApplyClassifications implements ledger.ClassificationWriter. Assignments
// are validated first and applied to a copy that replaces the ledger only
// when every write succeeded.
func (s *Store) ApplyClassifications(_ context.Context, as []core.Assignment, mode core.WriteMode) (int, error) {
	for _, a := range as {
		if err := a.Classification.Validate(); err != nil {
			return 0, fmt.Errorf("transaction %d: %w", a.TransactionID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.txs)
	updated := 0
	for _, a := range as {
		i, ok := s.indexOf(a.TransactionID)
		if !ok {
			continue
		}
		if mode == core.OnlyUnclassified && next[i].IsClassified() {
			continue
		}
		next[i].Apply(a)
		updated++
	}
	s.txs = next
	return updated, nil
}

// ListKeywords implements ledger.KeywordStore.
func (s *Store) ListKeywords(_ context.Context, activeOnly bool) ([]core.Keyword, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Keyword, 0, len(s.keywords))
	for _, k := range s.keywords {
		if activeOnly && !k.Active {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// AddKeyword implements ledger.KeywordStore.
func (s *Store) AddKeyword(_ context.Context, k core.Keyword) (core.Keyword, error) {
	k.Category = strings.TrimSpace(k.Category)
	k.Text = strings.TrimSpace(k.Text)
	if err := k.Validate(); err != nil {
		return core.Keyword{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keywords {
		if existing.Direction == k.Direction && existing.Category == k.Category && existing.Text == k.Text {
			return core.Keyword{}, core.NewValidationError("text", "keyword already exists")
		}
	}
	s.nextKeyword++
	k.ID = s.nextKeyword
	s.keywords = append(s.keywords, k)
	return k, nil
}

// SetKeywordActive implements ledger.KeywordStore.
func (s *Store) SetKeywordActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keywords {
		if s.keywords[i].ID == id {
			s.keywords[i].Active = active
			return nil
		}
	}
	return core.NewNotFoundError("keyword", id)
}

// ListCategories implements ledger.TaxonomyStore.
func (s *Store) ListCategories(_ context.Context, dir core.Direction) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if dir != core.DirectionUnset && c.Direction != dir {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// AddCategory implements ledger.TaxonomyStore.
func (s *Store) AddCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Parent = strings.TrimSpace(c.Parent)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Direction == c.Direction && existing.Parent == c.Parent && existing.Name == c.Name {
			return core.Category{}, core.NewValidationError("name", "category already exists")
		}
	}
	s.nextCategory++
	c.ID = s.nextCategory
	s.categories = append(s.categories, c)
	return c, nil
}

// GetCategory implements ledger.TaxonomyStore.
func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, core.NewNotFoundError("category", id)
}

// CountClassified implements ledger.TaxonomyStore.
func (s *Store) CountClassified(_ context.Context, dir core.Direction, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.txs {
		c := tx.Classification
		if c.Direction() != dir {
			continue
		}
		if c.Category() == name || c.SubCategory() == name || c.SubCategory2() == name {
			n++
		}
	}
	return n, nil
}

// DeleteCategory implements ledger.TaxonomyStore.
func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.categories {
		if c.ID == id {
			s.categories = slices.Delete(s.categories, i, i+1)
			return nil
		}
	}
	return core.NewNotFoundError("category", id)
}

// SetCategoryActive implements ledger.TaxonomyStore.
func (s *Store) SetCategoryActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			s.categories[i].Active = active
			return nil
		}
	}
	return core.NewNotFoundError("category", id)
}

// ListStatements implements ledger.StatementStore.
func (s *Store) ListStatements(_ context.Context) ([]core.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.statements), nil
}

// ImportStatement implements ledger.StatementStore.
func (s *Store) ImportStatement(_ context.Context, st core.Statement, lines []core.Transaction) (core.Statement, error) {
	if err := st.YearMonth().Validate(); err != nil {
		return core.Statement{}, err
	}
	for i, tx := range lines {
		if err := tx.Validate(); err != nil {
			return core.Statement{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStatement++
	st.ID = s.nextStatement
	s.statements = append(s.statements, st)
	for _, tx := range lines {
		s.nextTx++
		tx.ID = s.nextTx
		tx.StatementID = st.ID
		s.txs = append(s.txs, tx)
	}
	return st, nil
}

// ReplaceAutoNota implements ledger.NotaStore.
func (s *Store) ReplaceAutoNota(_ context.Context, year int, rows []core.NotaRow) error {
	for _, r := range rows {
		if r.Year != year {
			return fmt.Errorf("nota row for %d in replacement of %d", r.Year, year)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.nota[:0:0]
	for _, r := range s.nota {
		if r.Year == year && r.Auto {
			continue
		}
		kept = append(kept, r)
	}
	for _, r := range rows {
		r.Auto = true
		kept = append(kept, r)
	}
	s.nota = kept
	return nil
}

// ListNota implements ledger.NotaStore.
func (s *Store) ListNota(_ context.Context, year int) ([]core.NotaRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.NotaRow
	for _, r := range s.nota {
		if r.Year == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// AddManualNota records a hand-entered nota row that auto regeneration keeps.
func (s *Store) AddManualNota(r core.NotaRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Auto = false
	s.nota = append(s.nota, r)
}

// indexOf relies on ids being assigned in ascending order.
func (s *Store) indexOf(id int64) (int, bool) {
	return slices.BinarySearchFunc(s.txs, id, func(tx core.Transaction, id int64) int {
		switch {
		case tx.ID < id:
			return -1
		case tx.ID > id:
			return 1
		default:
			return 0
		}
	})
}

func defaultCategories() []core.Category {
	return []core.Category{
		{Direction: core.Receipt, Name: "Derma Jumaat", Active: true, SortOrder: 1},
		{Direction: core.Receipt, Name: "Yuran Bulanan", Active: true, SortOrder: 2},
		{Direction: core.Receipt, Name: "Sumbangan Am", Active: true, SortOrder: 3},
		{Direction: core.Payment, Name: "Utiliti", Active: true, SortOrder: 1},
		{Direction: core.Payment, Name: "Penyelenggaraan", Active: true, SortOrder: 2},
	}
}

var errSeedFormat = errors.New("malformed seed line")

func parseCategories(lines []string) ([]core.Category, error) {
	out := make([]core.Category, 0, len(lines))
	for i, line := range lines {
		f := splitFields(line)
		if len(f) < 2 {
			return nil, fmt.Errorf("seed_categories.txt:%d: %w", i+1, errSeedFormat)
		}
		dir, err := core.ParseDirection(f[0])
		if err != nil {
			return nil, fmt.Errorf("seed_categories.txt:%d: %w", i+1, err)
		}
		c := core.Category{Direction: dir, Name: f[1], Active: true, SortOrder: i + 1}
		if len(f) > 2 {
			c.Parent = f[2]
		}
		if len(f) > 3 && f[3] != "" {
			if c.Level, err = strconv.Atoi(f[3]); err != nil {
				return nil, fmt.Errorf("seed_categories.txt:%d: level: %w", i+1, err)
			}
		} else if c.Parent != "" {
			c.Level = 1
		}
		if len(f) > 4 && f[4] != "" {
			if c.SortOrder, err = strconv.Atoi(f[4]); err != nil {
				return nil, fmt.Errorf("seed_categories.txt:%d: sort order: %w", i+1, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func parseKeywords(lines []string) ([]core.Keyword, error) {
	out := make([]core.Keyword, 0, len(lines))
	for i, line := range lines {
		f := splitFields(line)
		if len(f) != 3 {
			return nil, fmt.Errorf("seed_keywords.txt:%d: %w", i+1, errSeedFormat)
		}
		dir, err := core.ParseDirection(f[0])
		if err != nil {
			return nil, fmt.Errorf("seed_keywords.txt:%d: %w", i+1, err)
		}
		out = append(out, core.Keyword{Direction: dir, Category: f[1], Text: f[2], Active: true})
	}
	return out, nil
}

func splitFields(line string) []string {
	f := strings.Split(line, "|")
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return f
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
