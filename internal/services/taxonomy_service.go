package services

import (
	"context"
	"fmt"
	"strings"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
	klog "kewangan/internal/log"
)

// TaxonomyStore is the part of the ledger holding keywords and categories.
type TaxonomyStore interface {
	ledger.KeywordStore
	ledger.TaxonomyStore
}

// TaxonomyService maintains keywords and categories.
type TaxonomyService struct {
	store       TaxonomyStore
	invalidator ReportInvalidator
	logger      *klog.Logger
}

// NewTaxonomyService creates the service. invalidator may be nil.
func NewTaxonomyService(store TaxonomyStore, invalidator ReportInvalidator) *TaxonomyService {
	return &TaxonomyService{store: store, invalidator: invalidator, logger: klog.Named(klog.ComponentTaxonomy)}
}

func (s *TaxonomyService) ListKeywords(ctx context.Context, activeOnly bool) ([]core.Keyword, error) {
	return s.store.ListKeywords(ctx, activeOnly)
}

func (s *TaxonomyService) ListCategories(ctx context.Context, dir core.Direction) ([]core.Category, error) {
	return s.store.ListCategories(ctx, dir)
}

// AddKeyword stores a new active keyword. Its category must be an active
// top-level category of the keyword's direction.
func (s *TaxonomyService) AddKeyword(ctx context.Context, k core.Keyword) (core.Keyword, error) {
	k.Text = strings.TrimSpace(k.Text)
	k.Category = strings.TrimSpace(k.Category)
	k.Active = true
	if err := k.Validate(); err != nil {
		return core.Keyword{}, err
	}

	cats, err := s.store.ListCategories(ctx, k.Direction)
	if err != nil {
		return core.Keyword{}, fmt.Errorf("list categories: %w", err)
	}
	found := false
	for _, c := range cats {
		if c.Active && c.Level == 0 && c.Name == k.Category {
			found = true
			break
		}
	}
	if !found {
		return core.Keyword{}, core.NewValidationError("category", fmt.Sprintf("%q is not a %s category", k.Category, k.Direction))
	}

	added, err := s.store.AddKeyword(ctx, k)
	if err != nil {
		return core.Keyword{}, fmt.Errorf("add keyword: %w", err)
	}
	s.logger.InfoContext(ctx, "Added keyword", klog.FieldID, added.ID, klog.FieldDirection, added.Direction, klog.FieldCategory, added.Category)
	return added, nil
}

func (s *TaxonomyService) SetKeywordActive(ctx context.Context, id int64, active bool) error {
	if err := s.store.SetKeywordActive(ctx, id, active); err != nil {
		return fmt.Errorf("set keyword %d active=%t: %w", id, active, err)
	}
	return nil
}

// AddCategory stores a category. Sub-categories need an existing parent one
// level up in the same direction.
func (s *TaxonomyService) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Parent = strings.TrimSpace(c.Parent)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if c.Level > 0 {
		cats, err := s.store.ListCategories(ctx, c.Direction)
		if err != nil {
			return core.Category{}, fmt.Errorf("list categories: %w", err)
		}
		found := false
		for _, p := range cats {
			if p.Level == c.Level-1 && p.Name == c.Parent {
				found = true
				break
			}
		}
		if !found {
			return core.Category{}, core.NewValidationError("parent", fmt.Sprintf("no level %d %s category %q", c.Level-1, c.Direction, c.Parent))
		}
	}

	added, err := s.store.AddCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("add category: %w", err)
	}
	s.invalidate()
	return added, nil
}

// DeleteCategory removes a category nothing is filed under. It returns
// core.ErrCategoryInUse otherwise.
func (s *TaxonomyService) DeleteCategory(ctx context.Context, id int64) error {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountClassified(ctx, c.Direction, c.Name)
	if err != nil {
		return fmt.Errorf("count classified: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("delete %s category %q (%d transactions): %w", c.Direction, c.Name, n, core.ErrCategoryInUse)
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.InfoContext(ctx, "Deleted category", klog.FieldID, id, klog.FieldDirection, c.Direction, klog.FieldCategory, c.Name)
	s.invalidate()
	return nil
}

func (s *TaxonomyService) SetCategoryActive(ctx context.Context, id int64, active bool) error {
	if err := s.store.SetCategoryActive(ctx, id, active); err != nil {
		return fmt.Errorf("set category %d active=%t: %w", id, active, err)
	}
	s.invalidate()
	return nil
}

// invalidate drops every cached report; row order follows the taxonomy.
func (s *TaxonomyService) invalidate() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}
