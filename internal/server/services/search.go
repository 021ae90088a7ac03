package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/dmitrijs2005/keycatalog/internal/ident"
	"github.com/dmitrijs2005/keycatalog/internal/server/auth"
	"github.com/dmitrijs2005/keycatalog/internal/server/models"
	"github.com/dmitrijs2005/keycatalog/internal/server/repositories/repomanager"
)

// KeyQuery is the user-facing form of a key filter.
type KeyQuery struct {
	Prefix    string
	Desc      string
	Status    *int
	SlotIndex *int
	LineID    string
	Page      int
}

// LineQuery selects a page of lines by code prefix.
type LineQuery struct {
	Prefix       string
	Page         int
	WithKeyCount bool
}

// SearchService answers the read side of the catalog: filtered key pages,
// status statistics, neighbour navigation and line listing.
type SearchService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	keyPageSize  int
	linePageSize int
}

func NewSearchService(db *sql.DB, m repomanager.RepositoryManager, keyPageSize, linePageSize int) *SearchService {
	return &SearchService{db: db, repomanager: m, keyPageSize: keyPageSize, linePageSize: linePageSize}
}

func (q KeyQuery) filter() (models.KeyFilter, error) {
	prefix, err := ident.ParsePrefix(q.Prefix)
	if err != nil {
		return models.KeyFilter{}, err
	}
	f := models.KeyFilter{Prefix: prefix, Desc: strings.TrimSpace(q.Desc), LineID: q.LineID}
	if q.Status != nil {
		st := models.Status(*q.Status)
		if !st.Valid() {
			return models.KeyFilter{}, fmt.Errorf("%w: status %d", common.ErrorValidation, *q.Status)
		}
		f.Status = &st
	}
	if q.SlotIndex != nil {
		if q.Status == nil {
			return models.KeyFilter{}, fmt.Errorf("%w: slot index needs a status", common.ErrorValidation)
		}
		if err := validSlot(*q.SlotIndex); err != nil {
			return models.KeyFilter{}, err
		}
		idN := *q.SlotIndex
		f.SlotIndex = &idN
	}
	return f, nil
}

func page(p int) (int, error) {
	switch {
	case p == 0:
		return 1, nil
	case p < 0:
		return 0, fmt.Errorf("%w: page %d", common.ErrorValidation, p)
	default:
		return p, nil
	}
}

// Search returns one page of keys matching q, ordered by composite code.
func (s *SearchService) Search(ctx context.Context, q KeyQuery) (*models.KeyPage, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	p, err := page(q.Page)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Keys(s.db)
	total, err := repo.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("error counting keys: %w", err)
	}
	pg := models.NewPagination(total, s.keyPageSize, p)
	items, err := repo.Search(ctx, f, s.keyPageSize, pg.Offset())
	if err != nil {
		return nil, fmt.Errorf("error searching keys: %w", err)
	}
	return &models.KeyPage{Items: items, Pagination: pg}, nil
}

// Stats aggregates the slot statuses of every key matching q. Paging is
// ignored.
func (s *SearchService) Stats(ctx context.Context, q KeyQuery) (models.StatusStats, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return models.StatusStats{}, err
	}
	f, err := q.filter()
	if err != nil {
		return models.StatusStats{}, err
	}
	stats, err := s.repomanager.Keys(s.db).Stats(ctx, f)
	if err != nil {
		return models.StatusStats{}, fmt.Errorf("error computing stats: %w", err)
	}
	return stats, nil
}

// NextAfter returns the key whose composite code follows code.
func (s *SearchService) NextAfter(ctx context.Context, code string) (*models.Key, error) {
	return s.neighbour(ctx, code, true)
}

// PrevBefore returns the key whose composite code precedes code.
func (s *SearchService) PrevBefore(ctx context.Context, code string) (*models.Key, error) {
	return s.neighbour(ctx, code, false)
}

func (s *SearchService) neighbour(ctx context.Context, code string, forward bool) (*models.Key, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	code = ident.CanonicalKeyCode(code)
	if code == "" || len(code) > ident.KeyCodeWidth {
		return nil, fmt.Errorf("%w: key code %q", common.ErrorValidation, code)
	}
	return s.repomanager.Keys(s.db).Neighbour(ctx, code, forward)
}

// ListLines returns one page of lines whose 6 character code starts with
// q.Prefix.
func (s *SearchService) ListLines(ctx context.Context, q LineQuery) (*models.LinePage, error) {
	if err := auth.Requires(ctx, auth.AnyRole...); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(q.Prefix)) > ident.LineCodeWidth {
		return nil, fmt.Errorf("%w: line prefix %q", common.ErrorValidation, q.Prefix)
	}
	prefix, err := ident.ParsePrefix(q.Prefix)
	if err != nil {
		return nil, err
	}
	p, err := page(q.Page)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Lines(s.db)
	total, err := repo.Count(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("error counting lines: %w", err)
	}
	pg := models.NewPagination(total, s.linePageSize, p)
	items, err := repo.Search(ctx, prefix, s.linePageSize, pg.Offset(), q.WithKeyCount)
	if err != nil {
		return nil, fmt.Errorf("error listing lines: %w", err)
	}
	return &models.LinePage{Items: items, Pagination: pg}, nil
}
