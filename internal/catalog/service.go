package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type dbRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DueDateReader returns the earliest due date among active loans of a title.
type DueDateReader interface {
	EarliestDueDate(ctx context.Context, conn *gorm.DB, titleID uuid.UUID) (*time.Time, error)
}

// CreateTitleInput describes a new title and how many copies to shelve.
type CreateTitleInput struct {
	Title         string
	AuthorID      uuid.UUID
	PublishedYear *int
	Pages         *int
	Quantity      int
}

// UpdateAuthorInput carries a partial author change. Nil fields are left
// untouched.
type UpdateAuthorInput struct {
	Name *string
}

// UpdateTitleInput carries a partial title change. Nil fields are left
// untouched.
type UpdateTitleInput struct {
	Title         *string
	AuthorID      *uuid.UUID
	PublishedYear *int
	Pages         *int
}

// TitleDTO is a title with its copy counts.
type TitleDTO struct {
	ID            uuid.UUID              `json:"id"`
	Title         string                 `json:"title"`
	AuthorID      uuid.UUID              `json:"author_id"`
	PublishedYear *int                   `json:"published_year,omitempty"`
	Pages         *int                   `json:"pages,omitempty"`
	Copies        inventory.StatusCounts `json:"copies"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	DB       dbRunner
	DueDates DueDateReader
	Cache    *AvailabilityCache
	Logger   *logger.Logger
}

// Service manages authors, titles and copies.
type Service interface {
	CreateAuthor(ctx context.Context, name string) (*models.Author, error)
	GetAuthor(ctx context.Context, authorID uuid.UUID) (*models.Author, error)
	UpdateAuthor(ctx context.Context, authorID uuid.UUID, input UpdateAuthorInput) (*models.Author, error)
	DeleteAuthor(ctx context.Context, authorID uuid.UUID) error
	CreateTitle(ctx context.Context, input CreateTitleInput) (*TitleDTO, []models.BookCopy, error)
	GetTitle(ctx context.Context, titleID uuid.UUID) (*TitleDTO, error)
	UpdateTitle(ctx context.Context, titleID uuid.UUID, input UpdateTitleInput) (*TitleDTO, error)
	DeleteTitle(ctx context.Context, titleID uuid.UUID) error
	AddCopies(ctx context.Context, titleID uuid.UUID, quantity int) ([]models.BookCopy, error)
	ListCopies(ctx context.Context, titleID uuid.UUID) ([]models.BookCopy, error)
	CheckAvailability(ctx context.Context, titleID uuid.UUID) (*Availability, error)
}

type service struct {
	db       dbRunner
	dueDates DueDateReader
	cache    *AvailabilityCache
	logg     *logger.Logger
}

// NewService builds the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.DueDates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date reader is required")
	}
	return &service{
		db:       params.DB,
		dueDates: params.DueDates,
		cache:    params.Cache,
		logg:     params.Logger,
	}, nil
}

func (s *service) CreateAuthor(ctx context.Context, name string) (*models.Author, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	author := models.Author{Name: name}
	if err := NewRepository(s.db.DB()).CreateAuthor(ctx, &author); err != nil {
		return nil, err
	}
	return &author, nil
}

func (s *service) GetAuthor(ctx context.Context, authorID uuid.UUID) (*models.Author, error) {
	return NewRepository(s.db.DB()).FindAuthor(ctx, authorID)
}

// UpdateAuthor renames an author.
func (s *service) UpdateAuthor(ctx context.Context, authorID uuid.UUID, input UpdateAuthorInput) (*models.Author, error) {
	changes := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be blank")
		}
		changes["name"] = name
	}

	var author *models.Author
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindAuthor(ctx, authorID); err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := repo.UpdateAuthor(ctx, authorID, changes); err != nil {
				return err
			}
		}
		var err error
		author, err = repo.FindAuthor(ctx, authorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(changes) > 0 {
		s.log(ctx, "catalog.author_updated", map[string]any{"author_id": authorID.String()})
	}
	return author, nil
}

// DeleteAuthor removes an author with no titles.
func (s *service) DeleteAuthor(ctx context.Context, authorID uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindAuthor(ctx, authorID); err != nil {
			return err
		}
		titles, err := repo.CountTitlesByAuthor(ctx, authorID)
		if err != nil {
			return err
		}
		if titles > 0 {
			return ErrAuthorHasTitles.WithDetails(map[string]any{"titles": titles})
		}
		return repo.DeleteAuthor(ctx, authorID)
	})
}

// CreateTitle adds a title and shelves quantity copies in one transaction.
func (s *service) CreateTitle(ctx context.Context, input CreateTitleInput) (*TitleDTO, []models.BookCopy, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.Quantity < 1 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var (
		title  models.BookTitle
		copies []models.BookCopy
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindAuthor(ctx, input.AuthorID); err != nil {
			return err
		}
		title = models.BookTitle{
			Title:         input.Title,
			AuthorID:      input.AuthorID,
			PublishedYear: input.PublishedYear,
			Pages:         input.Pages,
		}
		if err := repo.CreateTitle(ctx, &title); err != nil {
			return err
		}
		var err error
		copies, err = inventory.NewLedger(tx).AddCopies(ctx, title.ID, input.Quantity)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.log(ctx, "catalog.title_created", map[string]any{
		"book_title_id": title.ID.String(),
		"copies":        len(copies),
	})

	dto := newTitleDTO(title, inventory.StatusCounts{
		Total:     int64(len(copies)),
		Available: int64(len(copies)),
	})
	return &dto, copies, nil
}

func (s *service) GetTitle(ctx context.Context, titleID uuid.UUID) (*TitleDTO, error) {
	conn := s.db.DB()
	title, err := NewRepository(conn).FindTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}
	counts, err := inventory.NewLedger(conn).CountByStatus(ctx, titleID)
	if err != nil {
		return nil, err
	}
	dto := newTitleDTO(*title, counts)
	return &dto, nil
}

// UpdateTitle edits title metadata. Copies and their statuses are not
// affected.
func (s *service) UpdateTitle(ctx context.Context, titleID uuid.UUID, input UpdateTitleInput) (*TitleDTO, error) {
	changes, err := titleChanges(input)
	if err != nil {
		return nil, err
	}

	var (
		title  *models.BookTitle
		counts inventory.StatusCounts
	)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		current, err := repo.FindTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if input.AuthorID != nil && *input.AuthorID != current.AuthorID {
			if _, err := repo.FindAuthor(ctx, *input.AuthorID); err != nil {
				return err
			}
		}
		if len(changes) > 0 {
			if err := repo.UpdateTitle(ctx, titleID, changes); err != nil {
				return err
			}
		}
		if title, err = repo.FindTitle(ctx, titleID); err != nil {
			return err
		}
		counts, err = inventory.NewLedger(tx).CountByStatus(ctx, titleID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		s.log(ctx, "catalog.title_updated", map[string]any{"book_title_id": titleID.String()})
	}
	dto := newTitleDTO(*title, counts)
	return &dto, nil
}

func titleChanges(input UpdateTitleInput) (map[string]any, error) {
	changes := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title must not be blank")
		}
		changes["title"] = title
	}
	if input.AuthorID != nil {
		if *input.AuthorID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "author_id must not be empty")
		}
		changes["author_id"] = *input.AuthorID
	}
	if input.PublishedYear != nil {
		if *input.PublishedYear < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "published_year must not be negative")
		}
		changes["published_year"] = *input.PublishedYear
	}
	if input.Pages != nil {
		if *input.Pages < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pages must be at least 1")
		}
		changes["pages"] = *input.Pages
	}
	return changes, nil
}

// DeleteTitle removes a title unless a copy is out on loan or the title has
// loan history.
func (s *service) DeleteTitle(ctx context.Context, titleID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		if _, err := repo.FindTitle(ctx, titleID); err != nil {
			return err
		}
		counts, err := inventory.NewLedger(tx).CountByStatus(ctx, titleID)
		if err != nil {
			return err
		}
		if counts.Loaned > 0 {
			return ErrTitleHasLoanedCopies.WithDetails(map[string]any{"loaned_copies": counts.Loaned})
		}
		history, err := repo.CountLoansForTitle(ctx, titleID)
		if err != nil {
			return err
		}
		if history > 0 {
			return ErrTitleHasLoanHistory
		}
		return repo.DeleteTitle(ctx, titleID)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, titleID)
	s.log(ctx, "catalog.title_deleted", map[string]any{"book_title_id": titleID.String()})
	return nil
}

func (s *service) AddCopies(ctx context.Context, titleID uuid.UUID, quantity int) ([]models.BookCopy, error) {
	var copies []models.BookCopy
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := NewRepository(tx).FindTitle(ctx, titleID); err != nil {
			return err
		}
		var err error
		copies, err = inventory.NewLedger(tx).AddCopies(ctx, titleID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, titleID)
	return copies, nil
}

func (s *service) ListCopies(ctx context.Context, titleID uuid.UUID) ([]models.BookCopy, error) {
	conn := s.db.DB()
	if _, err := NewRepository(conn).FindTitle(ctx, titleID); err != nil {
		return nil, err
	}
	return inventory.NewLedger(conn).ListByTitle(ctx, titleID)
}

// CheckAvailability reports whether a title can be borrowed now. Snapshots
// are served from the cache when one is configured.
func (s *service) CheckAvailability(ctx context.Context, titleID uuid.UUID) (*Availability, error) {
	if cached, ok := s.cache.Get(ctx, titleID); ok {
		return cached, nil
	}

	conn := s.db.DB()
	ledger := inventory.NewLedger(conn)
	exists, err := ledger.TitleExists(ctx, titleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, inventory.ErrTitleNotFound
	}
	counts, err := ledger.CountByStatus(ctx, titleID)
	if err != nil {
		return nil, err
	}

	out := &Availability{
		BookTitleID:     titleID,
		Available:       counts.Available > 0,
		TotalCopies:     counts.Total,
		AvailableCopies: counts.Available,
		LoanedCopies:    counts.Loaned,
		OnHoldCopies:    counts.OnHold,
	}
	if !out.Available && counts.Total > 0 {
		out.Reason = unavailableReason(counts.OnHold, counts.Loaned)
		out.ExpectedDueDate, err = s.dueDates.EarliestDueDate(ctx, conn, titleID)
		if err != nil {
			return nil, err
		}
	}

	s.cache.Put(ctx, out)
	return out, nil
}

func newTitleDTO(title models.BookTitle, counts inventory.StatusCounts) TitleDTO {
	return TitleDTO{
		ID:            title.ID,
		Title:         title.Title,
		AuthorID:      title.AuthorID,
		PublishedYear: title.PublishedYear,
		Pages:         title.Pages,
		Copies:        counts,
		CreatedAt:     title.CreatedAt,
	}
}

func (s *service) log(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
