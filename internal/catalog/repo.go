package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/internal/repo"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// Repository encapsulates author and title persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a catalog repository bound to the provided gorm DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

func (r *Repository) CreateAuthor(ctx context.Context, author *models.Author) error {
	if err := r.DB(ctx).Create(author).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert author")
	}
	return nil
}

func (r *Repository) FindAuthor(ctx context.Context, id uuid.UUID) (*models.Author, error) {
	var author models.Author
	err := r.DB(ctx).Where("id = ?", id).Take(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAuthorNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find author")
	}
	return &author, nil
}

func (r *Repository) CountTitlesByAuthor(ctx context.Context, authorID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.BookTitle{}).Where("author_id = ?", authorID).Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count author titles")
	}
	return count, nil
}

func (r *Repository) DeleteAuthor(ctx context.Context, id uuid.UUID) error {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Author{})
	if db.IsForeignKeyViolation(res.Error) {
		return ErrAuthorHasTitles
	}
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete author")
	}
	if res.RowsAffected == 0 {
		return ErrAuthorNotFound
	}
	return nil
}

// UpdateAuthor applies changes to one author row.
func (r *Repository) UpdateAuthor(ctx context.Context, id uuid.UUID, changes map[string]any) error {
	res := r.DB(ctx).Model(&models.Author{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update author")
	}
	if res.RowsAffected == 0 {
		return ErrAuthorNotFound
	}
	return nil
}

func (r *Repository) CreateTitle(ctx context.Context, title *models.BookTitle) error {
	if err := r.DB(ctx).Create(title).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert title")
	}
	return nil
}

func (r *Repository) FindTitle(ctx context.Context, id uuid.UUID) (*models.BookTitle, error) {
	var title models.BookTitle
	err := r.DB(ctx).Where("id = ?", id).Take(&title).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, inventory.ErrTitleNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find title")
	}
	return &title, nil
}

// UpdateTitle applies changes to one title row.
func (r *Repository) UpdateTitle(ctx context.Context, id uuid.UUID, changes map[string]any) error {
	res := r.DB(ctx).Model(&models.BookTitle{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update title")
	}
	if res.RowsAffected == 0 {
		return inventory.ErrTitleNotFound
	}
	return nil
}

// CountLoansForTitle counts every loan, active or returned, of the title's copies.
func (r *Repository) CountLoansForTitle(ctx context.Context, titleID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Loan{}).
		Joins("JOIN book_copies ON book_copies.id = loans.book_copy_id").
		Where("book_copies.book_title_id = ?", titleID).
		Count(&count).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count title loans")
	}
	return count, nil
}

// DeleteTitle removes a title with its copies and reservations.
func (r *Repository) DeleteTitle(ctx context.Context, id uuid.UUID) error {
	conn := r.DB(ctx)
	if err := conn.Where("book_title_id = ?", id).Delete(&models.BookCopy{}).Error; err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrTitleHasLoanHistory
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete title copies")
	}
	if err := conn.Where("book_title_id = ?", id).Delete(&models.Reservation{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete title reservations")
	}
	res := conn.Where("id = ?", id).Delete(&models.BookTitle{})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete title")
	}
	if res.RowsAffected == 0 {
		return inventory.ErrTitleNotFound
	}
	return nil
}
