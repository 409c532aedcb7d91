package catalog

import pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"

var (
	ErrAuthorNotFound       = pkgerrors.Rule(pkgerrors.CodeNotFound, "AUTHOR_NOT_FOUND", "author not found")
	ErrAuthorHasTitles      = pkgerrors.Rule(pkgerrors.CodeStateConflict, "AUTHOR_HAS_TITLES", "author still has titles in the catalog")
	ErrTitleHasLoanedCopies = pkgerrors.Rule(pkgerrors.CodeStateConflict, "TITLE_HAS_LOANED_COPIES", "title has copies on loan")
	ErrTitleHasLoanHistory  = pkgerrors.Rule(pkgerrors.CodeStateConflict, "TITLE_HAS_LOAN_HISTORY", "title has loan history and cannot be removed")
)
