package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/catalog"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type authorCreateRequest struct {
	Name string `json:"name" validate:"notblank,max=255"`
}

type bookCreateRequest struct {
	Title         string    `json:"title" validate:"notblank,max=500"`
	AuthorID      uuid.UUID `json:"author_id" validate:"required"`
	PublishedYear *int      `json:"published_year,omitempty" validate:"omitempty,min=0,max=9999"`
	Pages         *int      `json:"pages,omitempty" validate:"omitempty,min=1"`
	Quantity      int       `json:"quantity" validate:"min=1,max=1000"`
}

type authorUpdateRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,notblank,max=255"`
}

type bookUpdateRequest struct {
	Title         *string    `json:"title,omitempty" validate:"omitempty,notblank,max=500"`
	AuthorID      *uuid.UUID `json:"author_id,omitempty"`
	PublishedYear *int       `json:"published_year,omitempty" validate:"omitempty,min=0,max=9999"`
	Pages         *int       `json:"pages,omitempty" validate:"omitempty,min=1"`
}

type copiesAddRequest struct {
	Quantity int `json:"quantity" validate:"min=1,max=1000"`
}

type bookCreateResponse struct {
	Book   *catalog.TitleDTO `json:"book"`
	Copies []models.BookCopy `json:"copies"`
}

func AdminAuthorCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		var payload authorCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		author, err := svc.CreateAuthor(r.Context(), payload.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, author)
	}
}

func AuthorGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		authorID, err := validators.ParseUUIDParam(r, "authorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		author, err := svc.GetAuthor(r.Context(), authorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, author)
	}
}

// AdminAuthorUpdate applies a partial author change.
func AdminAuthorUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		authorID, err := validators.ParseUUIDParam(r, "authorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload authorUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		author, err := svc.UpdateAuthor(r.Context(), authorID, catalog.UpdateAuthorInput{Name: payload.Name})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, author)
	}
}

// AdminAuthorDelete removes an author with no titles.
func AdminAuthorDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		authorID, err := validators.ParseUUIDParam(r, "authorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteAuthor(r.Context(), authorID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminBookCreate registers a title with its initial copies.
func AdminBookCreate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		var payload bookCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		title, copies, err := svc.CreateTitle(r.Context(), catalog.CreateTitleInput{
			Title:         payload.Title,
			AuthorID:      payload.AuthorID,
			PublishedYear: payload.PublishedYear,
			Pages:         payload.Pages,
			Quantity:      payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, bookCreateResponse{Book: title, Copies: copies})
	}
}

func AdminBookAddCopies(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload copiesAddRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		copies, err := svc.AddCopies(r.Context(), titleID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, copies)
	}
}

// AdminBookUpdate applies a partial title change.
func AdminBookUpdate(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload bookUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		title, err := svc.UpdateTitle(r.Context(), titleID, catalog.UpdateTitleInput{
			Title:         payload.Title,
			AuthorID:      payload.AuthorID,
			PublishedYear: payload.PublishedYear,
			Pages:         payload.Pages,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, title)
	}
}

// AdminBookDelete removes a title and its copies when none is on loan.
func AdminBookDelete(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteTitle(r.Context(), titleID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func BookGet(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		title, err := svc.GetTitle(r.Context(), titleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, title)
	}
}

func BookCopies(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		copies, err := svc.ListCopies(r.Context(), titleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, copies)
	}
}

// BookAvailability reports whether a title can be borrowed right now.
func BookAvailability(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("catalog"))
			return
		}
		titleID, err := validators.ParseUUIDParam(r, "bookId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := svc.CheckAvailability(r.Context(), titleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, availability)
	}
}
