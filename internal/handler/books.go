package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/catalog"
	"github.com/sakif/readrealm/internal/prefs"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/validation"
)

// BookHandler serves the catalog pages: search, genre browsing, the book detail
// page with its reviews, and the recent-search list.
type BookHandler struct {
	catalog   *service.CatalogService
	reviews   *service.ReviewService
	validator *validation.Validator
	secure    bool
	logger    *slog.Logger
}

func NewBookHandler(
	catalog *service.CatalogService,
	reviews *service.ReviewService,
	validator *validation.Validator,
	secure bool,
	logger *slog.Logger,
) *BookHandler {
	return &BookHandler{
		catalog:   catalog,
		reviews:   reviews,
		validator: validator,
		secure:    secure,
		logger:    logger,
	}
}

// HandleSearch runs a free-text search and remembers the term.
//
// HTTP: GET /api/books/search?q=dune
//
// A failed search reads as no results; the data is always a list.
func (h *BookHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	books := h.catalog.Search(r.Context(), q)

	if q != "" {
		recent := prefs.ReadRecentSearches(r).Add(q)
		prefs.WriteRecentSearches(w, recent, h.secure)
	}
	writeData(w, books)
}

// HandleGenre lists books for a subject.
//
// HTTP: GET /api/books/genre/{genre}
func (h *BookHandler) HandleGenre(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.catalog.Genre(r.Context(), chi.URLParam(r, "genre")))
}

// HandleGetBook returns one book by its catalog id.
//
// HTTP: GET /api/books/{id}
func (h *BookHandler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	book, err := h.catalog.Book(r.Context(), id)
	if err != nil {
		var pe *catalog.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			err = apperror.NotFound("book", id)
		}
		h.logger.Warn("book lookup failed", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeData(w, book)
}

// HandleRating returns the average of local reviews.
//
// HTTP: GET /api/books/{id}/rating
func (h *BookHandler) HandleRating(w http.ResponseWriter, r *http.Request) {
	rating, err := h.catalog.Rating(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, rating)
}

// HandleRecentSearches returns the remembered search terms, newest first.
//
// HTTP: GET /api/searches/recent
func (h *BookHandler) HandleRecentSearches(w http.ResponseWriter, r *http.Request) {
	writeData(w, prefs.ReadRecentSearches(r))
}

// HandleRemoveRecentSearch forgets one term.
//
// HTTP: DELETE /api/searches/recent?q=dune
func (h *BookHandler) HandleRemoveRecentSearch(w http.ResponseWriter, r *http.Request) {
	recent := prefs.ReadRecentSearches(r).Remove(r.URL.Query().Get("q"))
	prefs.WriteRecentSearches(w, recent, h.secure)
	writeData(w, recent)
}

// =========================================================================
// REVIEWS
// =========================================================================

// HandleListReviews returns a book's reviews, newest first.
//
// HTTP: GET /api/books/{id}/reviews
func (h *BookHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListForBook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, reviews)
}

// HandleMyReview returns the caller's review of the book. The data is null
// when there is none yet.
//
// HTTP: GET /api/books/{id}/reviews/mine (auth)
func (h *BookHandler) HandleMyReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	review, err := h.reviews.Mine(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{"success", review})
}

// HandleSubmitReview creates or replaces the caller's review.
//
// HTTP: PUT /api/books/{id}/reviews/mine (auth)
// REQUEST BODY: {"rating": 4, "content": "Loved the worldbuilding"}
//
// 201 with "Review submitted" for the first review, 200 with "Review updated"
// afterwards.
func (h *BookHandler) HandleSubmitReview(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.ReviewInput
	if err := decodeJSON(r, h.validator, &in); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.reviews.Submit(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeDone(w, status, res.Review, res.Notice())
}
