package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/validation"
)

// ListHandler serves booklists and reading challenges. Both are owned by one
// user and grow by appending book snapshots.
type ListHandler struct {
	booklists  *service.BooklistService
	challenges *service.ChallengeService
	validator  *validation.Validator
	logger     *slog.Logger
}

func NewListHandler(
	booklists *service.BooklistService,
	challenges *service.ChallengeService,
	validator *validation.Validator,
	logger *slog.Logger,
) *ListHandler {
	return &ListHandler{booklists: booklists, challenges: challenges, validator: validator, logger: logger}
}

type createBooklistRequest struct {
	Name string `json:"name" validate:"required"`
}

// addBookRequest is the book snapshot being appended. Only the id is
// required; the rest is copied as sent.
type addBookRequest struct {
	model.Book
	ID string `json:"id" validate:"required"`
}

func (req addBookRequest) book() model.Book {
	b := req.Book
	b.ID = req.ID
	return b
}

// =========================================================================
// BOOKLISTS
// =========================================================================

// HTTP: GET /api/booklists (auth)
func (h *ListHandler) HandleListBooklists(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	lists, err := h.booklists.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, lists)
}

// HTTP: POST /api/booklists (auth)
// REQUEST BODY: {"name": "Summer reads"}
func (h *ListHandler) HandleCreateBooklist(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createBooklistRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	b, err := h.booklists.Create(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusCreated, b, "Booklist created")
}

// HTTP: POST /api/booklists/{id}/books (auth, owner only)
// REQUEST BODY: a Book snapshot
func (h *ListHandler) HandleAddToBooklist(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req addBookRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.booklists.AddBook(r.Context(), userID, chi.URLParam(r, "id"), req.book()); err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusOK, nil, "Book added to booklist")
}

// HandleReadingLists is the public view of another user's booklists.
//
// HTTP: GET /api/users/{id}/booklists
func (h *ListHandler) HandleReadingLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.booklists.ReadingLists(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, lists)
}

// =========================================================================
// CHALLENGES
// =========================================================================

// challengeView adds the derived progress to a challenge.
type challengeView struct {
	model.Challenge
	ProgressPercent int `json:"progressPercent"`
}

func newChallengeView(c model.Challenge) challengeView {
	return challengeView{Challenge: c, ProgressPercent: c.ProgressPercent()}
}

// HTTP: GET /api/challenges (auth)
func (h *ListHandler) HandleListChallenges(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	challenges, err := h.challenges.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]challengeView, 0, len(challenges))
	for _, c := range challenges {
		views = append(views, newChallengeView(c))
	}
	writeData(w, views)
}

// HTTP: POST /api/challenges (auth)
// REQUEST BODY: {"name": "2024", "startDate": "2024-01-01", "endDate": "2024-12-31", "targetBooks": 24}
func (h *ListHandler) HandleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.ChallengeInput
	if err := decodeJSON(r, h.validator, &in); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.challenges.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusCreated, newChallengeView(*c), "Challenge created")
}

// HTTP: POST /api/challenges/{id}/books (auth, owner only)
func (h *ListHandler) HandleAddToChallenge(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req addBookRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.challenges.AddBook(r.Context(), userID, chi.URLParam(r, "id"), req.book()); err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusOK, nil, "Book added to challenge")
}
