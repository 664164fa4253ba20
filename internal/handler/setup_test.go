package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/catalog"
	"github.com/sakif/readrealm/internal/handler"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	sqliteRepo "github.com/sakif/readrealm/internal/repository/sqlite"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/session"
	"github.com/sakif/readrealm/internal/validation"
)

// testUserHeader names the user a request is made as. The test router turns
// it into a settled session snapshot, standing in for auth.Sessions.
const testUserHeader = "X-Test-User"

// =========================================================================
// FAKE CATALOG
// =========================================================================

type fakeCatalog struct {
	mu      sync.Mutex
	books   map[string]model.Book
	err     error
	queries []string
}

func newFakeCatalog(books ...model.Book) *fakeCatalog {
	f := &fakeCatalog{books: make(map[string]model.Book)}
	for _, b := range books {
		f.books[b.ID] = b
	}
	return f
}

func (f *fakeCatalog) SearchByQuery(_ context.Context, text string) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Book
	for _, b := range f.books {
		if bytes.Contains(bytes.ToLower([]byte(b.Title)), bytes.ToLower([]byte(text))) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCatalog) SearchByGenre(_ context.Context, genre string) ([]model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []model.Book{}
	for _, b := range f.books {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCatalog) FetchByID(_ context.Context, id string) (model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return model.Book{}, f.err
	}
	b, ok := f.books[id]
	if !ok {
		return model.Book{}, &catalog.ProviderError{StatusCode: http.StatusNotFound, Message: "The volume ID could not be found."}
	}
	return b, nil
}

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================

type testEnv struct {
	db       *sqliteRepo.DB
	cache    *query.Client
	clock    *query.ManualClock
	books    *fakeCatalog
	registry *session.Registry
	chat     *handler.ChatHandler
	router   http.Handler
}

var dune = model.Book{
	ID:          "dune-1",
	Title:       "Dune",
	Author:      "Frank Herbert",
	CoverURL:    "https://example.com/dune.jpg",
	Description: "Desert planet",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires the real services over an in-memory database, the same
// way the server does, with a fake catalog and a manual clock for the cache.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := discardLogger()
	clock := query.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := query.New(query.Config{Clock: clock}, logger)
	books := newFakeCatalog(dune)

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	v := validation.New()

	authService := service.NewAuthService(db, db, tokens, auth.NewPasswordServiceForTest(4), logger)
	registry := session.NewRegistry(authService, logger)

	authHandler := handler.NewAuthHandler(authService, nil, registry, v, time.Hour, false, logger)
	bookHandler := handler.NewBookHandler(
		service.NewCatalogService(books, db, cache, logger),
		service.NewReviewService(db, cache, logger),
		v, false, logger,
	)
	listHandler := handler.NewListHandler(
		service.NewBooklistService(db, cache, logger),
		service.NewChallengeService(db, cache, logger),
		v, logger,
	)
	socialHandler := handler.NewSocialHandler(
		service.NewFollowService(db, cache, logger),
		service.NewProfileService(db, cache, logger),
		v, false, logger,
	)
	chatHandler := handler.NewChatHandler(service.NewChatService(db, db, cache, time.Second, logger), v, logger)
	t.Cleanup(chatHandler.Close)

	r := chi.NewRouter()

	// Auth routes run behind the real session middleware.
	r.Group(func(r chi.Router) {
		r.Use(auth.Sessions(registry, false))
		r.Post("/api/auth/signup", authHandler.HandleSignUp)
		r.Post("/api/auth/signin", authHandler.HandleSignIn)
		r.Post("/api/auth/signout", authHandler.HandleSignOut)
		r.Get("/api/auth/me", authHandler.HandleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(asTestUser)

		r.Get("/api/books/search", bookHandler.HandleSearch)
		r.Get("/api/books/genre/{genre}", bookHandler.HandleGenre)
		r.Get("/api/books/{id}", bookHandler.HandleGetBook)
		r.Get("/api/books/{id}/rating", bookHandler.HandleRating)
		r.Get("/api/books/{id}/reviews", bookHandler.HandleListReviews)
		r.Get("/api/searches/recent", bookHandler.HandleRecentSearches)
		r.Delete("/api/searches/recent", bookHandler.HandleRemoveRecentSearch)

		r.Get("/api/users/{id}/profile", socialHandler.HandleGetProfile)
		r.Get("/api/users/{id}/follow", socialHandler.HandleFollowState)
		r.Get("/api/users/{id}/follow-stats", socialHandler.HandleFollowStats)
		r.Get("/api/users/{id}/booklists", listHandler.HandleReadingLists)
		r.Get("/api/themes", socialHandler.HandleThemes)
		r.Put("/api/profile/theme", socialHandler.HandleSetTheme)

		r.Get("/api/groups", chatHandler.HandleListGroups)
		r.Get("/api/groups/{id}/messages", chatHandler.HandleListMessages)
		r.Get("/api/groups/{id}/messages/stream", chatHandler.HandleStream)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/api/books/{id}/reviews/mine", bookHandler.HandleMyReview)
			r.Put("/api/books/{id}/reviews/mine", bookHandler.HandleSubmitReview)
			r.Get("/api/booklists", listHandler.HandleListBooklists)
			r.Post("/api/booklists", listHandler.HandleCreateBooklist)
			r.Post("/api/booklists/{id}/books", listHandler.HandleAddToBooklist)
			r.Get("/api/challenges", listHandler.HandleListChallenges)
			r.Post("/api/challenges", listHandler.HandleCreateChallenge)
			r.Post("/api/challenges/{id}/books", listHandler.HandleAddToChallenge)
			r.Get("/api/profile", socialHandler.HandleMyProfile)
			r.Put("/api/profile", socialHandler.HandleUpdateProfile)
			r.Put("/api/profile/avatar", socialHandler.HandleSetAvatar)
			r.Post("/api/users/{id}/follow", socialHandler.HandleToggleFollow)
			r.Post("/api/groups", chatHandler.HandleCreateGroup)
			r.Post("/api/groups/{id}/messages", chatHandler.HandleSendMessage)
		})
	})

	return &testEnv{
		db:       db,
		cache:    cache,
		clock:    clock,
		books:    books,
		registry: registry,
		chat:     chatHandler,
		router:   r,
	}
}

func asTestUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := session.Snapshot{State: session.StateAnonymous}
		if id := r.Header.Get(testUserHeader); id != "" {
			snap = session.Snapshot{
				State:    session.StateAuthenticated,
				Identity: session.Identity{UserID: id, Username: id},
			}
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSnapshot(r.Context(), snap)))
	})
}

// do sends a request through the router. userID may be empty for an
// anonymous request; body may be empty for none.
func (e *testEnv) do(t *testing.T, method, path, userID, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(testUserHeader, userID)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// jsonBody parses the recorded body for gjson paths.
func jsonBody(rr *httptest.ResponseRecorder) gjson.Result {
	return gjson.ParseBytes(rr.Body.Bytes())
}

// cookieNamed returns the Set-Cookie with the given name, or nil.
func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
