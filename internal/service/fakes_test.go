package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

// =========================================================================
// FAKE GATEWAY
// =========================================================================

// fakeStore is an in-memory implementation of every repository interface.
// fail injects an error into the named method; calls counts invocations.
type fakeStore struct {
	mu     sync.Mutex
	nextID int
	now    time.Time

	users      map[string]*model.User
	profiles   map[string]*model.Profile
	booklists  map[string]*model.Booklist
	challenges map[string]*model.Challenge
	reviews    []*model.Review
	follows    map[model.FollowEdge]bool
	groups     []*model.Group
	messages   []*model.Message

	// uniqueReviews mirrors UNIQUE(user_id, book_id).
	uniqueReviews bool

	fail  map[string]error
	calls map[string]int
	// hooks run at the start of the named method, outside the lock.
	hooks map[string]func()
}

var (
	_ repository.UserRepository      = (*fakeStore)(nil)
	_ repository.ProfileRepository   = (*fakeStore)(nil)
	_ repository.BooklistRepository  = (*fakeStore)(nil)
	_ repository.ChallengeRepository = (*fakeStore)(nil)
	_ repository.ReviewRepository    = (*fakeStore)(nil)
	_ repository.FollowRepository    = (*fakeStore)(nil)
	_ repository.GroupRepository     = (*fakeStore)(nil)
	_ repository.MessageRepository   = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		users:         make(map[string]*model.User),
		profiles:      make(map[string]*model.Profile),
		booklists:     make(map[string]*model.Booklist),
		challenges:    make(map[string]*model.Challenge),
		follows:       make(map[model.FollowEdge]bool),
		uniqueReviews: true,
		fail:          make(map[string]error),
		calls:         make(map[string]int),
		hooks:         make(map[string]func()),
	}
}

// enter records a call, runs its hook and returns the injected error, if any.
// On success the store is left locked; the caller must unlock.
func (f *fakeStore) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hooks[method]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	if err := f.fail[method]; err != nil {
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeStore) setHook(method string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = fn
}

func (f *fakeStore) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// tick returns a strictly increasing timestamp.
func (f *fakeStore) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// --- users ---

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	if err := f.enter("CreateUser"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if u.Email != "" && existing.Email == u.Email {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "duplicate email"}
		}
	}
	u.ID = f.id("user")
	u.CreatedAt = f.tick()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if err := f.enter("GetUserByID"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	if err := f.enter("GetUserByEmail"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &apperror.AppError{Err: apperror.ErrNotFound, Message: "no account for " + email}
}

func (f *fakeStore) UpsertGitHub(_ context.Context, u *model.User) error {
	if err := f.enter("UpsertGitHub"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	for _, existing := range f.users {
		if existing.GitHubID == u.GitHubID {
			existing.Login = u.Login
			existing.Email = u.Email
			existing.AvatarURL = u.AvatarURL
			existing.UpdatedAt = f.tick()
			*u = *existing
			return nil
		}
	}
	u.ID = f.id("user")
	u.CreatedAt = f.tick()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

// --- profiles ---

func (f *fakeStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	if err := f.enter("GetProfile"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	p, ok := f.profiles[id]
	if !ok {
		return nil, apperror.NotFound("profile", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ProfileExists(_ context.Context, id string) (bool, error) {
	if err := f.enter("ProfileExists"); err != nil {
		return false, err
	}
	defer f.mu.Unlock()
	_, ok := f.profiles[id]
	return ok, nil
}

func (f *fakeStore) InsertProfile(_ context.Context, p *model.Profile) error {
	if err := f.enter("InsertProfile"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if _, ok := f.profiles[p.ID]; ok {
		return apperror.Conflict("profile", p.ID)
	}
	if p.Theme == "" {
		p.Theme = model.DefaultTheme
	}
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, p *model.Profile) error {
	if err := f.enter("UpdateProfile"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	existing, ok := f.profiles[p.ID]
	if !ok {
		return apperror.NotFound("profile", p.ID)
	}
	existing.Username, existing.FullName, existing.Bio = p.Username, p.FullName, p.Bio
	return nil
}

func (f *fakeStore) UpdateTheme(_ context.Context, id string, theme model.Theme) error {
	if err := f.enter("UpdateTheme"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	existing, ok := f.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	existing.Theme = theme
	return nil
}

func (f *fakeStore) UpdateAvatar(_ context.Context, id, avatarURL string) error {
	if err := f.enter("UpdateAvatar"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	existing, ok := f.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	existing.AvatarURL = avatarURL
	return nil
}

// --- booklists ---

func (f *fakeStore) ListBooklistsByUser(_ context.Context, userID string) ([]model.Booklist, error) {
	if err := f.enter("ListBooklistsByUser"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.Booklist{}
	for _, b := range f.booklists {
		if b.OwnerUserID == userID {
			cp := *b
			cp.Books = append([]model.Book{}, b.Books...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) GetBooklist(_ context.Context, id string) (*model.Booklist, error) {
	if err := f.enter("GetBooklist"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	b, ok := f.booklists[id]
	if !ok {
		return nil, apperror.NotFound("booklist", id)
	}
	cp := *b
	cp.Books = append([]model.Book{}, b.Books...)
	return &cp, nil
}

func (f *fakeStore) InsertBooklist(_ context.Context, b *model.Booklist) error {
	if err := f.enter("InsertBooklist"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	b.ID = f.id("booklist")
	b.CreatedAt = f.tick()
	cp := *b
	cp.Books = []model.Book{}
	f.booklists[b.ID] = &cp
	return nil
}

func (f *fakeStore) AppendBookToBooklist(_ context.Context, booklistID string, book model.Book) error {
	if err := f.enter("AppendBookToBooklist"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	b, ok := f.booklists[booklistID]
	if !ok {
		return apperror.NotFound("booklist", booklistID)
	}
	b.Books = append(b.Books, book)
	return nil
}

// --- challenges ---

func (f *fakeStore) ListChallengesByUser(_ context.Context, userID string) ([]model.Challenge, error) {
	if err := f.enter("ListChallengesByUser"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.Challenge{}
	for _, c := range f.challenges {
		if c.OwnerUserID == userID {
			cp := *c
			cp.Books = append([]model.Book{}, c.Books...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) GetChallenge(_ context.Context, id string) (*model.Challenge, error) {
	if err := f.enter("GetChallenge"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	c, ok := f.challenges[id]
	if !ok {
		return nil, apperror.NotFound("challenge", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) InsertChallenge(_ context.Context, c *model.Challenge) error {
	if err := f.enter("InsertChallenge"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	c.ID = f.id("challenge")
	c.CreatedAt = f.tick()
	cp := *c
	cp.Books = []model.Book{}
	f.challenges[c.ID] = &cp
	return nil
}

func (f *fakeStore) AppendBookToChallenge(_ context.Context, challengeID string, book model.Book) error {
	if err := f.enter("AppendBookToChallenge"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	c, ok := f.challenges[challengeID]
	if !ok {
		return apperror.NotFound("challenge", challengeID)
	}
	c.Books = append(c.Books, book)
	return nil
}

// --- reviews ---

func (f *fakeStore) ListReviewsByBook(_ context.Context, bookID string) ([]model.Review, error) {
	if err := f.enter("ListReviewsByBook"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.Review{}
	for i := len(f.reviews) - 1; i >= 0; i-- {
		if f.reviews[i].BookID == bookID {
			out = append(out, *f.reviews[i])
		}
	}
	return out, nil
}

func (f *fakeStore) FindReview(_ context.Context, userID, bookID string) (*model.Review, error) {
	if err := f.enter("FindReview"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	for _, r := range f.reviews {
		if r.UserID == userID && r.BookID == bookID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertReview(_ context.Context, r *model.Review) error {
	if err := f.enter("InsertReview"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	if f.uniqueReviews {
		for _, existing := range f.reviews {
			if existing.UserID == r.UserID && existing.BookID == r.BookID {
				return &apperror.AppError{Err: apperror.ErrConflict, Message: "you have already reviewed this book"}
			}
		}
	}
	r.ID = f.id("review")
	r.CreatedAt = f.tick()
	cp := *r
	f.reviews = append(f.reviews, &cp)
	return nil
}

func (f *fakeStore) UpdateReview(_ context.Context, r *model.Review) error {
	if err := f.enter("UpdateReview"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	n := 0
	for _, existing := range f.reviews {
		if existing.UserID == r.UserID && existing.BookID == r.BookID {
			existing.Rating, existing.Content = r.Rating, r.Content
			n++
		}
	}
	if n == 0 {
		return apperror.NotFound("review", r.UserID+"/"+r.BookID)
	}
	return nil
}

func (f *fakeStore) RatingForBook(_ context.Context, bookID string) (model.BookRating, error) {
	if err := f.enter("RatingForBook"); err != nil {
		return model.BookRating{}, err
	}
	defer f.mu.Unlock()

	rating := model.BookRating{BookID: bookID}
	sum := 0
	for _, r := range f.reviews {
		if r.BookID == bookID {
			sum += r.Rating
			rating.Count++
		}
	}
	if rating.Count > 0 {
		avg := float64(sum) / float64(rating.Count)
		rating.Average = float64(int(avg*10+0.5)) / 10
	}
	return rating, nil
}

func (f *fakeStore) reviewRows(userID, bookID string) []model.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Review
	for _, r := range f.reviews {
		if r.UserID == userID && r.BookID == bookID {
			out = append(out, *r)
		}
	}
	return out
}

// --- follows ---

func (f *fakeStore) FollowExists(_ context.Context, followerID, followingID string) (bool, error) {
	if err := f.enter("FollowExists"); err != nil {
		return false, err
	}
	defer f.mu.Unlock()
	return f.follows[model.FollowEdge{FollowerID: followerID, FollowingID: followingID}], nil
}

func (f *fakeStore) InsertFollow(_ context.Context, followerID, followingID string) error {
	if err := f.enter("InsertFollow"); err != nil {
		return err
	}
	defer f.mu.Unlock()
	f.follows[model.FollowEdge{FollowerID: followerID, FollowingID: followingID}] = true
	return nil
}

func (f *fakeStore) DeleteFollow(_ context.Context, followerID, followingID string) error {
	if err := f.enter("DeleteFollow"); err != nil {
		return err
	}
	defer f.mu.Unlock()
	delete(f.follows, model.FollowEdge{FollowerID: followerID, FollowingID: followingID})
	return nil
}

func (f *fakeStore) ListFollowers(_ context.Context, userID string) ([]model.FollowUser, error) {
	if err := f.enter("ListFollowers"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.FollowUser{}
	for e := range f.follows {
		if e.FollowingID == userID {
			out = append(out, f.followUserLocked(e.FollowerID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) ListFollowing(_ context.Context, userID string) ([]model.FollowUser, error) {
	if err := f.enter("ListFollowing"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.FollowUser{}
	for e := range f.follows {
		if e.FollowerID == userID {
			out = append(out, f.followUserLocked(e.FollowingID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) followUserLocked(id string) model.FollowUser {
	fu := model.FollowUser{UserID: id}
	if p, ok := f.profiles[id]; ok {
		fu.Username, fu.AvatarURL = p.Username, p.AvatarURL
	}
	return fu
}

func (f *fakeStore) CountFollowers(_ context.Context, userID string) (int, error) {
	if err := f.enter("CountFollowers"); err != nil {
		return 0, err
	}
	defer f.mu.Unlock()
	n := 0
	for e := range f.follows {
		if e.FollowingID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountFollowing(_ context.Context, userID string) (int, error) {
	if err := f.enter("CountFollowing"); err != nil {
		return 0, err
	}
	defer f.mu.Unlock()
	n := 0
	for e := range f.follows {
		if e.FollowerID == userID {
			n++
		}
	}
	return n, nil
}

// --- groups and messages ---

func (f *fakeStore) ListGroups(_ context.Context) ([]model.Group, error) {
	if err := f.enter("ListGroups"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.Group{}
	for i := len(f.groups) - 1; i >= 0; i-- {
		out = append(out, *f.groups[i])
	}
	return out, nil
}

func (f *fakeStore) GetGroup(_ context.Context, id string) (*model.Group, error) {
	if err := f.enter("GetGroup"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	for _, g := range f.groups {
		if g.ID == id {
			cp := *g
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("group", id)
}

func (f *fakeStore) InsertGroup(_ context.Context, g *model.Group) error {
	if err := f.enter("InsertGroup"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	g.ID = f.id("group")
	g.CreatedAt = f.tick()
	cp := *g
	f.groups = append(f.groups, &cp)
	return nil
}

func (f *fakeStore) ListMessagesByGroup(_ context.Context, groupID string) ([]model.Message, error) {
	if err := f.enter("ListMessagesByGroup"); err != nil {
		return nil, err
	}
	defer f.mu.Unlock()

	out := []model.Message{}
	for i := len(f.messages) - 1; i >= 0; i-- {
		if m := f.messages[i]; m.GroupID == groupID {
			cp := *m
			cp.Username = "U"
			if p, ok := f.profiles[m.UserID]; ok && p.Username != "" {
				cp.Username = p.Username
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, m *model.Message) error {
	if err := f.enter("InsertMessage"); err != nil {
		return err
	}
	defer f.mu.Unlock()

	found := false
	for _, g := range f.groups {
		found = found || g.ID == m.GroupID
	}
	if !found {
		return apperror.NotFound("group", m.GroupID)
	}
	m.ID = f.id("message")
	m.Timestamp = f.tick()
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) *query.Client {
	t.Helper()
	return query.New(query.Config{Timeout: 5 * time.Second}, discardLogger())
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

var dune = model.Book{
	ID:            "vol-dune",
	Title:         "Dune",
	Author:        "Frank Herbert",
	CoverURL:      "https://via.placeholder.com/128x196",
	Description:   "No description available",
	AverageRating: 4.5,
}
