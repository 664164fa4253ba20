package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
)

// =========================================================================
// BOOKLIST TESTS
// =========================================================================

func TestBooklist_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := &model.Booklist{Name: "N", OwnerUserID: "u1"}
	if err := db.InsertBooklist(ctx, b); err != nil {
		t.Fatalf("InsertBooklist() error = %v", err)
	}

	lists, err := db.ListBooklistsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListBooklistsByUser() error = %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("len(lists) = %d, want 1", len(lists))
	}
	if lists[0].Name != "N" {
		t.Errorf("Name = %q, want %q", lists[0].Name, "N")
	}
	if lists[0].Books == nil || len(lists[0].Books) != 0 {
		t.Errorf("Books = %#v, want empty non-nil slice", lists[0].Books)
	}
}

func TestBooklist_ListEmptyIsNonNil(t *testing.T) {
	db := newTestDB(t)

	lists, err := db.ListBooklistsByUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListBooklistsByUser() error = %v", err)
	}
	if lists == nil {
		t.Error("ListBooklistsByUser() returned nil, want empty slice")
	}
}

func TestBooklist_AppendBooksNestedPerList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older := &model.Booklist{Name: "Sci-fi", OwnerUserID: "u1"}
	newer := &model.Booklist{Name: "Fantasy", OwnerUserID: "u1"}
	other := &model.Booklist{Name: "Not mine", OwnerUserID: "u2"}
	for _, b := range []*model.Booklist{older, newer, other} {
		if err := db.InsertBooklist(ctx, b); err != nil {
			t.Fatalf("InsertBooklist() error = %v", err)
		}
	}

	mustAppend := func(listID string, book model.Book) {
		t.Helper()
		if err := db.AppendBookToBooklist(ctx, listID, book); err != nil {
			t.Fatalf("AppendBookToBooklist() error = %v", err)
		}
	}
	mustAppend(older.ID, testBook("dune", "Dune"))
	mustAppend(older.ID, testBook("hyperion", "Hyperion"))
	mustAppend(newer.ID, testBook("hobbit", "The Hobbit"))
	mustAppend(other.ID, testBook("emma", "Emma"))

	lists, err := db.ListBooklistsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListBooklistsByUser() error = %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("len(lists) = %d, want 2", len(lists))
	}

	// newest first
	if lists[0].ID != newer.ID || lists[1].ID != older.ID {
		t.Fatalf("order = [%s %s], want [%s %s]", lists[0].Name, lists[1].Name, newer.Name, older.Name)
	}
	if len(lists[0].Books) != 1 || lists[0].Books[0].Title != "The Hobbit" {
		t.Errorf("newer books = %+v", lists[0].Books)
	}
	if len(lists[1].Books) != 2 {
		t.Fatalf("older books = %+v", lists[1].Books)
	}
	if lists[1].Books[0] != testBook("dune", "Dune") {
		t.Errorf("snapshot not stored by value: %+v", lists[1].Books[0])
	}
}

func TestBooklist_GetWithBooks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := &model.Booklist{Name: "Summer", OwnerUserID: "u1"}
	if err := db.InsertBooklist(ctx, b); err != nil {
		t.Fatalf("InsertBooklist() error = %v", err)
	}
	if err := db.AppendBookToBooklist(ctx, b.ID, testBook("dune", "Dune")); err != nil {
		t.Fatalf("AppendBookToBooklist() error = %v", err)
	}

	got, err := db.GetBooklist(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBooklist() error = %v", err)
	}
	if got.OwnerUserID != "u1" || len(got.Books) != 1 {
		t.Errorf("GetBooklist() = %+v", got)
	}
}

func TestBooklist_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetBooklist(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetBooklist() error = %v, want ErrNotFound", err)
	}
	err := db.AppendBookToBooklist(ctx, "missing", testBook("dune", "Dune"))
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("AppendBookToBooklist() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// CHALLENGE TESTS
// =========================================================================

func TestChallenge_InsertListAppend(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c := &model.Challenge{
		Name:        "2024 goal",
		OwnerUserID: "u1",
		StartDate:   "2024-01-01",
		EndDate:     "2024-12-31",
		TargetBooks: 2,
	}
	if err := db.InsertChallenge(ctx, c); err != nil {
		t.Fatalf("InsertChallenge() error = %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := db.AppendBookToChallenge(ctx, c.ID, testBook(id, id)); err != nil {
			t.Fatalf("AppendBookToChallenge() error = %v", err)
		}
	}

	list, err := db.ListChallengesByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListChallengesByUser() error = %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	got := list[0]
	if got.StartDate != "2024-01-01" || got.EndDate != "2024-12-31" || got.TargetBooks != 2 {
		t.Errorf("challenge fields = %+v", got)
	}
	if len(got.Books) != 3 {
		t.Errorf("len(Books) = %d, want 3", len(got.Books))
	}
	if got.ProgressPercent() != 100 {
		t.Errorf("ProgressPercent() = %d, want 100 (clamped)", got.ProgressPercent())
	}

	single, err := db.GetChallenge(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetChallenge() error = %v", err)
	}
	if len(single.Books) != 3 {
		t.Errorf("GetChallenge() books = %d, want 3", len(single.Books))
	}
}

func TestChallenge_TargetMustBePositive(t *testing.T) {
	db := newTestDB(t)

	c := &model.Challenge{Name: "bad", OwnerUserID: "u1", StartDate: "2024-01-01", EndDate: "2024-02-01"}
	if err := db.InsertChallenge(context.Background(), c); err == nil {
		t.Fatal("InsertChallenge() with target 0 should fail the CHECK constraint")
	}
}

func TestChallenge_NotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetChallenge(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetChallenge() error = %v, want ErrNotFound", err)
	}
}
