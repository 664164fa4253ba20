// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Book is an immutable snapshot of a catalog volume.
//
// Snapshots are copied by value into booklists and challenges; nothing in this
// application edits a Book after the catalog client has built it, so every
// field is always populated (see catalog's defaulting policy).
type Book struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	CoverURL      string  `json:"coverUrl"`
	Description   string  `json:"description"`
	AverageRating float64 `json:"averageRating"` // 0–5, one decimal
	PublishedDate string  `json:"publishedDate"`
	ISBN          string  `json:"isbn"`
}

// Review is one user's rating of one book. There is at most one per (UserID, BookID).
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	BookID    string    `json:"bookId"`
	Rating    int       `json:"rating"` // 1–5
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// BookRating is the aggregate of local reviews for a book.
type BookRating struct {
	BookID  string  `json:"bookId"`
	Average float64 `json:"average"` // one decimal, 0 when Count is 0
	Count   int     `json:"count"`
}
