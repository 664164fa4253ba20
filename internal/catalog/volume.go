package catalog

import (
	"errors"
	"math"

	"github.com/tidwall/gjson"

	"github.com/sakif/readrealm/internal/model"
)

// Defaults applied to every Book the client builds, whichever endpoint it came from.
const (
	UnknownAuthor      = "Unknown Author"
	UntitledBook       = "Untitled"
	PlaceholderCover   = "https://via.placeholder.com/128x196"
	MissingDescription = "No description available"
)

var errMalformed = errors.New("malformed provider response")

// parseVolumes reads items[] from a search response. A response with no items
// key (the provider's way of saying "no results") yields an empty slice.
func parseVolumes(body []byte) ([]model.Book, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformed
	}

	items := gjson.GetBytes(body, "items")
	books := make([]model.Book, 0, len(items.Array()))
	for _, item := range items.Array() {
		books = append(books, toBook(item))
	}
	return books, nil
}

// parseVolume reads a single detail record.
func parseVolume(body []byte) (model.Book, error) {
	if !gjson.ValidBytes(body) {
		return model.Book{}, errMalformed
	}
	item := gjson.ParseBytes(body)
	if !item.Get("id").Exists() {
		return model.Book{}, errMalformed
	}
	return toBook(item), nil
}

// toBook applies the defaulting policy. Only the first author and the first
// industry identifier are kept.
func toBook(item gjson.Result) model.Book {
	info := item.Get("volumeInfo")

	return model.Book{
		ID:            item.Get("id").String(),
		Title:         stringOr(info.Get("title"), UntitledBook),
		Author:        stringOr(info.Get("authors.0"), UnknownAuthor),
		CoverURL:      stringOr(info.Get("imageLinks.thumbnail"), PlaceholderCover),
		Description:   stringOr(info.Get("description"), MissingDescription),
		AverageRating: roundRating(info.Get("averageRating").Float()),
		PublishedDate: info.Get("publishedDate").String(),
		ISBN:          info.Get("industryIdentifiers.0.identifier").String(),
	}
}

func stringOr(r gjson.Result, fallback string) string {
	if s := r.String(); s != "" {
		return s
	}
	return fallback
}

func roundRating(v float64) float64 {
	v = math.Max(0, math.Min(v, 5))
	return math.Round(v*10) / 10
}

// providerMessage extracts error.message from a provider error body, if any.
func providerMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	return gjson.GetBytes(body, "error.message").String()
}
