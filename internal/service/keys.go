package service

import "github.com/sakif/readrealm/internal/query"

// Cache keys. A read and every write that can change it must agree on these.

func booksKey(q string) query.Key { return query.Key{"books", q} }

func genreKey(genre string) query.Key { return query.Key{"books", "genre", genre} }

func bookKey(id string) query.Key { return query.Key{"book", id} }

func bookRatingKey(bookID string) query.Key { return query.Key{"bookRating", bookID} }

func booklistsKey(userID string) query.Key { return query.Key{"booklists", userID} }

func readingListsKey(userID string) query.Key { return query.Key{"readingLists", userID} }

func challengesKey(userID string) query.Key { return query.Key{"challenges", userID} }

func reviewsKey(bookID string) query.Key { return query.Key{"reviews", bookID} }

func userReviewKey(userID, bookID string) query.Key { return query.Key{"userReview", userID, bookID} }

// followingKey is scoped by viewer: whether viewerID follows targetID.
func followingKey(targetID, viewerID string) query.Key {
	return query.Key{"following", targetID, viewerID}
}

func followStatsKey(userID string) query.Key { return query.Key{"followStats", userID} }

func messagesKey(groupID string) query.Key { return query.Key{"messages", groupID} }

func profileKey(userID string) query.Key { return query.Key{"profile", userID} }

var (
	allBooklists   = query.Key{"booklists"}
	allChallenges  = query.Key{"challenges"}
	allGroups      = query.Key{"groups"}
	allFollowStats = query.Key{"followStats"}
	allMessages    = query.Key{"messages"}
)
