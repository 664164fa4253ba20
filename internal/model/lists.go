package model

import (
	"math"
	"time"
)

// Booklist is a named collection of book snapshots owned by one user.
type Booklist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"ownerUserId"`
	CreatedAt   time.Time `json:"createdAt"`
	Books       []Book    `json:"books"`
}

// Challenge is a reading goal: read TargetBooks books between StartDate and EndDate.
type Challenge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID string    `json:"ownerUserId"`
	StartDate   string    `json:"startDate"` // YYYY-MM-DD
	EndDate     string    `json:"endDate"`   // YYYY-MM-DD
	TargetBooks int       `json:"targetBooks"`
	CreatedAt   time.Time `json:"createdAt"`
	Books       []Book    `json:"books"`
}

// Progress returns len(Books)/TargetBooks clamped to [0, 1].
func (c *Challenge) Progress() float64 {
	if c.TargetBooks <= 0 {
		return 0
	}
	return math.Min(float64(len(c.Books))/float64(c.TargetBooks), 1)
}

// ProgressPercent is Progress as a whole percentage, never above 100.
func (c *Challenge) ProgressPercent() int {
	return int(math.Round(c.Progress() * 100))
}
