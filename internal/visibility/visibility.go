// Package visibility decides whether a post's image is hidden from a viewer.
//
// A viewer sees another post unblurred only when their own last post is
// within Window whole hours of that post's creation, in either direction.
package visibility

import (
	"time"

	"bereal-backend/internal/models"
)

// Window is the freshness window in whole hours.
const Window = 24

// HoursBetween returns the whole hours elapsed from a to b, truncated toward zero.
func HoursBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Hour)
}

// ShouldBlur reports whether post should be obscured for viewer. It blurs
// whenever freshness cannot be established.
func ShouldBlur(post *models.Post, viewer *models.Viewer) bool {
	if post == nil || viewer == nil || viewer.LastPostedDate == nil || post.CreatedAt.IsZero() {
		return true
	}

	diff := HoursBetween(post.CreatedAt, *viewer.LastPostedDate)
	if diff < 0 {
		diff = -diff
	}
	return diff >= Window
}
