package quota

import "github.com/artur/mediasaver/internal/database/models"

// Policy applies the freemium rules: the admin and premium users download
// without limits, free users get FreeLimit downloads in total.
type Policy struct {
	FreeLimit int
	AdminID   int64
}

// Unlimited reports whether downloads by this user are exempt from
// counting.
func (p Policy) Unlimited(u *models.User) bool {
	return u.UserID == p.AdminID || u.IsPremium()
}

// Allowed reports whether the user may start another download.
func (p Policy) Allowed(u *models.User) bool {
	return p.Unlimited(u) || u.DownloadsCount < p.FreeLimit
}

// Remaining returns how many free downloads the user has left. For
// unlimited users the value is meaningless and callers should check
// Unlimited first.
func (p Policy) Remaining(u *models.User) int {
	left := p.FreeLimit - u.DownloadsCount
	if left < 0 {
		return 0
	}
	return left
}
