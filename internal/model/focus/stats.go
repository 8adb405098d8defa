package focus

import "cloud.google.com/go/civil"

// DefaultUsername 新用户的默认昵称。
const DefaultUsername = "New User"

// UserStats 按用户持久化的专注统计。
type UserStats struct {
	Username          string      `json:"username"`
	AvatarRef         *string     `json:"avatarRef"`
	TotalFocusMinutes int         `json:"totalFocusMinutes"`
	CurrentStreakDays int         `json:"currentStreakDays"`
	LastFocusDate     *civil.Date `json:"lastFocusDate"`
	ShameCount        int         `json:"shameCount"`
	SocialLinked      bool        `json:"socialLinked"`
}

// DefaultStats 返回首次访问时使用的默认统计。
func DefaultStats() UserStats {
	return UserStats{Username: DefaultUsername}
}

// Clone returns a deep copy so callers cannot alias pointer fields.
func (s UserStats) Clone() UserStats {
	out := s
	if s.AvatarRef != nil {
		avatar := *s.AvatarRef
		out.AvatarRef = &avatar
	}
	if s.LastFocusDate != nil {
		date := *s.LastFocusDate
		out.LastFocusDate = &date
	}
	return out
}
