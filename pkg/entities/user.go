package entities

import "time"

// User is a bot subscriber.
type User struct {
	ID           int64
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	JoinedAt     time.Time
	IsAdmin      bool
	Referrals    int
	InvitedBy    *int64
	ReceivedGift bool
	LeadMagnetID *int64
	Tags         []string
}

// NewUser carries data used to register a subscriber on first contact.
type NewUser struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	JoinedAt   time.Time
	IsAdmin    bool
	InvitedBy  *int64
	Tags       []string
}

// HasTag reports whether the user carries the tag.
func (u *User) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FullName joins first and last name, skipping empty parts.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
