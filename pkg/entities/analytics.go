package entities

// LeadMagnetStat counts users that picked a lead magnet.
type LeadMagnetStat struct {
	Name  string
	Users int
}

// InviterStat counts users invited by one subscriber.
type InviterStat struct {
	Username    string
	Invitations int
}

// UserActivity counts messages logged for one user.
type UserActivity struct {
	UserID   int64
	Messages int
}

// Summary is the analytics report for a period.
type Summary struct {
	NewSubscribers int
	SentMessages   int
	ActiveUsers    int
	OpenRate       float64
	ResponseRate   float64
	LeadMagnets    []LeadMagnetStat
	Inviters       []InviterStat
}
