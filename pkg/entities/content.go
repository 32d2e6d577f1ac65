package entities

import "time"

// MediaKind is a kind of attachment accompanying a message.
type MediaKind string

const (
	MediaKindPhoto    MediaKind = "photo"
	MediaKindVideo    MediaKind = "video"
	MediaKindAudio    MediaKind = "audio"
	MediaKindDocument MediaKind = "document"
)

// Media references an attachment already stored by the chat platform.
type Media struct {
	Kind   MediaKind
	FileID string
}

// IsZero reports whether no attachment is referenced.
func (m Media) IsZero() bool {
	return m.FileID == ""
}

// Template is a stored message template, unique by type.
type Template struct {
	ID      int64
	Type    string
	Content string
	Media   Media
}

// Template types offered by the message manager.
const (
	TemplateWelcome        = "welcome_template"
	TemplateNewbie         = "newbie"
	TemplateActiveReferral = "active_referral"
	TemplateReceivedGift   = "received_gift"
	TemplateOneRefToGift   = "one_ref_to_gift"
)

// BroadcastStatus is a broadcast lifecycle state. The only transition is
// scheduled -> sent.
type BroadcastStatus string

const (
	BroadcastScheduled BroadcastStatus = "scheduled"
	BroadcastSent      BroadcastStatus = "sent"
)

// Broadcast is a templated message scheduled for every user carrying a tag.
type Broadcast struct {
	ID            int64
	TemplateID    int64
	Tag           string
	ScheduledTime time.Time
	Status        BroadcastStatus
}

// DueBroadcast is a scheduled broadcast joined with its template content.
type DueBroadcast struct {
	Broadcast
	Content string
	Media   Media
}

// Autoresponder is a message sent once per user after Delay has passed since the
// user joined.
type Autoresponder struct {
	ID      int64
	Content string
	Delay   time.Duration
	Media   Media
}

// LeadMagnet is the reward unlocked by reaching the referral threshold.
type LeadMagnet struct {
	ID          int64
	Name        string
	Description string
	ImageID     string
}

// Image returns the lead magnet picture as a media reference.
func (lm LeadMagnet) Image() Media {
	if lm.ImageID == "" {
		return Media{}
	}
	return Media{Kind: MediaKindPhoto, FileID: lm.ImageID}
}

// MessageKind labels outbound messages in the message log.
type MessageKind string

const (
	MessageKindWelcome       MessageKind = "welcome"
	MessageKindBroadcast     MessageKind = "broadcast"
	MessageKindAutoresponder MessageKind = "autoresponder"
	MessageKindGift          MessageKind = "gift"
	MessageKindService       MessageKind = "service"
)
