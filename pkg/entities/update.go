package entities

// Sender is the platform user behind an inbound update.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Update is an inbound event: either a message or a button press.
type Update struct {
	ChatID int64
	From   Sender

	// Message fields
	Text        string
	Command     string
	CommandArgs string
	Media       *Attachment

	// Callback fields, nil for messages
	Callback *Callback
}

// Attachment is media received from a user together with its declared size.
type Attachment struct {
	Media
	Size int64
}

// Callback is an inline button press.
type Callback struct {
	ID   string
	Data string
}

// IsCallback reports whether the update is a button press.
func (u Update) IsCallback() bool {
	return u.Callback != nil
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, one button per row.
type Keyboard []Button
