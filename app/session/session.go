// Package session keeps per-chat wizard state between updates.
package session

import (
	"context"
	"time"
)

// Step is the wizard state of a chat.
type Step string

const (
	StepIdle                        Step = ""
	StepEditingTemplate             Step = "editing_template"
	StepEditingTemplateFile         Step = "editing_template_file"
	StepSettingSubscribers          Step = "setting_subscribers"
	StepAddingTemplate              Step = "adding_template"
	StepAddingTemplateContent       Step = "adding_template_content"
	StepAddingTemplateFile          Step = "adding_template_file"
	StepSchedulingBroadcast         Step = "scheduling_broadcast"
	StepAddingAutoresponder         Step = "adding_autoresponder"
	StepAddingAutoresponderDelay    Step = "adding_autoresponder_delay"
	StepAddingAutoresponderMedia    Step = "adding_autoresponder_media"
	StepAddingLeadMagnetName        Step = "adding_lead_magnet_name"
	StepAddingLeadMagnetDescription Step = "adding_lead_magnet_description"
	StepAddingLeadMagnetImage       Step = "adding_lead_magnet_image"
)

// TemplateDraft is collected by the add and edit template wizards.
type TemplateDraft struct {
	ID      int64  `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content,omitempty"`
}

// BroadcastDraft is collected by the scheduled broadcast wizard.
type BroadcastDraft struct {
	Tag        string `json:"tag"`
	TemplateID int64  `json:"template_id"`
}

// AutoresponderDraft is collected by the autoresponder wizard. A non-zero ID
// means an existing autoresponder is being edited.
type AutoresponderDraft struct {
	ID      int64         `json:"id,omitempty"`
	Content string        `json:"content,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
}

// LeadMagnetDraft is collected by the lead magnet wizard. A non-zero ID means
// an existing lead magnet is being edited.
type LeadMagnetDraft struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Session is the state of one chat. Only the draft of the active wizard is set.
type Session struct {
	Step Step `json:"step"`

	Template      *TemplateDraft      `json:"template,omitempty"`
	Broadcast     *BroadcastDraft     `json:"broadcast,omitempty"`
	Autoresponder *AutoresponderDraft `json:"autoresponder,omitempty"`
	LeadMagnet    *LeadMagnetDraft    `json:"lead_magnet,omitempty"`
}

// IsIdle reports whether no wizard is active.
func (s Session) IsIdle() bool {
	return s.Step == StepIdle
}

// Store keeps sessions keyed by chat id. A missing session reads as idle.
type Store interface {
	Get(ctx context.Context, chatID int64) (Session, error)
	Set(ctx context.Context, chatID int64, s Session) error
	Clear(ctx context.Context, chatID int64) error
}
