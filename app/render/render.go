// Package render substitutes user data into stored message templates.
package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	e "nuclight.org/referral-tg-bot/pkg/entities"
	"nuclight.org/referral-tg-bot/pkg/logger"
)

type ConfigReader interface {
	GetConfigInt(ctx context.Context, name string, defaultValue int) (int, error)
}

type LeadMagnetReader interface {
	GetLeadMagnet(ctx context.Context, id int64) (e.LeadMagnet, error)
}

// Renderer fills {placeholder} names in templates. Literal braces are written as
// {{ and }}. Rendering never fails: whenever a value cannot be produced the gap
// is logged and the template is returned untouched.
type Renderer struct {
	Log logger.Logger

	// BotUsername is the bot's own handle, used to build invite links
	BotUsername string

	// DefaultRequired is used when required_referrals is not configured
	DefaultRequired int

	Config      ConfigReader
	LeadMagnets LeadMagnetReader
}

// InviteURL is the deep link that credits telegramID as the inviter.
func (r *Renderer) InviteURL(telegramID int64) string {
	return "https://t.me/" + r.BotUsername + "?start=" + strconv.FormatInt(telegramID, 10)
}

// RequiredReferrals reads the referral threshold.
func (r *Renderer) RequiredReferrals(ctx context.Context) (int, error) {
	return r.Config.GetConfigInt(ctx, e.ConfigRequiredReferrals, r.DefaultRequired)
}

func (r *Renderer) Render(ctx context.Context, tpl string, u *e.User) string {
	if u == nil || u.TelegramID == 0 {
		r.Log.Error("missing user data for template substitution", "template", tpl)
		return tpl
	}

	log := r.Log.With("tg_user_id", u.TelegramID)

	segments, err := parse(tpl)
	if err != nil {
		log.Error("parsing template", "template", tpl, "error", err)
		return tpl
	}

	vars := vars{r: r, u: u}

	var sb strings.Builder
	for _, seg := range segments {
		if !seg.placeholder {
			sb.WriteString(seg.text)
			continue
		}

		v, err := vars.value(ctx, seg.text)
		if err != nil {
			log.Error("substituting template variable", "name", seg.text, "error", err)
			return tpl
		}
		sb.WriteString(v)
	}

	return sb.String()
}

type segment struct {
	text        string
	placeholder bool
}

func parse(tpl string) ([]segment, error) {
	var (
		segments []segment
		lit      strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed placeholder at %d", i)
			}
			name := tpl[i+1 : i+1+end]
			if name == "" || strings.ContainsAny(name, "{ \n") {
				return nil, fmt.Errorf("malformed placeholder at %d", i)
			}
			flush()
			segments = append(segments, segment{text: name, placeholder: true})
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return nil, fmt.Errorf("single '}' at %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()

	return segments, nil
}

// vars resolves placeholder values, reading the threshold at most once.
type vars struct {
	r *Renderer
	u *e.User

	required    int
	hasRequired bool
}

func (v *vars) requiredReferrals(ctx context.Context) (int, error) {
	if v.hasRequired {
		return v.required, nil
	}
	n, err := v.r.RequiredReferrals(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading required referrals: %w", err)
	}
	v.required, v.hasRequired = n, true
	return n, nil
}

func (v *vars) value(ctx context.Context, name string) (string, error) {
	u := v.u

	switch name {
	case "first_name":
		return u.FirstName, nil
	case "last_name":
		return u.LastName, nil
	case "username":
		return u.Username, nil
	case "telegram_id":
		return strconv.FormatInt(u.TelegramID, 10), nil
	case "referrals":
		return strconv.Itoa(u.Referrals), nil
	case "required_referrals":
		n, err := v.requiredReferrals(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case "remaining_referrals":
		n, err := v.requiredReferrals(ctx)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(max(0, n-u.Referrals)), nil
	case "invite_url":
		return v.r.InviteURL(u.TelegramID), nil
	case "lead_magnet_name":
		if u.LeadMagnetID == nil || v.r.LeadMagnets == nil {
			return "", nil
		}
		lm, err := v.r.LeadMagnets.GetLeadMagnet(ctx, *u.LeadMagnetID)
		if err != nil {
			return "", fmt.Errorf("reading lead magnet: %w", err)
		}
		return lm.Name, nil
	default:
		return "", fmt.Errorf("unknown placeholder %q", name)
	}
}
