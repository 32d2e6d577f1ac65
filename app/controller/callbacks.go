package controller

import (
	"context"
	"strconv"
	"strings"
)

// Callback data is an action optionally followed by arguments, joined with
// callbackSep. Handlers are chosen by action and argument count.
const callbackSep = "|"

const (
	actInviteLink          = "send_invite_link"
	actGetGift             = "get_gift"
	actSelectLeadMagnet    = "select_lead_magnet"
	actAdminPanel          = "admin_panel"
	actSetSubscribers      = "set_subscribers_for_gift"
	actMessageManager      = "message_manager"
	actEditTemplate        = "edit_template"
	actAddTemplate         = "add_template"
	actSubscribers         = "show_subscribers_list"
	actExport              = "export_to_excel"
	actInstantBroadcast    = "instant_broadcast"
	actScheduledBroadcast  = "scheduled_broadcast"
	actAutoresponders      = "manage_autoresponders"
	actAddAutoresponder    = "add_autoresponder"
	actListAutoresponders  = "list_autoresponders"
	actEditAutoresponder   = "edit_autoresponder"
	actDeleteAutoresponder = "delete_autoresponder"
	actLeadMagnets         = "manage_lead_magnets"
	actAddLeadMagnet       = "add_lead_magnet"
	actListLeadMagnets     = "list_lead_magnets"
	actEditLeadMagnet      = "edit_lead_magnet"
	actDeleteLeadMagnet    = "delete_lead_magnet"
	actAnalytics           = "show_analytics"
)

type callback struct {
	action string
	args   []string
}

func encode(action string, args ...string) string {
	if len(args) == 0 {
		return action
	}
	return action + callbackSep + strings.Join(args, callbackSep)
}

func encodeID(action string, id int64) string {
	return encode(action, strconv.FormatInt(id, 10))
}

func decode(data string) callback {
	parts := strings.Split(data, callbackSep)
	return callback{action: parts[0], args: parts[1:]}
}

func (c callback) key() string {
	return routeKey(c.action, len(c.args))
}

func (c callback) id(i int) (int64, error) {
	return strconv.ParseInt(c.args[i], 10, 64)
}

func routeKey(action string, argc int) string {
	return action + "/" + strconv.Itoa(argc)
}

type callbackFunc func(h *Handler, ctx context.Context, req *request) error

type route struct {
	fn    callbackFunc
	admin bool
}

var callbackRoutes = map[string]route{
	routeKey(actInviteLink, 0):       {fn: (*Handler).sendInviteLink},
	routeKey(actGetGift, 0):          {fn: (*Handler).claimGift},
	routeKey(actSelectLeadMagnet, 1): {fn: (*Handler).selectLeadMagnet},

	routeKey(actAdminPanel, 0):         {fn: (*Handler).showAdminPanel, admin: true},
	routeKey(actSetSubscribers, 0):     {fn: (*Handler).askThreshold, admin: true},
	routeKey(actMessageManager, 0):     {fn: (*Handler).showMessageManager, admin: true},
	routeKey(actEditTemplate, 1):       {fn: (*Handler).editTemplate, admin: true},
	routeKey(actAddTemplate, 0):        {fn: (*Handler).addTemplate, admin: true},
	routeKey(actSubscribers, 0):        {fn: (*Handler).showSubscribers, admin: true},
	routeKey(actExport, 0):             {fn: (*Handler).exportSubscribers, admin: true},
	routeKey(actInstantBroadcast, 0):   {fn: (*Handler).chooseBroadcastTag, admin: true},
	routeKey(actInstantBroadcast, 1):   {fn: (*Handler).chooseBroadcastTemplate, admin: true},
	routeKey(actInstantBroadcast, 2):   {fn: (*Handler).sendInstantBroadcast, admin: true},
	routeKey(actScheduledBroadcast, 0): {fn: (*Handler).chooseBroadcastTag, admin: true},
	routeKey(actScheduledBroadcast, 1): {fn: (*Handler).chooseBroadcastTemplate, admin: true},
	routeKey(actScheduledBroadcast, 2): {fn: (*Handler).askScheduleTime, admin: true},

	routeKey(actAutoresponders, 0):      {fn: (*Handler).showAutoresponderManager, admin: true},
	routeKey(actAddAutoresponder, 0):    {fn: (*Handler).addAutoresponder, admin: true},
	routeKey(actListAutoresponders, 0):  {fn: (*Handler).listAutoresponders, admin: true},
	routeKey(actEditAutoresponder, 1):   {fn: (*Handler).editAutoresponder, admin: true},
	routeKey(actDeleteAutoresponder, 1): {fn: (*Handler).deleteAutoresponder, admin: true},

	routeKey(actLeadMagnets, 0):      {fn: (*Handler).showLeadMagnetManager, admin: true},
	routeKey(actAddLeadMagnet, 0):    {fn: (*Handler).addLeadMagnet, admin: true},
	routeKey(actListLeadMagnets, 0):  {fn: (*Handler).listLeadMagnets, admin: true},
	routeKey(actEditLeadMagnet, 1):   {fn: (*Handler).editLeadMagnet, admin: true},
	routeKey(actDeleteLeadMagnet, 1): {fn: (*Handler).deleteLeadMagnet, admin: true},

	routeKey(actAnalytics, 0): {fn: (*Handler).showAnalytics, admin: true},
}
