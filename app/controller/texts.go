package controller

const (
	textWelcome         = "Welcome to our bot!"
	textStartFirst      = "Please send /start first."
	textUseHelp         = "Use /help to see available commands."
	textNotAdmin        = "This action is available to administrators only."
	textCancelled       = "Cancelled."
	textNothingToCancel = "There is nothing to cancel."
	textError           = "Something went wrong, please try again later."

	textHelp = "Available commands:\n" +
		"/start - start the bot\n" +
		"/help - show this help\n" +
		"/invite - get your invite link\n" +
		"/gift - get your gift\n" +
		"/cancel - cancel the current action"

	textHelpAdmin = "\n/analytics - show analytics"

	textChooseLeadMagnet     = "Choose a lead magnet:"
	textAllLeadMagnetsTaken  = "You have already received all lead magnets."
	textLeadMagnetNotFound   = "Error: lead magnet not found."
	textLeadMagnetPicked     = "You picked: %s. Invite %d new users to receive it."
	textPickLeadMagnetFirst  = "Pick a lead magnet first."
	textInviteLink           = "Your invite link: %s"
	textNeedMoreReferrals    = "You need to invite %d more users to receive the gift."
	textAlreadyReceivedGift  = "You have already received your gift."
	textFileTooLarge         = "The file exceeds 50 MB and cannot be uploaded."
	textQuotaExceeded        = "Your total uploads exceed 500 MB. The file cannot be uploaded."
	textMediaPrompt          = "Send a photo, video or audio, or type 'no' to skip:"
	textImagePrompt          = "Send an image, or type 'no' to skip:"
	textSendPhoto            = "Please send a photo, or type 'no' to skip."
	textEmptyAnswer          = "The answer cannot be empty, please try again."
	textAdminPanel           = "Welcome to the admin panel! Use the buttons below:"
	textEnterThreshold       = "Enter the number of referrals required for the gift:"
	textInvalidNumber        = "Please enter a valid positive number."
	textThresholdSet         = "Referrals required for the gift set to %d."
	textMessageManager       = "Message manager"
	textTemplateCurrent      = "Current text:\n\n%s\n\nSend the new text for '%s':"
	textTemplateNew          = "Template '%s' is not set yet. Send its text:"
	textTemplateUpdated      = "Template '%s' updated."
	textTemplateType         = "Enter the type of the new template:"
	textTemplateExists       = "Template '%s' already exists, enter another type:"
	textTemplateContent      = "Enter the text of the new template '%s':"
	textTemplateAdded        = "Template '%s' added."
	textTemplateNotFound     = "Error: template not found."
	textNoSubscribers        = "The subscriber list is empty."
	textSubscribers          = "Subscribers:\n\n%s"
	textMoreSubscribers      = "\n\n...and %d more."
	textExportOffer          = "You can export the list to Excel:"
	textChooseTag            = "Choose a tag for the broadcast:"
	textNoTags               = "There are no tags yet."
	textChooseTemplate       = "Choose a template for the broadcast:"
	textNoTemplates          = "There are no templates yet."
	textInstantDone          = "Broadcast sent: %d delivered, %d failed."
	textEnterScheduleTime    = "Enter the send time (YYYY-MM-DD HH:MM):"
	textInvalidTime          = "Please enter the time as YYYY-MM-DD HH:MM."
	textBroadcastScheduled   = "Broadcast scheduled for %s."
	textAutoresponders       = "Autoresponder manager:"
	textNoAutoresponders     = "The autoresponder list is empty."
	textAutoresponderItem    = "%d: %s (delay: %d h, media: %s)"
	textEnterARContent       = "Enter the autoresponder text:"
	textEnterARDelay         = "Enter the delay in hours after joining:"
	textInvalidDelay         = "Please enter the delay as a whole number of hours."
	textAutoresponderAdded   = "Autoresponder added."
	textAutoresponderUpdated = "Autoresponder updated."
	textAutoresponderDeleted = "Autoresponder deleted."
	textAutoresponderMissing = "Error: autoresponder not found."
	textLeadMagnets          = "Lead magnet manager:"
	textNoLeadMagnets        = "The lead magnet list is empty."
	textLeadMagnetItem       = "%d: %s - %s"
	textEnterLMName          = "Enter the lead magnet name:"
	textEnterLMDescription   = "Enter the lead magnet description:"
	textLeadMagnetAdded      = "Lead magnet added."
	textLeadMagnetUpdated    = "Lead magnet updated."
	textLeadMagnetDeleted    = "Lead magnet deleted."
)

const (
	btnInviteLink         = "🔗 Invite link"
	btnGetGift            = "🎁 Get gift"
	btnAdminPanel         = "⚙️ Admin panel"
	btnSetSubscribers     = "🔢 Referrals for gift"
	btnMessageManager     = "📝 Message manager"
	btnSubscribers        = "📋 Subscribers"
	btnInstantBroadcast   = "📨 Instant broadcast"
	btnScheduledBroadcast = "⏳ Scheduled broadcast"
	btnAutoresponders     = "🕰️ Autoresponders"
	btnLeadMagnets        = "🎁 Lead magnets"
	btnAnalytics          = "📊 Analytics"
	btnExport             = "Export to Excel"
	btnAddTemplate        = "Add template"
	btnAdd                = "Add"
	btnList               = "List"
	btnEdit               = "Edit"
	btnDelete             = "Delete"
	btnBack               = "Back"
)
