package usage

// Bundle identifiers of host applications whose purpose is known.
var (
	ideApps = map[string]struct{}{
		"com.apple.dt.Xcode":                {},
		"com.microsoft.VSCode":              {},
		"com.panic.Code-iOS":                {},
		"com.textasticapp.textastic-iphone": {},
		"com.omz-software.Pythonista3":      {},
		"app.runestone.Runestone":           {},
		"com.codeapp.Code-App":              {},
		"com.serverbrowser.CodeEdit":        {},
		"com.apple.Playgrounds":             {},
	}

	communicationApps = map[string]struct{}{
		"com.apple.MobileSMS":    {},
		"com.apple.mobilemail":   {},
		"com.slack.Slack":        {},
		"com.microsoft.teams":    {},
		"com.whatsapp.WhatsApp":  {},
		"org.telegram.Telegram":  {},
		"com.facebook.Messenger": {},
		"com.atebits.Tweetie2":   {},
		"com.burbn.instagram":    {},
		"com.linkedin.LinkedIn":  {},
		"com.discord.Discord":    {},
		"com.tinyspeck.chatlyio": {},
	}

	writingApps = map[string]struct{}{
		"com.apple.mobilenotes":        {},
		"com.apple.Pages":              {},
		"com.microsoft.Word":           {},
		"com.google.Docs":              {},
		"md.obsidian":                  {},
		"com.evernote.iPhone.Evernote": {},
		"com.automattic.simplenote":    {},
		"net.shinyfrog.bear-iOS":       {},
		"com.luki.Craft-iOS":           {},
		"com.notion.id":                {},
	}
)

// appContext looks up a bundle identifier. ok is false for empty or unknown ids.
func appContext(appID string) (Context, bool) {
	if appID == "" {
		return "", false
	}
	if _, ok := ideApps[appID]; ok {
		return IDE, true
	}
	if _, ok := communicationApps[appID]; ok {
		return Communication, true
	}
	if _, ok := writingApps[appID]; ok {
		return Writing, true
	}
	return "", false
}
