package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "👋 I am your quit coach.\n\n" +
		"Log every cigarette with /smoke (add #tags and a note if you like). " +
		"I watch the patterns and send a short nudge when a craving is likely.\n\n" +
		"Set a quit date with /quitdate and tune my notifications in /settings."
	helpText = "Commands:\n" +
		"/smoke [#tag ...] [note] — log a cigarette\n" +
		"/undo — remove the last logged cigarette\n" +
		"/status — today, streak and notification limits\n" +
		"/check — ask for a tip right now\n" +
		"/tip — show the last tip\n" +
		"/tags — list your tags\n" +
		"/quitdate YYYY-MM-DD | off\n" +
		"/reduce <per day> [linear|exponential|logarithmic] | off\n" +
		"/quiet HH-HH, /limit N, /interval 2h\n" +
		"/settings — notification settings"

	statusTitle = "🧾 Your progress:"
	statusFmt   = "• Today: %s\n• Smoke-free streak: %d days\n• 30-day average: %.1f/day\n• Quit date: %s\n" +
		"• Nudges today: %s\n• Quiet hours: %s\n• Min interval: %s\n• Last nudge: %s\n"

	smokeLoggedFmt = "Logged at %s. Today: %s"
	undoneFmt      = "Removed the cigarette logged at %s."
	nothingToUndo  = "Nothing to undo."
	lowRiskFmt     = "Risk looks low right now (%.2f). Keep going 💪"
	noTipYet       = "No tips yet."
	noTagsYet      = "No tags yet. Add one with /smoke #stress"

	quitDateHelp = "Usage: /quitdate 2025-06-01 (or /quitdate off)"
	reduceHelp   = "Usage: /reduce 15 [linear|exponential|logarithmic] (or /reduce off)"
	quietHelp    = "Invalid format. Example: 22-6 or 23:00-07:00"
	limitHelp    = "Enter a number from 0 to 24."
	intervalHelp = "Invalid interval. Examples: 30m, 1h, 1h30m."
	storageError = "Storage error. Please try again later."
)

// mainMenuKeyboard builds the reply keyboard shown under every answer.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/smoke"),
			tgbotapi.NewKeyboardButton("/status"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/check"),
			tgbotapi.NewKeyboardButton("/settings"),
		),
	)
}

// Inline keyboards
func settingsInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌙 Quiet hours", "set_quiet"),
			tgbotapi.NewInlineKeyboardButtonData("🔢 Daily limit", "set_limit"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏲️ Min interval", "set_interval"),
			tgbotapi.NewInlineKeyboardButtonData("📅 Quit date", "set_quitdate"),
		),
	)
}

func quietPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("22:00–06:59", "quiet:22-6"),
			tgbotapi.NewInlineKeyboardButtonData("23:00–07:59", "quiet:23-7"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("00:00–07:59", "quiet:0-7"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "quiet:custom"),
		),
	)
}

func limitPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("1", "limit:1"),
			tgbotapi.NewInlineKeyboardButtonData("2", "limit:2"),
			tgbotapi.NewInlineKeyboardButtonData("3", "limit:3"),
			tgbotapi.NewInlineKeyboardButtonData("5", "limit:5"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 Off", "limit:0"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "limit:custom"),
		),
	)
}

func intervalPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("1h", "interval:1h"),
			tgbotapi.NewInlineKeyboardButtonData("2h", "interval:2h"),
			tgbotapi.NewInlineKeyboardButtonData("3h", "interval:3h"),
			tgbotapi.NewInlineKeyboardButtonData("4h", "interval:4h"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "interval:custom"),
		),
	)
}
