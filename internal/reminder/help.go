package reminder

import "strings"

var helpLines = []string{
	"Reminder Bot",
	"",
	"/set_timezone <timezone>",
	"Set the guild time zone (e.g. UTC, Europe/Rome).",
	"",
	"/create_reminder <channel|here> <HH:MM> <message> [--times N] [--days 1,3] [--tz Zone]",
	"Create a reminder. --times is how many times to send it (-1 or omitted = forever),",
	"--days are weekdays 1-7 (e.g. 1,3 = Monday and Wednesday).",
	"",
	"/list_reminders",
	"Show the saved reminders.",
	"",
	"/cancel_reminder <n>",
	"Cancel the reminder with that number (from the list).",
	"",
	"/cancel_all_reminders",
	"Ask for confirmation, then cancel every reminder.",
	"",
	"Tip: use UTC as the time zone if the bot runs on a server abroad.",
}

// Help returns the static command reference.
func Help() string { return strings.Join(helpLines, "\n") }
