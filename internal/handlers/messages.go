package handlers

import (
	"fmt"
	"strings"

	"jobalertbot/internal/alert"
)

// Reply text lives here so the state machines stay readable.

const (
	msgStart = "Hi! I can watch job boards for you.\n" +
		"/create_alert — set up a recurring job alert\n" +
		"/search — run a one-off search\n" +
		"/my_alerts — list your alerts\n" +
		"/help — all commands"

	msgHelp = "Commands:\n" +
		"/create_alert — create a recurring job alert\n" +
		"/edit_alert — change an existing alert\n" +
		"/delete_alert — remove an alert\n" +
		"/my_alerts — list your alerts\n" +
		"/search — run a one-off search now\n" +
		"/cancel — abort the current operation"

	msgCreateIntro = "Describe the job you want alerts for, e.g.\n" +
		"\"Senior Go Engineer in Berlin, remote, daily\""

	msgSearchIntro = "Describe the job to search for right now, e.g.\n" +
		"\"Data Engineer in Amsterdam, remote\""

	msgEditCollect = "Describe the new criteria for the selected alert(s)."

	msgCancelled   = "Cancelled. Anything else? /help"
	msgNothingToDo = "Nothing in progress. /help"

	msgUnknownCommand = "Unknown command. Try /help"
	msgIdleFreeText   = "I didn't catch that. Use /create_alert to set up an alert, or /help."

	msgConfirmRetry = "Okay — describe it again, I'm listening."

	msgCommitFailed = "Something went wrong saving that — nothing was changed. " +
		"Please re-issue the command to try again."

	msgNoAlerts = "You have no alerts yet. /create_alert sets one up."
)

// structuredFallback is the escalation prompt after repeated parse
// failures: ask for explicit fields instead of free prose.
func structuredFallback() string {
	return "Let's do it field by field. Send one line in this exact shape:\n" +
		"<job title>, <location>, remote|onsite, " + strings.Join(alert.KnownPeriods(), "|")
}

func confirmCreate(c alert.SearchCriteria) string {
	return fmt.Sprintf("Create this alert?\n%s\n\nyes / no", describe(c))
}

func confirmSearch(c alert.SearchCriteria) string {
	return fmt.Sprintf("Run this search now?\n%s\n\nyes / no", describe(c))
}

func confirmEdit(c alert.SearchCriteria, ids []string) string {
	return fmt.Sprintf("Apply to %s?\n%s\n\nyes / no", strings.Join(ids, ", "), describe(c))
}

func confirmDelete(ids []string) string {
	return fmt.Sprintf("Delete alert(s) %s? This cannot be undone.\n\nyes / no", strings.Join(ids, ", "))
}

func describe(c alert.SearchCriteria) string {
	period := c.Period
	if period == "" {
		period = alert.DefaultPeriod
	}
	return fmt.Sprintf("• %s\n• every %s", c.Summary(), period)
}

func parseFailure(errMsg string, missing []string) string {
	if errMsg == "" {
		errMsg = "I couldn't understand that description."
	}
	if len(missing) > 0 {
		return fmt.Sprintf("%s\nMissing: %s", errMsg, strings.Join(missing, ", "))
	}
	return errMsg
}

func listAlerts(alerts []alert.Alert) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Your alerts (%d):\n", len(alerts)))
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf("%s — %s\n", a.ID, a.Criteria.Summary()))
	}
	b.WriteString("\nSend an id (or several, comma separated) for details, or /cancel.")
	return b.String()
}

func invalidIDs(bad []string) string {
	return fmt.Sprintf("These ids are not yours or don't exist: %s", strings.Join(bad, ", "))
}
