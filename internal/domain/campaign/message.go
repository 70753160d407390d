package campaign

import (
	"fmt"
	"html"
	"strings"
)

// Message is the email-shaped payload handed to the notification gateway.
type Message struct {
	To      string
	Subject string
	HTML    string
	ReplyTo string
}

// ComposeInvitation builds the invitation message sent during a publish
// campaign.
func ComposeInvitation(surveyName, campaignURL, to, replyTo string) Message {
	name := html.EscapeString(strings.TrimSpace(surveyName))
	var b strings.Builder
	fmt.Fprintf(&b, "<p>You have been invited to take part in the survey <strong>%s</strong>.</p>", name)
	fmt.Fprintf(&b, `<p><a href="%s">Open the survey</a></p>`, html.EscapeString(campaignURL))
	b.WriteString("<p>This link is personal; please do not forward it.</p>")

	return Message{
		To:      to,
		Subject: fmt.Sprintf("You are invited: %s", strings.TrimSpace(surveyName)),
		HTML:    b.String(),
		ReplyTo: replyTo,
	}
}

// ComposeReminder builds the reminder message for participants who have not
// completed the survey yet.
func ComposeReminder(surveyName, campaignURL, to, replyTo string) Message {
	name := html.EscapeString(strings.TrimSpace(surveyName))
	var b strings.Builder
	fmt.Fprintf(&b, "<p>This is a friendly reminder to complete the survey <strong>%s</strong>.</p>", name)
	fmt.Fprintf(&b, `<p><a href="%s">Continue the survey</a></p>`, html.EscapeString(campaignURL))

	return Message{
		To:      to,
		Subject: fmt.Sprintf("Reminder: %s", strings.TrimSpace(surveyName)),
		HTML:    b.String(),
		ReplyTo: replyTo,
	}
}
