package mailer

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
)

// ResetLink builds the frontend URL that embeds the plaintext ticket.
func ResetLink(frontendURL, ticket string) string {
	return strings.TrimRight(frontendURL, "/") + "/reset-password/" + url.PathEscape(ticket)
}

func PasswordResetMessage(to, fullName, link string, ttl time.Duration) Message {
	name := fullName
	if name == "" {
		name = "there"
	}
	mins := int(ttl.Minutes())

	text := fmt.Sprintf("Hi %s,\n\n"+
		"We received a request to reset your CampusMart password.\n"+
		"Open the link below to choose a new one:\n\n%s\n\n"+
		"The link expires in %d minutes. If you did not ask for a reset, you can ignore this email.\n",
		name, link, mins)

	body := fmt.Sprintf("<p>Hi %s,</p>"+
		"<p>We received a request to reset your CampusMart password.</p>"+
		"<p>Click <a href='%s'>here</a> to choose a new one.</p>"+
		"<p>This link will expire in %d minutes. If you did not ask for a reset, you can ignore this email.</p>",
		html.EscapeString(name), html.EscapeString(link), mins)

	return Message{
		To:       to,
		Subject:  "Reset your CampusMart password",
		HTMLBody: body,
		TextBody: text,
	}
}
