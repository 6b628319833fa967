package services

import "log/slog"

// Mailer sends invitation emails. Sending is fire and forget: the inviting
// request must never fail because an email could not be delivered.
type Mailer interface {
	SendInvitation(email, teamName, inviteLink string) error
}

// LogMailer writes invitations to the log instead of sending them. It is the
// default when no mail transport is configured.
type LogMailer struct{}

func (m LogMailer) SendInvitation(email, teamName, inviteLink string) error {
	slog.Info("invitation email", "email", email, "team", teamName, "link", inviteLink)
	return nil
}
