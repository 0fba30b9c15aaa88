package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"zen-accounts/internal/domain"
)

// ErrNoRecipient is returned when the user has no email address.
var ErrNoRecipient = errors.New("recipient email is required")

// Sender delivers password reset links.
type Sender interface {
	SendResetPassword(ctx context.Context, user domain.UserRecord, resetURL string) error
}

const resetSubject = "Your password reset link"

func resetBody(user domain.UserRecord, resetURL string) string {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = user.Username
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n", name)
	b.WriteString("We received a request to reset the password for your account.\r\n")
	b.WriteString("Open the link below to choose a new password:\r\n\r\n")
	b.WriteString(resetURL)
	b.WriteString("\r\n\r\nThe link can be used once. If you did not ask for this, ignore this email.\r\n")
	return b.String()
}
