package mail

import (
	"context"

	"github.com/sirupsen/logrus"

	"zen-accounts/internal/domain"
)

// LogSender writes reset links to the log instead of delivering them.
// Meant for local development where no SMTP relay is available.
type LogSender struct {
	logger *logrus.Logger
}

func NewLogSender(logger *logrus.Logger) *LogSender {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendResetPassword(_ context.Context, user domain.UserRecord, resetURL string) error {
	if user.Email == "" {
		return ErrNoRecipient
	}
	s.logger.WithFields(logrus.Fields{
		"component": "mail",
		"to":        user.Email,
		"reset_url": resetURL,
	}).Info("password reset email (log driver, not delivered)")
	return nil
}

var _ Sender = (*LogSender)(nil)
