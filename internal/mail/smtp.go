package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"zen-accounts/internal/domain"
)

// SMTPConfig holds the outgoing mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay, upgrading to TLS when offered.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) SendResetPassword(ctx context.Context, user domain.UserRecord, resetURL string) error {
	to := strings.TrimSpace(user.Email)
	if to == "" {
		return ErrNoRecipient
	}

	msg := []byte("From: " + s.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + resetSubject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" + resetBody(user, resetURL))

	return s.send(ctx, to, msg)
}

func (s *SMTPSender) send(ctx context.Context, to string, msg []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return s.ctxErr(ctx, fmt.Errorf("dial smtp %s: %w", addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// unblock any in-flight read/write once the context is done
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return s.ctxErr(ctx, fmt.Errorf("smtp handshake: %w", err))
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return s.ctxErr(ctx, fmt.Errorf("smtp starttls: %w", err))
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return s.ctxErr(ctx, fmt.Errorf("smtp auth: %w", err))
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp mail from: %w", err))
	}
	if err := client.Rcpt(to); err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp rcpt to: %w", err))
	}
	w, err := client.Data()
	if err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp data: %w", err))
	}
	if _, err := w.Write(msg); err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp write body: %w", err))
	}
	if err := w.Close(); err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp finish body: %w", err))
	}
	if err := client.Quit(); err != nil {
		return s.ctxErr(ctx, fmt.Errorf("smtp quit: %w", err))
	}
	return nil
}

// ctxErr prefers the context error when the failure was caused by cancellation or timeout.
func (s *SMTPSender) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	// the connection deadline can fire just before the context timer does
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

var _ Sender = (*SMTPSender)(nil)
