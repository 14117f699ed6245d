package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/AdolfoEscobar473/hospital/internal/config"
)

// Notifier delivers a temporary password to the account owner out-of-band.
type Notifier interface {
	SendTemporaryPassword(ctx context.Context, a Account, tempPassword string) error
}

var ErrNoRecipient = errors.New("notifier: account has no email")

// LogNotifier records that a delivery would happen. It never logs the password.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) SendTemporaryPassword(ctx context.Context, a Account, _ string) error {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "temporary password issued; no mail transport configured", "user_id", a.ID)
	return nil
}

// SMTPNotifier sends the temporary password by email.
type SMTPNotifier struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	n := &SMTPNotifier{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host: cfg.Host,
		from: cfg.From,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n
}

func (n *SMTPNotifier) SendTemporaryPassword(ctx context.Context, a Account, tempPassword string) error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrNoRecipient
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", a.Email)
	b.WriteString("Subject: Restablecimiento de contrasena\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Hola %s,\r\n\r\n", a.Name)
	fmt.Fprintf(&b, "Su contrasena temporal es: %s\r\n", tempPassword)
	b.WriteString("Debera cambiarla al iniciar sesion.\r\n")

	if err := n.send(n.addr, n.auth, n.from, []string{a.Email}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
