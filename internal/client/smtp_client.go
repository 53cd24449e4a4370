package client

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTPSettings carry the credentials and sender identity shared by all
// SMTP gateway configurations.
type SMTPSettings struct {
	Username string
	Password string
	From     string
}

// SMTPClient delivers the EMAIL channel over plain SMTP. The gateway
// configuration's endpoint is the host:port of the relay.
type SMTPClient struct {
	addr     string
	settings SMTPSettings

	// sendMail is swappable in tests; net/smtp offers no transport hook.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPClient(addr string, settings SMTPSettings) *SMTPClient {
	return &SMTPClient{
		addr:     addr,
		settings: settings,
		sendMail: smtp.SendMail,
	}
}

func (c *SMTPClient) Send(ctx context.Context, address, subject, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.addr == "" {
		return "", fmt.Errorf("smtp relay address not configured")
	}
	from := c.settings.From
	if from == "" {
		from = c.settings.Username
	}
	if from == "" {
		return "", fmt.Errorf("smtp sender not configured")
	}

	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", address),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	data := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	var auth smtp.Auth
	if c.settings.Username != "" || c.settings.Password != "" {
		host := c.addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", c.settings.Username, c.settings.Password, host)
	}

	// net/smtp has no context support; run the delivery aside and honor
	// the caller's deadline so a hung relay cannot pin a pool worker.
	done := make(chan error, 1)
	go func() {
		done <- c.sendMail(c.addr, auth, from, []string{address}, []byte(data))
	}()
	select {
	case err := <-done:
		if err != nil {
			return "", err
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	// SMTP has no per-message receipt id; mint one so email outcomes can
	// be cached the same way as SMS outcomes.
	return uuid.NewString(), nil
}
