// Package notify implements the outbound Notifier port named in spec
// Design Notes: "SMTP is stubbed in the source; a production
// implementation must choose a notification transport; the spec
// requires only that the port is honoured." It provides an SMTP
// transport for production and a log-only stub for tests and
// deployments with no configured mail relay, both satisfying
// core.Notifier.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/icao-pkd/trustdir/log"
)

// SMTPConfig names the mail relay an SMTPNotifier sends through.
type SMTPConfig struct {
	Server       string
	Port         string
	Username     string
	Password     string
	From         string
	To           []string
}

// SMTPNotifier sends NOTIFY_EMAIL-bound messages (spec §6 config key)
// over plain SMTP with PLAIN auth.
type SMTPNotifier struct {
	cfg SMTPConfig
	log log.Logger
}

// NewSMTPNotifier constructs an SMTPNotifier.
func NewSMTPNotifier(cfg SMTPConfig, logger log.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: logger}
}

// Notify sends subject/body as a plain-text email to every configured
// recipient. A relay error is a NetworkError at the caller's
// discretion; this method just returns it, it does not retry —
// retrying belongs to the caller's schedule (e.g. portalsync's own
// bounded backoff wraps the portal fetch, not the notification send).
func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", n.cfg.Server, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Server)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.cfg.From, strings.Join(n.cfg.To, ", "), subject, body)

	if err := smtp.SendMail(addr, auth, n.cfg.From, n.cfg.To, []byte(msg)); err != nil {
		return fmt.Errorf("smtp notifier: %w", err)
	}
	n.log.Info(fmt.Sprintf("notification sent: %s", subject))
	return nil
}

// LogNotifier satisfies core.Notifier by writing the notification to
// the audit log instead of sending it anywhere — the default transport
// when no SMTP server (NOTIFY_SMTP_SERVER) is configured.
type LogNotifier struct {
	log log.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

// Notify logs subject and body at Notice level and always succeeds.
func (n *LogNotifier) Notify(ctx context.Context, subject, body string) error {
	n.log.WithValues("subject", subject).Notice(body)
	return nil
}
