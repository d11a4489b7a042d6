package sink

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/seaglider-ops/commwatch/internal/subs"
)

// emailSink delivers through the configured SMTP forwarder. Port 25 speaks
// plain SMTP; any other port upgrades with STARTTLS and authenticates when
// credentials are configured.
type emailSink struct {
	cfg     SMTPConfig
	timeout time.Duration
	logger  *slog.Logger
}

func newEmail(cfg SMTPConfig, timeout time.Duration, logger *slog.Logger) *emailSink {
	return &emailSink{
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "sink.email")),
	}
}

func (e *emailSink) Name() string { return "email" }

// Send composes and submits one message. The "address" attribute names the
// recipient(s); a "format" attribute of "html" adds an HTML alternative
// part, anything else stays plain.
func (e *emailSink) Send(ctx context.Context, ep subs.Endpoint, msg Message) error {
	rcpts := ep.StrList("address")
	if len(rcpts) == 0 {
		return fmt.Errorf("%w: email address", ErrBadEndpoint)
	}

	body := e.compose(rcpts, msg, wantsHTML(ep))

	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprintf("%d", e.cfg.Port))
	conn, err := (&net.Dialer{Timeout: e.timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial forwarder %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(e.timeout))

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake with %s: %w", addr, err)
	}
	defer c.Close()

	if e.cfg.Port != 25 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
				return fmt.Errorf("starttls with %s: %w", addr, err)
			}
		}
		if e.cfg.User != "" {
			auth := smtp.PlainAuth("", e.cfg.User, e.cfg.Pass, e.cfg.Host)
			if err := c.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth as %s: %w", e.cfg.User, err)
			}
		}
	}

	if err := c.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("mail from %s: %w", e.cfg.From, err)
	}
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			return fmt.Errorf("rcpt %s: %w", r, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// wantsHTML reads the endpoint's "format" attribute: "html" or "plain".
func wantsHTML(ep subs.Endpoint) bool {
	return strings.EqualFold(ep.Str("format"), "html")
}

const altBoundary = "=_commwatch_alt"

// compose renders the RFC 5322 message. The HTML alternative wraps each body
// line in a block element so mail clients keep the line structure.
func (e *emailSink) compose(rcpts []string, msg Message, wantHTML bool) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(rcpts, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")

	if !wantHTML {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Body)
		b.WriteString("\r\n")
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString("<html><body>\r\n")
	for _, line := range strings.Split(msg.Body, "\n") {
		fmt.Fprintf(&b, "<div>%s</div>\r\n", html.EscapeString(line))
	}
	b.WriteString("</body></html>\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", altBoundary)
	return []byte(b.String())
}
