package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/membership-backend/internal/config"
)

// Deliverer hands one email to its final transport.
type Deliverer interface {
	Deliver(ctx context.Context, ev EmailRequestedEvent) error
}

// NewDeliverer picks SMTP when a host is configured and the outbox file
// otherwise.
func NewDeliverer(cfg config.MailConfig) Deliverer {
	if cfg.SMTPHost == "" {
		return &OutboxDeliverer{Path: cfg.OutboxPath}
	}
	return &SMTPDeliverer{
		Addr: net.JoinHostPort(cfg.SMTPHost, cfg.SMTPPort),
		Host: cfg.SMTPHost,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.From,
		send: smtp.SendMail,
	}
}

// SMTPDeliverer sends mail through a relay.
type SMTPDeliverer struct {
	Addr string
	Host string
	User string
	Pass string
	From string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (d *SMTPDeliverer) Deliver(_ context.Context, ev EmailRequestedEvent) error {
	msg, err := buildMessage(d.From, ev)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if d.User != "" {
		auth = smtp.PlainAuth("", d.User, d.Pass, d.Host)
	}
	if err := d.send(d.Addr, auth, d.From, []string{ev.To}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// buildMessage renders a multipart/alternative message, or plain text when
// there is no HTML body.
func buildMessage(from string, ev EmailRequestedEvent) ([]byte, error) {
	if strings.ContainsAny(ev.To, "\r\n") || strings.ContainsAny(ev.Subject, "\r\n") {
		return nil, fmt.Errorf("header injection in email %s", ev.ID)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n", from, ev.To, ev.Subject)
	if ev.ID != "" {
		fmt.Fprintf(&buf, "Message-ID: <%s@membership>\r\n", ev.ID)
	}
	if ev.HTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(ev.Text)
		return buf.Bytes(), nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", ev.Text},
		{"text/html; charset=UTF-8", ev.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// OutboxDeliverer appends each email as one JSON line to Path.  It stands
// in for SMTP in development.
type OutboxDeliverer struct {
	Path string
	mu   sync.Mutex
}

type outboxLine struct {
	DeliveredAt time.Time `json:"delivered_at"`
	EmailRequestedEvent
}

func (d *OutboxDeliverer) Deliver(_ context.Context, ev EmailRequestedEvent) error {
	line, err := json.Marshal(outboxLine{DeliveredAt: time.Now().UTC(), EmailRequestedEvent: ev})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir outbox: %w", err)
	}
	f, err := os.OpenFile(d.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}
