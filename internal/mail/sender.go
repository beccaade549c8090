// Package mail delivers HTML email through SMTP or the process log.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/computer-anything/blog-backend/internal/config"
)

// ErrDisabled is returned by the disabled sender.
var ErrDisabled = errors.New("mail: delivery disabled")

// Sender delivers one HTML message.
type Sender interface {
	Send(ctx context.Context, to []string, subject, html string) error
}

// NewSender builds the sender selected by cfg.Mode.
func NewSender(cfg config.MailConfig) (Sender, error) {
	switch cfg.Mode {
	case config.MailModeSMTP:
		return NewSMTPSender(cfg)
	case config.MailModeDisabled:
		return DisabledSender{}, nil
	default:
		return LogSender{}, nil
	}
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

// Send logs recipients, subject and the action links of the body. The rest of
// the body is not logged.
func (LogSender) Send(_ context.Context, to []string, subject, body string) error {
	log.WithFields(log.Fields{
		"to":      strings.Join(to, ","),
		"subject": subject,
		"links":   actionLinks(body),
	}).Info("mail: delivery skipped (log mode)")
	return nil
}

// actionLinks returns the href of every anchor in body.
func actionLinks(body string) []string {
	var links []string
	z := html.NewTokenizer(strings.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					links = append(links, string(val))
				}
			}
		}
	}
}

// DisabledSender rejects every message.
type DisabledSender struct{}

// Send always returns ErrDisabled.
func (DisabledSender) Send(context.Context, []string, string, string) error {
	return ErrDisabled
}

// SMTPSender delivers through a pooled SMTP connection.
type SMTPSender struct {
	from    string
	timeout time.Duration
	addr    string
	conns   int
	auth    smtp.Auth
	tlsCfg  *tls.Config

	mu   sync.Mutex
	pool *email.Pool
}

// NewSMTPSender connects a pool to the configured server.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		return nil, errors.New("mail: missing smtp host")
	}
	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	s := &SMTPSender{
		from:    cfg.From,
		timeout: cfg.SendTimeout,
		addr:    net.JoinHostPort(host, strconv.Itoa(cfg.SMTPPort)),
		conns:   cfg.Connections,
		auth:    auth,
		tlsCfg:  &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
	pool, errPool := s.connect()
	if errPool != nil {
		return nil, errPool
	}
	s.pool = pool
	return s, nil
}

func (s *SMTPSender) connect() (*email.Pool, error) {
	pool, err := email.NewPool(s.addr, s.conns, s.auth, s.tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("mail: connect %s: %w", s.addr, err)
	}
	return pool, nil
}

// Send delivers the message, reconnecting the pool once after a failure.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return errors.New("mail: no recipients")
	}
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	msg := &email.Email{
		To:      to,
		From:    s.from,
		Subject: subject,
		HTML:    []byte(html),
		Headers: textproto.MIMEHeader{},
	}

	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	errSend := pool.Send(msg, timeout)
	if errSend == nil {
		return nil
	}
	log.WithError(errSend).Warn("mail: send failed, reconnecting pool")
	if next, errReconnect := s.connect(); errReconnect == nil {
		s.mu.Lock()
		old := s.pool
		s.pool = next
		s.mu.Unlock()
		old.Close()
	} else {
		log.WithError(errReconnect).Error("mail: reconnect failed")
	}
	return fmt.Errorf("mail: send: %w", errSend)
}

// Close releases pooled connections.
func (s *SMTPSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
	}
}
