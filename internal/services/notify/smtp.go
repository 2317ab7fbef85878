package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	jwemail "github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/scottbadams/ITWebsiteMonitor/internal/config"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
)

var ErrSMTP = errors.New("smtp failure")

// SMTPSender delivers one rendered message to one recipient. Callers fan out
// over recipients and isolate failures per address.
type SMTPSender struct {
	timeout time.Duration
	log     *zap.Logger
}

var _ notify.EmailSender = (*SMTPSender)(nil)

func NewSMTPSender(cfg config.SMTPCfg, log *zap.Logger) *SMTPSender {
	return &SMTPSender{
		timeout: cfg.Timeout,
		log:     log.With(zap.String("component", "smtp")),
	}
}

func (m *SMTPSender) Send(ctx context.Context, s *notify.SMTPSettings, password, to string, msg *notify.Message) error {
	e := jwemail.NewEmail()
	e.From = s.From
	e.To = []string{to}
	e.Subject = msg.Subject
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var auth smtp.Auth
	if s.Username != nil && *s.Username != "" {
		auth = smtp.PlainAuth("", *s.Username, password, s.Host)
	}
	tlsCfg := &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		switch s.Security {
		case notify.SecuritySSLTLS:
			done <- e.SendWithTLS(addr, auth, tlsCfg)
		case notify.SecurityStartTLS:
			done <- e.SendWithStartTLS(addr, auth, tlsCfg)
		default:
			done <- e.Send(addr, auth)
		}
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(m.timeout):
		err = errors.New("timeout")
	}
	if err != nil {
		m.log.Warn("email send failed",
			zap.String("addr", addr), zap.String("to", to),
			zap.String("security", string(s.Security)), zap.Error(err))
		return fmt.Errorf("%w: %s to %s: %v", ErrSMTP, addr, to, err)
	}
	m.log.Debug("email sent", zap.String("to", to), zap.Duration("elapsed", time.Since(start)))
	return nil
}
