package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/session"
	"go.uber.org/zap"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is "auto" (STARTTLS when offered), "ssl" or "none".
	TLS                string
	InsecureSkipVerify bool
	Brand              string
}

// sender is the part of *mail.Dialer the Mailer needs.
type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Mailer sends portal emails over SMTP. It implements portalauth.Notifier.
type Mailer struct {
	cfg    SMTPConfig
	dialer sender
	logger *zap.Logger
	now    func() time.Time
}

var _ portalauth.Notifier = (*Mailer)(nil)

func NewMailer(cfg SMTPConfig, logger *zap.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}
	if cfg.Brand == "" {
		cfg.Brand = "PREM Properties"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	switch cfg.TLS {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "", "auto":
		// port 465 is implicit TLS; everything else negotiates STARTTLS
		d.SSL = cfg.Port == 465
	default:
		return nil, fmt.Errorf("unknown smtp tls mode %q", cfg.TLS)
	}

	return &Mailer{cfg: cfg, dialer: d, logger: logger.Named("mailer"), now: time.Now}, nil
}

func (m *Mailer) SendOTP(ctx context.Context, n portalauth.OTPNotice) error {
	html, text, err := render(otpHTMLTemplate, otpTextTemplate, otpVars{
		Brand:     m.cfg.Brand,
		Area:      areaName(m.cfg.Brand, n.Kind),
		Code:      n.Code,
		Name:      n.Name,
		ExpiresIn: humanTTL(n.ExpiresAt.Sub(m.now())),
		Year:      m.now().Year(),
	})
	if err != nil {
		return err
	}
	return m.send(ctx, n.Email, "Your Login OTP - "+m.cfg.Brand, html, text)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, n portalauth.ResetNotice) error {
	html, text, err := render(resetHTMLTemplate, resetTextTemplate, resetVars{
		Brand:     m.cfg.Brand,
		Area:      areaName(m.cfg.Brand, n.Kind),
		Link:      n.Link,
		Name:      n.Name,
		ExpiresIn: humanTTL(n.ExpiresAt.Sub(m.now())),
		Year:      m.now().Year(),
	})
	if err != nil {
		return err
	}
	return m.send(ctx, n.Email, "Reset your "+m.cfg.Brand+" password", html, text)
}

// send dials and delivers in the background so ctx can bound the whole SMTP
// exchange. A send abandoned on timeout may still complete; the caller has
// already dropped the pending code by then, so a late success is logged at
// warn level as a message the recipient cannot use.
func (m *Mailer) send(ctx context.Context, to, subject, html, text string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", text)
	msg.AddAlternative("text/html", html)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Error("smtp send failed",
				zap.String("host", m.cfg.Host),
				zap.String("to", to),
				zap.Error(err))
			return fmt.Errorf("smtp send: %w", err)
		}
		m.logger.Info("smtp send ok", zap.String("to", to), zap.String("subject", subject))
		return nil
	case <-ctx.Done():
		m.logger.Error("smtp send abandoned", zap.String("to", to), zap.Error(ctx.Err()))
		go m.watchAbandoned(done, to, subject)
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (m *Mailer) watchAbandoned(done <-chan error, to, subject string) {
	if err := <-done; err != nil {
		m.logger.Debug("abandoned smtp send failed", zap.String("to", to), zap.Error(err))
		return
	}
	m.logger.Warn("abandoned smtp send delivered late; message is stale",
		zap.String("to", to), zap.String("subject", subject))
}

func areaName(brand string, kind session.Kind) string {
	if kind == session.KindAdmin {
		return brand + " Admin Panel"
	}
	return brand + " member portal"
}
