package notify

import (
	"context"

	"github.com/premproperties/portalauth"
	"go.uber.org/zap"
)

// LogNotifier writes codes and links to the log instead of sending mail.
// Never use it where the log is readable by anyone but the developer.
type LogNotifier struct {
	logger *zap.Logger
}

var _ portalauth.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) SendOTP(_ context.Context, notice portalauth.OTPNotice) error {
	n.logger.Warn("otp not mailed (log notifier)",
		zap.String("kind", string(notice.Kind)),
		zap.String("email", notice.Email),
		zap.String("code", notice.Code),
		zap.Time("expires_at", notice.ExpiresAt))
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, notice portalauth.ResetNotice) error {
	n.logger.Warn("reset link not mailed (log notifier)",
		zap.String("kind", string(notice.Kind)),
		zap.String("email", notice.Email),
		zap.String("link", notice.Link),
		zap.Time("expires_at", notice.ExpiresAt))
	return nil
}
