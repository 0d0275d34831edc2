// Package notify turns freshly issued secrets into outbound messages.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/metrics"
)

// Sender is implemented by every notifier driver (smtp, sns, log).
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

type DispatcherDeps struct {
	Sender           Sender
	Product          string
	VerifyEmailURL   string
	PasswordResetURL string
	Timeout          time.Duration
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Dispatcher delivers verification and reset links. Delivery failures are
// logged and counted, never returned: the secret is already persisted and the
// user can ask for a new one.
type Dispatcher struct {
	deps DispatcherDeps
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{deps: deps}
}

func (d *Dispatcher) VerifyEmail(ctx context.Context, a *domain.Account, secret string, ttl time.Duration) {
	d.dispatch(ctx, domain.Notification{
		To:       a.Email,
		Subject:  "Verify your email",
		Template: domain.TemplateVerifyEmail,
		Data:     d.data(a, d.deps.VerifyEmailURL, secret, ttl),
	})
}

func (d *Dispatcher) PasswordReset(ctx context.Context, a *domain.Account, secret string, ttl time.Duration) {
	d.dispatch(ctx, domain.Notification{
		To:       a.Email,
		Subject:  "Password reset request",
		Template: domain.TemplateResetPassword,
		Data:     d.data(a, d.deps.PasswordResetURL, secret, ttl),
	})
}

func (d *Dispatcher) data(a *domain.Account, base, secret string, ttl time.Duration) domain.NotificationData {
	return domain.NotificationData{
		Product:   d.deps.Product,
		Username:  a.Username,
		Link:      strings.TrimRight(base, "/") + "/" + secret,
		ExpiresIn: humanize(ttl),
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, n domain.Notification) {
	// Detached from the request so a client hanging up after the commit
	// does not cancel delivery.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deps.Timeout)
	defer cancel()

	if err := d.deps.Sender.Send(sendCtx, n); err != nil {
		d.deps.Logger.Warn("notification not delivered", "template", n.Template, "err", err)
		d.deps.Metrics.RecordNotificationFailure(n.Template)
		return
	}
	d.deps.Logger.Debug("notification sent", "template", n.Template)
}

func humanize(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	}
	return d.String()
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// LogSender writes notifications to the logger instead of delivering them.
// Meant for local development only since the link carries the secret.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, n domain.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "to", n.To, "template", n.Template, "link", n.Data.Link)
	return nil
}
