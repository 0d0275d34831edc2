package main

import (
	"context"
	"log/slog"

	"github.com/go-auth-nosql/internal/application/notify"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
	"github.com/go-auth-nosql/internal/infrastructure/sns"
	"github.com/samber/oops"
)

func newSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sender, error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		return smtp.NewMailer(cfg), nil
	case config.NotifierSNS:
		publisher, err := sns.NewPublisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return publisher, nil
	case config.NotifierLog:
		return notify.LogSender{Logger: logger}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").Errorf("unknown notifier %q", cfg.Notifier)
}
