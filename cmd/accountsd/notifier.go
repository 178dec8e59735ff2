package main

import (
	"context"

	"github.com/goliatone/go-accounts/core"
	glog "github.com/goliatone/go-logger/glog"
)

// logNotificationSender records onboarding sends without contact values
// until a delivery provider is configured.
type logNotificationSender struct {
	logger glog.Logger
}

func (s logNotificationSender) Send(ctx context.Context, req core.NotificationRequest) error {
	s.logger.WithContext(ctx).Info("onboarding notification queued",
		"template", req.Template,
		"user_id", req.UserID,
		"has_email", req.Email != "",
		"has_phone", req.Phone != "",
	)
	return nil
}

var _ core.NotificationSender = logNotificationSender{}
