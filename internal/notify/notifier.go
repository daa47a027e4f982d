// Package notify delivers EMI notifications to users.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/segyhp/emi-engine/internal/config"
	"github.com/segyhp/emi-engine/internal/domain"
	customError "github.com/segyhp/emi-engine/pkg/errors"
)

// UserLookup resolves the recipient of a notification
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Notifier sends one templated message to one user
type Notifier interface {
	SendNotification(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error
}

var (
	_ Notifier = (*SendgridNotifier)(nil)
	_ Notifier = (*ConsoleNotifier)(nil)
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendgridNotifier emails notifications through SendGrid
type SendgridNotifier struct {
	client mailClient
	users  UserLookup
	from   *sgmail.Email
	logger *zap.Logger
}

func NewSendgridNotifier(cfg config.NotificationConfig, users UserLookup, logger *zap.Logger) *SendgridNotifier {
	return newSendgridNotifier(sendgrid.NewSendClient(cfg.SendgridAPIKey), cfg, users, logger)
}

func newSendgridNotifier(client mailClient, cfg config.NotificationConfig, users UserLookup, logger *zap.Logger) *SendgridNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridNotifier{
		client: client,
		users:  users,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (n *SendgridNotifier) SendNotification(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error {
	user, err := n.users.GetUser(ctx, userID)
	if err != nil {
		return customError.WrapNotificationDispatchFailed(string(tmpl), err)
	}

	msg, err := render(tmpl, withRecipient(data, user))
	if err != nil {
		return customError.WrapNotificationDispatchFailed(string(tmpl), err)
	}

	res, err := n.client.SendWithContext(ctx, n.prepare(user, msg))
	if err != nil {
		return customError.WrapNotificationDispatchFailed(string(tmpl), err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return customError.WrapNotificationDispatchFailed(string(tmpl),
			fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body))
	}

	n.logger.Debug("notification sent",
		zap.String("user_id", userID),
		zap.String("template", string(tmpl)),
		zap.Int("status", res.StatusCode))

	return nil
}

func (n *SendgridNotifier) prepare(user *domain.User, msg *message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.subject
	p.AddTos(sgmail.NewEmail(user.Name, user.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.body))

	return m
}

// ConsoleNotifier writes rendered notifications to the log
type ConsoleNotifier struct {
	users  UserLookup
	logger *zap.Logger
}

func NewConsoleNotifier(users UserLookup, logger *zap.Logger) *ConsoleNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleNotifier{users: users, logger: logger}
}

func (n *ConsoleNotifier) SendNotification(ctx context.Context, userID string, tmpl domain.NotificationTemplate, data map[string]interface{}) error {
	user := &domain.User{ID: userID}
	if n.users != nil {
		if found, err := n.users.GetUser(ctx, userID); err == nil {
			user = found
		}
	}

	msg, err := render(tmpl, withRecipient(data, user))
	if err != nil {
		return customError.WrapNotificationDispatchFailed(string(tmpl), err)
	}

	n.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("email", user.Email),
		zap.String("template", string(tmpl)),
		zap.String("subject", msg.subject),
		zap.String("body", msg.body))

	return nil
}

// New builds the notifier selected by NOTIFICATION_DRIVER
func New(cfg config.NotificationConfig, users UserLookup, logger *zap.Logger) Notifier {
	if cfg.Driver == "sendgrid" {
		return NewSendgridNotifier(cfg, users, logger)
	}
	return NewConsoleNotifier(users, logger)
}

func withRecipient(data map[string]interface{}, user *domain.User) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	if _, ok := out["name"]; !ok {
		out["name"] = user.Name
	}
	return out
}
