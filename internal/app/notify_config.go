package app

import (
	"fmt"
	"strings"

	"github.com/charlesng35/youthtracker/internal/notify"
	"github.com/charlesng35/youthtracker/pkg/mail"
)

// SMTPSettings converts the SMTP configuration into mailer settings.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  strings.EqualFold(c.Provider, "smtp"),
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// Channels builds the enabled delivery channels. Disabled channels are left out.
func (c NotificationsConfig) Channels() ([]notify.Channel, error) {
	var channels []notify.Channel

	switch strings.ToLower(strings.TrimSpace(c.Email.Provider)) {
	case "smtp":
		mailer, err := mail.NewSMTPMailer(c.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("notifications: smtp: %w", err)
		}
		channels = append(channels, notify.NewEmailChannel(mailer, c.Email.From))
	case "resend":
		ch, err := notify.NewResendChannel(c.Email.Resend.APIKey, c.Email.From)
		if err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
		channels = append(channels, ch)
	}

	if c.SMS.Enabled {
		ch, err := notify.NewSMSChannel(c.SMS.AccountSID, c.SMS.AuthToken, c.SMS.From)
		if err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
		channels = append(channels, ch)
	}

	return channels, nil
}

// Dispatcher builds the notification dispatcher for the configured channels.
func (c NotificationsConfig) Dispatcher() (*notify.Dispatcher, error) {
	channels, err := c.Channels()
	if err != nil {
		return nil, err
	}
	return notify.NewDispatcher(channels, notify.WithTimeout(c.Timeout)), nil
}
