package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/charlesng35/youthtracker/pkg/mail"
)

// EmailChannel delivers through a mail.Mailer (SMTP).
type EmailChannel struct {
	mailer mail.Mailer
	from   string
}

// NewEmailChannel wraps mailer. From may be empty to use the mailer default.
func NewEmailChannel(mailer mail.Mailer, from string) *EmailChannel {
	return &EmailChannel{mailer: mailer, from: strings.TrimSpace(from)}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Accepts(r Recipient) bool {
	return strings.TrimSpace(r.Email) != ""
}

func (c *EmailChannel) Deliver(ctx context.Context, r Recipient, msg Message) error {
	err := c.mailer.Send(ctx, mail.Message{
		From:        c.from,
		To:          []string{r.Email},
		Subject:     msg.Subject,
		Body:        msg.Text,
		HTMLBody:    msg.HTML,
		Attachments: msg.Attachments,
	})
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}
