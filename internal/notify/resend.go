package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

type resendSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendChannel delivers email through the Resend HTTP API.
type ResendChannel struct {
	emails resendSender
	from   string
}

// NewResendChannel builds a channel from an API key and sender address.
func NewResendChannel(apiKey, from string) (*ResendChannel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("resend: api key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("resend: from address is required")
	}
	client := resend.NewClient(apiKey)
	return &ResendChannel{emails: client.Emails, from: from}, nil
}

func (c *ResendChannel) Name() string { return "email" }

func (c *ResendChannel) Accepts(r Recipient) bool {
	return strings.TrimSpace(r.Email) != ""
}

func (c *ResendChannel) Deliver(ctx context.Context, r Recipient, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{r.Email},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}
	for _, att := range msg.Attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Content:     att.Content,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}

	if _, err := c.emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
