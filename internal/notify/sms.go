package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// smsMaxLength keeps texts within a few concatenated segments.
const smsMaxLength = 480

type twilioSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSChannel delivers text messages through Twilio.
type SMSChannel struct {
	api  twilioSender
	from string
}

// NewSMSChannel builds a Twilio backed channel.
func NewSMSChannel(accountSID, authToken, from string) (*SMSChannel, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, errors.New("sms: twilio credentials are required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("sms: from number is required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &SMSChannel{api: client.Api, from: from}, nil
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Accepts(r Recipient) bool {
	return NormalizePhone(r.Phone) != ""
}

func (c *SMSChannel) Deliver(ctx context.Context, r Recipient, msg Message) error {
	body := msg.SMS
	if body == "" {
		body = msg.Text
	}
	if len(body) > smsMaxLength {
		body = body[:smsMaxLength]
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(NormalizePhone(r.Phone))
	params.SetFrom(c.from)
	params.SetBody(body)

	// The Twilio client has no context support, so the call is raced against ctx.
	done := make(chan error, 1)
	go func() {
		_, err := c.api.CreateMessage(params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("sms: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sms: %w", ctx.Err())
	}
}

// NormalizePhone strips formatting from a phone number and assumes a North
// American number when ten digits are given without a country code.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) < 10:
		return ""
	case strings.HasPrefix(raw, "+"):
		return "+" + d
	case len(d) == 10:
		return "+1" + d
	default:
		return "+" + d
	}
}
