package services

import (
	"context"
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/skip2/go-qrcode"
)

const (
	calendarProductID = "-//youthtracker//activities//EN"
	defaultQRSize     = 256
	maxQRSize         = 1024
)

// Calendar renders an iCalendar invite for the activity. link is added as the
// event URL when set.
func (s *ActivityService) Calendar(ctx context.Context, id, link string) (string, error) {
	activity, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(calendarProductID)

	event := cal.AddEvent(activity.ID + "@youthtracker")
	event.SetCreatedTime(activity.CreatedAt)
	event.SetDtStampTime(activity.UpdatedAt)
	event.SetModifiedAt(activity.UpdatedAt)
	event.SetStartAt(activity.StartsAt)
	event.SetEndAt(activity.EndsAt)
	event.SetSummary(activity.Name)
	if activity.Location != "" {
		event.SetLocation(activity.Location)
	}

	description := activity.Description
	if len(activity.Drivers) > 0 {
		description = strings.TrimSpace(description + "\n\nDrivers: " + strings.Join(activity.Drivers, ", "))
	}
	if description != "" {
		event.SetDescription(description)
	}
	if link = strings.TrimSpace(link); link != "" {
		event.SetURL(link)
	}

	return cal.Serialize(), nil
}

// QRCode renders link as a PNG QR code after checking the activity exists.
func (s *ActivityService) QRCode(ctx context.Context, id, link string, size int) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(link) == "" {
		return nil, newValidationError("link", "is required")
	}
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("activity service: encode qr code: %w", err)
	}
	return png, nil
}
