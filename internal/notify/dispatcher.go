// Package notify delivers guardian and admin messages over email and SMS.
// Delivery is best effort: each recipient is attempted independently and
// failures are collected rather than aborting the batch.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/youthtracker/pkg/logger"
	"github.com/charlesng35/youthtracker/pkg/mail"
	"github.com/charlesng35/youthtracker/pkg/metrics"
)

// DefaultTimeout bounds a single channel send.
const DefaultTimeout = 10 * time.Second

// ErrNoChannel is reported for a recipient no configured channel can reach.
var ErrNoChannel = errors.New("notify: no channel accepts recipient")

// Recipient is a person reachable by one or more channels.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func (r Recipient) String() string {
	switch {
	case r.Email != "":
		return r.Email
	case r.Phone != "":
		return r.Phone
	default:
		return r.Name
	}
}

// Message is rendered once and delivered to every recipient. SMS carries the
// short text used by the SMS channel; Text is used when SMS is empty.
type Message struct {
	Subject     string
	Text        string
	HTML        string
	SMS         string
	Attachments []mail.Attachment
}

// Channel delivers a message to one recipient.
type Channel interface {
	Name() string
	Accepts(r Recipient) bool
	Deliver(ctx context.Context, r Recipient, msg Message) error
}

// Failure records one undelivered (recipient, channel) pair.
type Failure struct {
	Recipient Recipient `json:"recipient"`
	Channel   string    `json:"channel"`
	Reason    string    `json:"reason"`
	err       error
}

// Report summarises a dispatch.
type Report struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Err combines all failures, or nil when everything was delivered.
func (r Report) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("%s via %s: %w", f.Recipient, f.Channel, f.err))
	}
	return err
}

// Warnings renders failures as human readable strings.
func (r Report) Warnings() []string {
	if len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, fmt.Sprintf("notification to %s via %s failed: %s", f.Recipient, f.Channel, f.Reason))
	}
	return out
}

// Merge folds another report into r.
func (r *Report) Merge(other Report) {
	r.Attempted += other.Attempted
	r.Delivered += other.Delivered
	r.Failures = append(r.Failures, other.Failures...)
}

// Dispatcher fans a message out over its channels.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	log      *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the per send timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher builds a dispatcher over the supplied channels. Nil channels are ignored.
func NewDispatcher(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		timeout: DefaultTimeout,
		log:     logger.WithModule("notify"),
	}
	for _, ch := range channels {
		if ch != nil {
			d.channels = append(d.channels, ch)
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Channels lists the enabled channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Dispatch sends msg to every recipient over every channel that accepts it.
// A recipient counts as delivered when at least one channel succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, msg Message) Report {
	var report Report
	if ctx == nil {
		ctx = context.Background()
	}

	for _, recipient := range recipients {
		report.Attempted++
		delivered := false
		accepted := false

		for _, ch := range d.channels {
			if !ch.Accepts(recipient) {
				continue
			}
			accepted = true

			if err := d.send(ctx, ch, recipient, msg); err != nil {
				metrics.NotificationDeliveries.WithLabelValues(ch.Name(), "failure").Inc()
				d.log.Warn("notification delivery failed",
					zap.String("channel", ch.Name()),
					zap.String("recipient", recipient.String()),
					zap.Error(err),
				)
				report.Failures = append(report.Failures, Failure{
					Recipient: recipient,
					Channel:   ch.Name(),
					Reason:    err.Error(),
					err:       err,
				})
				continue
			}
			metrics.NotificationDeliveries.WithLabelValues(ch.Name(), "success").Inc()
			delivered = true
		}

		if !accepted {
			report.Failures = append(report.Failures, Failure{
				Recipient: recipient,
				Channel:   "none",
				Reason:    ErrNoChannel.Error(),
				err:       ErrNoChannel,
			})
			continue
		}
		if delivered {
			report.Delivered++
		}
	}

	return report
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, recipient Recipient, msg Message) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: channel %s panicked: %v", ch.Name(), r)
		}
	}()

	return ch.Deliver(sendCtx, recipient, msg)
}
