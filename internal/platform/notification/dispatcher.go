package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultDeliveryTimeout = 15 * time.Second

// Dispatcher renders messages and fans them out to the configured channels.
// Either sender may be nil, in which case that channel is disabled.
type Dispatcher struct {
	logger    zerolog.Logger
	templates *TemplateEngine
	email     EmailSender
	push      PushSender
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger, templates *TemplateEngine, email EmailSender, push PushSender) *Dispatcher {
	if templates == nil {
		templates = NewTemplateEngine()
	}
	return &Dispatcher{
		logger:    logger.With().Str("component", "notification").Logger(),
		templates: templates,
		email:     email,
		push:      push,
		timeout:   defaultDeliveryTimeout,
	}
}

// Notify delivers msg in the background. Failures are logged, never returned.
func (d *Dispatcher) Notify(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.Deliver(ctx, msg); err != nil {
			d.logger.Warn().Err(err).
				Str("template", msg.Template).
				Str("recipient", msg.Recipient.UserID.String()).
				Msg("notification delivery failed")
		}
	}()
}

// Deliver renders msg and sends it synchronously on every channel the
// recipient has an address for.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	rendered, err := d.templates.Render(msg.Template, msg.Data)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	var errs []error
	if d.email != nil && msg.Recipient.Email != "" {
		if err := d.email.SendEmail(ctx, msg.Recipient.Email, rendered.Subject, rendered.Body); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	if d.push != nil && msg.Recipient.PushToken != "" {
		data := map[string]string{"template": msg.Template}
		for _, k := range []string{"appointment_id", "message_id"} {
			if v, ok := msg.Data[k]; ok {
				data[k] = v
			}
		}
		if err := d.push.SendPush(ctx, msg.Recipient.PushToken, rendered.Subject, rendered.Push, data); err != nil {
			errs = append(errs, fmt.Errorf("push: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every in-flight notification has finished. Used during
// shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
