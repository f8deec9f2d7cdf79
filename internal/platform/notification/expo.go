package notification

import (
	"context"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// ExpoSender delivers push notifications through the Expo push service.
type ExpoSender struct {
	client *expo.PushClient
}

func NewExpoSender() *ExpoSender {
	return &ExpoSender{client: expo.NewPushClient(nil)}
}

// ValidatePushToken reports whether token has the ExponentPushToken[...] form.
func ValidatePushToken(token string) error {
	if _, err := expo.NewExponentPushToken(token); err != nil {
		return fmt.Errorf("invalid push token: %w", err)
	}
	return nil
}

func (s *ExpoSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pushToken, err := expo.NewExponentPushToken(token)
	if err != nil {
		return fmt.Errorf("invalid push token: %w", err)
	}

	resp, err := s.client.Publish(&expo.PushMessage{
		To:       []expo.ExponentPushToken{pushToken},
		Title:    title,
		Body:     body,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("publish push: %w", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return fmt.Errorf("push rejected: %w", err)
	}
	return nil
}
