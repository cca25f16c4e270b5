// Package email provides the email client for moderator alerts.
package email

import (
	"fmt"

	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending alerts, allowing for mock implementations in tests.
type Service interface {
	SendBanAlert(identity, reason string) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(apiKey, fromEmail, toEmail string) (Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if fromEmail == "" || toEmail == "" {
		return nil, fmt.Errorf("alert from/to addresses are required")
	}

	return &ResendClient{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		toEmail:   toEmail,
	}, nil
}

// SendBanAlert notifies moderators that an identity was banned by the
// decision engine.
func (c *ResendClient) SendBanAlert(identity, reason string) error {
	params := &resend.SendEmailRequest{
		From:    c.fromEmail,
		To:      []string{c.toEmail},
		Subject: fmt.Sprintf("AegisGate: identity %s banned", identity),
		Html: fmt.Sprintf(
			"<p>Identity <strong>%s</strong> was banned by the verification gate.</p><p>Reason: %s</p>",
			identity, reason,
		),
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send ban alert: %w", err)
	}
	return nil
}
