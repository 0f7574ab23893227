// Package email sends transactional mail through SendGrid.
package email

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Message struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// SendGrid delivers messages from a fixed sender. An empty host means the public API.
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *zap.Logger
}

func NewSendGrid(apiKey, host, fromAddress, fromName string, logger *zap.Logger) *SendGrid {
	req := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	req.Method = "POST"
	return &SendGrid{
		client: &sendgrid.Client{Request: req},
		from:   mail.NewEmail(fromName, fromAddress),
		logger: logger,
	}
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Text, msg.HTML)
	for _, a := range msg.Attachments {
		att := mail.NewAttachment()
		att.SetFilename(a.Filename)
		att.SetType(a.ContentType)
		att.SetDisposition("attachment")
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content))
		m.AddAttachment(att)
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode, resp.Body)
	}
	s.logger.Info("email sent", zap.String("subject", msg.Subject), zap.Int("status", resp.StatusCode))
	return nil
}
