package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/pkg/logger"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailService sends notification emails through the Gmail API
type GmailService struct {
	gmailService *gmail.Service
	from         string
	logger       logger.Logger
}

// NewGmailService creates a new Gmail service
func NewGmailService(ctx context.Context, tokenSource oauth2.TokenSource, from string, logger logger.Logger) (*GmailService, error) {
	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &GmailService{
		gmailService: service,
		from:         from,
		logger:       logger,
	}, nil
}

func (s *GmailService) Name() string { return "email" }

// Send delivers msg to the user's email address
func (s *GmailService) Send(ctx context.Context, user *entity.User, msg *entity.Message) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address: %w", user.ID, entity.ErrValidation)
	}

	raw, err := BuildMIME(s.from, user.Email, msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	sent, err := s.gmailService.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent",
		"messageID", sent.Id,
		"to", user.Email,
		"subject", msg.Subject)

	return nil
}

// BuildMIME renders a multipart/alternative RFC 822 message. Addresses are
// parsed and re-rendered so stored values cannot add headers.
func BuildMIME(from, to string, msg *entity.Message) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %v: %w", err, entity.ErrValidation)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %v: %w", err, entity.ErrValidation)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		w, err := writer.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", fromAddr.String())
	fmt.Fprintf(&out, "To: %s\r\n", toAddr.String())
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", writer.Boundary())
	out.Write(body.Bytes())

	return out.Bytes(), nil
}
