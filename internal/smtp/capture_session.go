package smtp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
)

// CaptureSession implements the go-smtp Session interface
type CaptureSession struct {
	backend    *CaptureBackend
	from       string
	recipients []string
}

// NewCaptureSession creates a new SMTP session
func NewCaptureSession(backend *CaptureBackend) *CaptureSession {
	return &CaptureSession{
		backend:    backend,
		recipients: make([]string, 0),
	}
}

// Mail handles the MAIL FROM command
func (s *CaptureSession) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	if s.backend.logger != nil {
		s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	}
	return nil
}

// Rcpt handles the RCPT TO command
func (s *CaptureSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	address, err := normalizeAddress(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, address)
	if s.backend.logger != nil {
		s.backend.logger.Debug("RCPT TO", slog.String("to", address))
	}
	return nil
}

// Data handles the DATA command - receives the email content
func (s *CaptureSession) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary error",
		}
	}

	parsed, err := ParseEmail(bytes.NewReader(raw))
	if err != nil {
		if s.backend.logger != nil {
			s.backend.logger.Error("failed to parse email", slog.Any("error", err))
		}
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Failed to parse email",
		}
	}

	if parsed.SenderEmail == "" {
		parsed.SenderEmail = s.from
	}

	s.backend.store(CapturedMessage{
		From:       s.from,
		Recipients: append([]string(nil), s.recipients...),
		Parsed:     parsed,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
	})

	if s.backend.logger != nil {
		s.backend.logger.Info("notification captured",
			slog.String("from", s.from),
			slog.Int("recipients", len(s.recipients)),
			slog.String("subject", parsed.Subject))
	}

	return nil
}

// Reset resets the session state
func (s *CaptureSession) Reset() {
	s.from = ""
	s.recipients = make([]string, 0)
}

// Logout handles the end of the session
func (s *CaptureSession) Logout() error {
	return nil
}

// normalizeAddress strips angle brackets and lowercases an address
func normalizeAddress(address string) (string, error) {
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.TrimSpace(address)

	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid email address: %s", address)
	}

	return strings.ToLower(address), nil
}
