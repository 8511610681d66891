package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"github.com/welldanyogia/timecapsule-backend/internal/models"
	"github.com/welldanyogia/timecapsule-backend/internal/storage"
)

// ErrInvalidNotification is returned for notifications missing a recipient or content
var ErrInvalidNotification = errors.New("invalid notification")

// DefaultDialTimeout bounds connection setup when the context has no deadline
const DefaultDialTimeout = 30 * time.Second

// SenderConfig holds the outbound relay settings
type SenderConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	StartTLS  bool
	TLSConfig *tls.Config
	LocalName string
	Archive   storage.Archive
	Logger    *slog.Logger
	Now       func() time.Time
}

// Sender composes notifications as MIME and relays them over SMTP
type Sender struct {
	addr      string
	host      string
	username  string
	password  string
	from      string
	fromName  string
	startTLS  bool
	tlsConfig *tls.Config
	localName string
	archive   storage.Archive
	logger    *slog.Logger
	now       func() time.Time
}

// NewSender creates a Sender from cfg
func NewSender(cfg *SenderConfig) *Sender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	localName := cfg.LocalName
	if localName == "" {
		localName = "localhost"
	}
	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}

	return &Sender{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		username:  cfg.Username,
		password:  cfg.Password,
		from:      cfg.From,
		fromName:  cfg.FromName,
		startTLS:  cfg.StartTLS,
		tlsConfig: tlsConfig,
		localName: localName,
		archive:   cfg.Archive,
		logger:    logger,
		now:       now,
	}
}

// Compose renders n as a multipart/alternative MIME message.
// A Message-ID is generated when n does not carry one.
func (s *Sender) Compose(n *models.Notification) ([]byte, string, error) {
	if n == nil || strings.TrimSpace(n.To) == "" {
		return nil, "", fmt.Errorf("%w: recipient is required", ErrInvalidNotification)
	}
	if n.Text == "" && n.HTML == "" {
		return nil, "", fmt.Errorf("%w: body is required", ErrInvalidNotification)
	}

	messageID := n.MessageID
	if messageID == "" {
		messageID = s.newMessageID()
	}

	builder := enmime.Builder().
		From(s.fromName, s.from).
		To(n.ToName, n.To).
		Subject(n.Subject).
		Date(s.now()).
		Header("Message-ID", messageID)
	if n.Text != "" {
		builder = builder.Text([]byte(n.Text))
	}
	if n.HTML != "" {
		builder = builder.HTML([]byte(n.HTML))
	}

	part, err := builder.Build()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build notification: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to encode notification: %w", err)
	}

	return buf.Bytes(), messageID, nil
}

// Send composes n, archives it when an archive is configured, and relays it.
// The context deadline bounds the whole SMTP conversation.
func (s *Sender) Send(ctx context.Context, n *models.Notification) (*models.SendReceipt, error) {
	raw, messageID, err := s.Compose(n)
	if err != nil {
		return nil, err
	}

	receipt := &models.SendReceipt{MessageID: messageID}

	if s.archive != nil {
		name := strings.Trim(messageID, "<>")
		if at := strings.IndexByte(name, '@'); at > 0 {
			name = name[:at]
		}
		ref, err := s.archive.Save(name+storage.ArchiveExtension, bytes.NewReader(raw))
		if err != nil {
			s.logger.Warn("failed to archive notification",
				slog.String("message_id", messageID),
				slog.Any("error", err))
		} else {
			receipt.ArchiveRef = ref
		}
	}

	if err := s.relay(ctx, n.To, raw); err != nil {
		return receipt, err
	}

	s.logger.Debug("notification relayed",
		slog.String("message_id", messageID),
		slog.String("relay", s.addr))
	return receipt, nil
}

// relay performs one SMTP transaction for a single recipient
func (s *Sender) relay(ctx context.Context, to string, raw []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp relay %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Closing the connection unblocks any in-flight command when ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(s.localName); err != nil {
		return fmt.Errorf("smtp hello: %w", err)
	}

	if s.startTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(s.tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.from, nil); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", slog.Any("error", err))
	}
	return nil
}

func (s *Sender) newMessageID() string {
	domain := "localhost"
	if at := strings.LastIndexByte(s.from, '@'); at >= 0 && at < len(s.from)-1 {
		domain = s.from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domain)
}
