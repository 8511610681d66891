package smtp

import (
	"crypto/tls"
	"log/slog"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
)

// Capture sink limits
const (
	DefaultMaxMessageSize = 10 * 1024 * 1024 // 10 MB
	DefaultMaxRecipients  = 10
	DefaultReadTimeout    = 60 * time.Second
	DefaultWriteTimeout   = 60 * time.Second
	DefaultMaxLineLength  = 2000
	DefaultCaptureBuffer  = 500
)

// CapturedMessage is a notification accepted by the capture sink
type CapturedMessage struct {
	From       string
	Recipients []string
	Parsed     *ParsedEmail
	Raw        []byte
	ReceivedAt time.Time
}

// CaptureBackend implements the go-smtp Backend interface and keeps the most
// recent messages in memory instead of relaying them.
type CaptureBackend struct {
	mu       sync.Mutex
	messages []CapturedMessage
	limit    int
	onData   func(CapturedMessage)
	logger   *slog.Logger
}

// CaptureConfig holds configuration for the capture backend
type CaptureConfig struct {
	// Limit caps the number of retained messages; the oldest are dropped first.
	Limit  int
	OnData func(CapturedMessage)
	Logger *slog.Logger
}

// NewCaptureBackend creates a new capture backend
func NewCaptureBackend(cfg *CaptureConfig) *CaptureBackend {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultCaptureBuffer
	}
	return &CaptureBackend{
		limit:  limit,
		onData: cfg.OnData,
		logger: cfg.Logger,
	}
}

// NewSession creates a new SMTP session
func (b *CaptureBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	if b.logger != nil {
		b.logger.Debug("new SMTP capture connection", slog.String("remote_addr", c.Conn().RemoteAddr().String()))
	}
	return NewCaptureSession(b), nil
}

func (b *CaptureBackend) store(msg CapturedMessage) {
	b.mu.Lock()
	b.messages = append(b.messages, msg)
	if over := len(b.messages) - b.limit; over > 0 {
		b.messages = append([]CapturedMessage(nil), b.messages[over:]...)
	}
	b.mu.Unlock()

	if b.onData != nil {
		b.onData(msg)
	}
}

// Messages returns a copy of the captured messages, oldest first
func (b *CaptureBackend) Messages() []CapturedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CapturedMessage(nil), b.messages...)
}

// MessagesTo returns the captured messages addressed to recipient
func (b *CaptureBackend) MessagesTo(recipient string) []CapturedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []CapturedMessage
	for _, m := range b.messages {
		for _, r := range m.Recipients {
			if r == recipient {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Reset drops every captured message
func (b *CaptureBackend) Reset() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

// ServerConfig holds security configuration for the capture SMTP server
type ServerConfig struct {
	Addr           string
	Domain         string
	MaxMessageSize int64
	MaxRecipients  int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowInsecure  bool
	TLSConfig      *tls.Config
}

// NewCaptureServer creates an SMTP server for the capture backend with bounded limits
func NewCaptureServer(backend *CaptureBackend, cfg *ServerConfig) *smtp.Server {
	s := smtp.NewServer(backend)

	s.Addr = cfg.Addr
	s.Domain = cfg.Domain
	if s.Domain == "" {
		s.Domain = "localhost"
	}

	if cfg.MaxMessageSize > 0 {
		s.MaxMessageBytes = cfg.MaxMessageSize
	} else {
		s.MaxMessageBytes = DefaultMaxMessageSize
	}

	if cfg.MaxRecipients > 0 {
		s.MaxRecipients = cfg.MaxRecipients
	} else {
		s.MaxRecipients = DefaultMaxRecipients
	}

	if cfg.ReadTimeout > 0 {
		s.ReadTimeout = cfg.ReadTimeout
	} else {
		s.ReadTimeout = DefaultReadTimeout
	}

	if cfg.WriteTimeout > 0 {
		s.WriteTimeout = cfg.WriteTimeout
	} else {
		s.WriteTimeout = DefaultWriteTimeout
	}

	s.AllowInsecureAuth = cfg.AllowInsecure

	if cfg.TLSConfig != nil {
		s.TLSConfig = cfg.TLSConfig
	}

	s.MaxLineLength = DefaultMaxLineLength

	return s
}
