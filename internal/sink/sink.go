// Package sink implements a local ESMTP capture endpoint. It stands in for
// the analysis service during development and failure-path testing: every
// accepted submission is recorded, and a configurable sender rule answers
// with a rejection so the harness's failure handling can be exercised.
package sink

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// Envelope is one captured submission
type Envelope struct {
	ID         string
	From       string
	To         []string
	Data       []byte
	RemoteAddr string
	ReceivedAt time.Time
}

// Config holds the capture server parameters
type Config struct {
	Listen          string
	Domain          string
	MaxMessageBytes int64
	MaxRecipients   int
	MaxStored       int
	RejectFrom      string // substring match on MAIL FROM; matches get a 554
}

// DefaultConfig returns capture server defaults
func DefaultConfig() Config {
	return Config{
		Listen:          ":2525",
		Domain:          "sink.local",
		MaxMessageBytes: 10 * 1024 * 1024,
		MaxRecipients:   10,
		MaxStored:       1000,
	}
}

// Sink is the capture server. Stored envelopes are bounded at MaxStored;
// when full, the oldest envelope is dropped to admit a new one.
type Sink struct {
	config Config
	server *smtp.Server
	logger *slog.Logger

	mu        sync.Mutex
	envelopes []Envelope
}

// New creates a capture server from config
func New(config Config) *Sink {
	s := &Sink{
		config: config,
		logger: slog.Default().With("component", "sink"),
	}

	server := smtp.NewServer(&backend{sink: s})
	server.Addr = config.Listen
	server.Domain = config.Domain
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = config.MaxMessageBytes
	server.MaxRecipients = config.MaxRecipients
	s.server = server

	return s
}

// ListenAndServe binds the configured address and serves until Close
func (s *Sink) ListenAndServe() error {
	s.logger.Info("capture sink listening", "addr", s.config.Listen, "domain", s.config.Domain)
	return s.server.ListenAndServe()
}

// Serve accepts connections on l until Close. Callers that need an
// ephemeral port bind the listener themselves and pass it in.
func (s *Sink) Serve(l net.Listener) error {
	return s.server.Serve(l)
}

// Close stops the server and drops active connections
func (s *Sink) Close() error {
	return s.server.Close()
}

// Envelopes returns a copy of the captured envelopes in arrival order
func (s *Sink) Envelopes() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.envelopes...)
}

// Reset discards all captured envelopes
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = nil
}

// store appends an envelope, evicting the oldest when the bound is reached
func (s *Sink) store(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.MaxStored > 0 && len(s.envelopes) >= s.config.MaxStored {
		s.envelopes = s.envelopes[1:]
	}
	s.envelopes = append(s.envelopes, env)
}

// backend hands each connection its own session
type backend struct {
	sink *Sink
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{
		sink:   b.sink,
		remote: c.Conn().RemoteAddr().String(),
	}, nil
}

// session accumulates one envelope across the MAIL, RCPT and DATA stages
type session struct {
	sink   *Sink
	remote string
	from   string
	to     []string
}

func (s *session) Mail(from string, opts *smtp.MailOptions) error {
	if rule := s.sink.config.RejectFrom; rule != "" && strings.Contains(from, rule) {
		s.sink.logger.Info("sender rejected by rule", "from", from, "rule", rule)
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("sender %s rejected by sink policy", from),
		}
	}

	s.from = from
	return nil
}

func (s *session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	env := Envelope{
		ID:         uuid.New().String(),
		From:       s.from,
		To:         append([]string(nil), s.to...),
		Data:       data,
		RemoteAddr: s.remote,
		ReceivedAt: time.Now(),
	}
	s.sink.store(env)

	s.sink.logger.Info("message captured",
		"id", env.ID,
		"from", env.From,
		"to", env.To,
		"size", len(env.Data))
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}
