// Package smtpclient implements the single-shot ESMTP submission used by the
// probe runner: one plaintext connection per message, EHLO, MAIL FROM,
// RCPT TO, DATA, QUIT.
package smtpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"
)

// Config holds endpoint and timing parameters for the submission client
type Config struct {
	Host           string
	Port           int
	Hello          string
	ConnectTimeout time.Duration
	SubmitTimeout  time.Duration
}

// DefaultConfig returns client defaults aimed at a local analysis endpoint
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           2525,
		Hello:          "mailprobe.local",
		ConnectTimeout: 10 * time.Second,
		SubmitTimeout:  30 * time.Second,
	}
}

// Client submits rendered messages to a single configured endpoint. Each
// Submit call opens its own connection and never reuses transport state, so
// one hostile payload cannot poison the session of the next.
type Client struct {
	config Config
	logger *slog.Logger
}

// New creates a submission client for the configured endpoint
func New(config Config) *Client {
	return &Client{
		config: config,
		logger: slog.Default().With("component", "smtp-client"),
	}
}

// Addr returns the endpoint address in host:port form
func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Submit delivers one message: from and to are the envelope sender and sole
// recipient, data is the rendered payload. The sequence succeeds only if the
// endpoint accepts every protocol stage through QUIT; any rejection or
// transport fault is returned wrapped with the stage that failed. The
// connection is torn down on every exit path.
func (c *Client) Submit(ctx context.Context, from, to string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.SubmitTimeout)
	defer cancel()

	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed for %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}

	// Close sends the terminating dot and reads the endpoint's verdict on
	// the message body, so a content-based rejection surfaces here.
	if err := writer.Close(); err != nil {
		return fmt.Errorf("message rejected at end of data: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("QUIT failed: %w", err)
	}

	c.logger.Debug("submission accepted", "from", from, "to", to, "size", len(data))
	return nil
}

// connect dials the endpoint and completes the greeting exchange
func (c *Client) connect(ctx context.Context) (*smtp.Client, error) {
	dialer := &net.Dialer{
		Timeout: c.config.ConnectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.Addr(), err)
	}

	// The submit deadline covers the whole exchange, not just the dial
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.Hello(c.config.Hello); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}

	return client, nil
}

// Submission failure kinds. A rejection means the endpoint answered with a
// protocol error code; a transport failure means the exchange itself broke.
const (
	FailureRejection = "rejection"
	FailureTransport = "transport"
)

// ClassifyFailure labels a Submit error as rejection or transport
func ClassifyFailure(err error) string {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return FailureRejection
	}
	return FailureTransport
}

// RejectionCode extracts the endpoint's reply code from a Submit error,
// if the failure was a protocol rejection
func RejectionCode(err error) (int, bool) {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code, true
	}
	return 0, false
}
