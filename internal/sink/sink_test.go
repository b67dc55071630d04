package sink

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busybox42/mailprobe/internal/catalogue"
	"github.com/busybox42/mailprobe/internal/message"
	"github.com/busybox42/mailprobe/internal/smtpclient"
)

func startSink(t *testing.T, cfg Config) (*Sink, smtpclient.Config) {
	t.Helper()

	s := New(cfg)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = s.Serve(listener) }()
	t.Cleanup(func() { _ = s.Close() })

	port := listener.Addr().(*net.TCPAddr).Port
	return s, smtpclient.Config{
		Host:           "127.0.0.1",
		Port:           port,
		Hello:          "probe.local",
		ConnectTimeout: 2 * time.Second,
		SubmitTimeout:  5 * time.Second,
	}
}

func renderCase(t *testing.T, tc catalogue.TestCase) []byte {
	t.Helper()

	payload, err := message.Render(tc, "probe.local")
	require.NoError(t, err)
	return payload
}

// capturedBody extracts the text/plain part from a captured envelope
func capturedBody(t *testing.T, data []byte) string {
	t.Helper()

	msg, err := mail.ReadMessage(bytes.NewReader(data))
	require.NoError(t, err)

	_, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)

	part, err := multipart.NewReader(msg.Body, params["boundary"]).NextPart()
	require.NoError(t, err)

	content, err := io.ReadAll(part)
	require.NoError(t, err)
	return string(content)
}

func TestSinkCapturesSubmission(t *testing.T) {
	s, clientCfg := startSink(t, DefaultConfig())
	client := smtpclient.New(clientCfg)

	tc := catalogue.Builtin()[2]
	require.NoError(t, client.Submit(context.Background(), tc.From, tc.To, renderCase(t, tc)))

	envelopes := s.Envelopes()
	require.Len(t, envelopes, 1)

	env := envelopes[0]
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, tc.From, env.From)
	assert.Equal(t, []string{tc.To}, env.To)
	assert.NotEmpty(t, env.RemoteAddr)
	assert.WithinDuration(t, time.Now(), env.ReceivedAt, time.Minute)

	msg, err := mail.ReadMessage(bytes.NewReader(env.Data))
	require.NoError(t, err)
	assert.Equal(t, tc.Subject, msg.Header.Get("Subject"))
	assert.Equal(t, tc.From, msg.Header.Get("From"))

	assert.Equal(t, tc.Body, capturedBody(t, env.Data),
		"captured body must match the catalogue body byte for byte")
}

func TestSinkRejectFromRule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RejectFrom = "bank-fake.com"
	s, clientCfg := startSink(t, cfg)
	client := smtpclient.New(clientCfg)

	phishing := catalogue.Builtin()[2]
	err := client.Submit(context.Background(), phishing.From, phishing.To, renderCase(t, phishing))
	require.Error(t, err)

	assert.Contains(t, err.Error(), "MAIL FROM failed")
	assert.Contains(t, err.Error(), "sink policy")
	assert.Equal(t, smtpclient.FailureRejection, smtpclient.ClassifyFailure(err))

	code, ok := smtpclient.RejectionCode(err)
	require.True(t, ok)
	assert.Equal(t, 554, code)

	assert.Empty(t, s.Envelopes(), "rejected submissions must not be stored")

	// Senders outside the rule still get through
	benign := catalogue.Builtin()[0]
	require.NoError(t, client.Submit(context.Background(), benign.From, benign.To, renderCase(t, benign)))
	assert.Len(t, s.Envelopes(), 1)
}

func TestSinkBoundedStorage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStored = 2
	s := New(cfg)

	s.store(Envelope{ID: "1", From: "first@example.com"})
	s.store(Envelope{ID: "2", From: "second@example.com"})
	s.store(Envelope{ID: "3", From: "third@example.com"})

	envelopes := s.Envelopes()
	require.Len(t, envelopes, 2)
	assert.Equal(t, "second@example.com", envelopes[0].From, "oldest envelope should be evicted first")
	assert.Equal(t, "third@example.com", envelopes[1].From)
}

func TestSinkReset(t *testing.T) {
	s := New(DefaultConfig())
	s.store(Envelope{ID: "1"})
	require.Len(t, s.Envelopes(), 1)

	s.Reset()
	assert.Empty(t, s.Envelopes())
}

func TestSessionAccumulatesRecipients(t *testing.T) {
	s := New(DefaultConfig())
	sess := &session{sink: s, remote: "127.0.0.1:9999"}

	require.NoError(t, sess.Mail("ceo@company.com", nil))
	require.NoError(t, sess.Rcpt("team@company.com", nil))
	require.NoError(t, sess.Rcpt("board@company.com", nil))
	require.NoError(t, sess.Data(strings.NewReader("Subject: hi\r\n\r\nhello")))

	envelopes := s.Envelopes()
	require.Len(t, envelopes, 1)
	assert.Equal(t, []string{"team@company.com", "board@company.com"}, envelopes[0].To)
}

func TestSessionResetClearsEnvelopeState(t *testing.T) {
	s := New(DefaultConfig())
	sess := &session{sink: s}

	require.NoError(t, sess.Mail("a@example.com", nil))
	require.NoError(t, sess.Rcpt("b@example.com", nil))

	sess.Reset()
	require.NoError(t, sess.Data(strings.NewReader("x")))

	envelopes := s.Envelopes()
	require.Len(t, envelopes, 1)
	assert.Empty(t, envelopes[0].From)
	assert.Empty(t, envelopes[0].To)
}
