// Package message renders catalogue test cases into wire-format email payloads
package message

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"github.com/busybox42/mailprobe/internal/catalogue"
)

// MailerName is the X-Mailer identity stamped on every rendered message
const MailerName = "mailprobe"

// Render serializes a test case into the RFC 5322 text submitted at the DATA
// stage: a multipart/mixed message carrying a single text/plain part. From,
// To, Subject and the body are copied verbatim; the renderer must never
// escape or rewrite threat-simulation content. Tracking headers (Message-ID,
// Date, X-Mailer) are generated fresh per call so repeated submissions of the
// same case stay distinguishable on the receiving side.
func Render(tc catalogue.TestCase, hostname string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", tc.From)
	fmt.Fprintf(&buf, "To: %s\r\n", tc.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", tc.Subject)
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), hostname)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "X-Mailer: %s\r\n", MailerName)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	writer := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	bodyHeader := make(textproto.MIMEHeader)
	bodyHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	part, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	part.Write([]byte(tc.Body))

	writer.Close()
	return buf.Bytes(), nil
}
