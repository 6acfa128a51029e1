package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/openquant/pmccscan/pkg/models"
)

// EmailChannel is the long-form secondary channel: multipart SMTP with
// the full JSON artifact attached.
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	// send is swapped in tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates the email channel.
func NewEmailChannel(host string, port int, username, password, from string, to []string) *EmailChannel {
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (e *EmailChannel) Name() string { return "email" }

// Send builds and submits the multipart message. Authentication
// rejections wrap ErrNonRetryable; connection errors stay retryable.
func (e *EmailChannel) Send(ctx context.Context, results *models.ScanResults) error {
	if len(e.to) == 0 {
		return fmt.Errorf("email: no recipients configured: %w", ErrNonRetryable)
	}
	msg, err := e.buildMessage(results)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.send(fmt.Sprintf("%s:%d", e.host, e.port), auth, e.from, e.to, msg)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err = <-done:
	}
	if err != nil {
		if strings.Contains(err.Error(), "535") || strings.Contains(strings.ToLower(err.Error()), "auth") {
			return fmt.Errorf("email auth rejected: %v: %w", err, ErrNonRetryable)
		}
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// buildMessage renders the multipart/mixed payload: alternative
// text+html bodies plus the JSON artifact attachment.
func (e *EmailChannel) buildMessage(results *models.ScanResults) ([]byte, error) {
	artifact, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("email: marshal artifact: %w", err)
	}

	var sb strings.Builder
	mixed := multipart.NewWriter(&sb)

	fmt.Fprintf(&sb, "From: %s\r\n", e.from)
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&sb, "Subject: %s\r\n", FormatEmailSubject(results))
	fmt.Fprintf(&sb, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	// Alternative part: plain text and HTML renderings.
	altHeader := textproto.MIMEHeader{}
	altWriter := multipart.NewWriter(&strings.Builder{})
	altHeader.Set("Content-Type", "multipart/alternative; boundary="+altWriter.Boundary())
	altPart, err := mixed.CreatePart(altHeader)
	if err != nil {
		return nil, err
	}
	alt := multipart.NewWriter(altPart)
	alt.SetBoundary(altWriter.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	tp, err := alt.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(tp, FormatEmailText(results))

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	hp, err := alt.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(hp, FormatEmailHTML(results))
	alt.Close()

	// Attachment: the exact ScanResults JSON.
	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", "application/json")
	attHeader.Set("Content-Transfer-Encoding", "base64")
	attHeader.Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "scan-"+results.ScanID+".json"))
	ap, err := mixed.CreatePart(attHeader)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(ap, base64.StdEncoding.EncodeToString(artifact))

	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
