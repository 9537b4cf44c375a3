// SPDX-License-Identifier: MIT

package action

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/zebatus/sxvrs-go/internal/config"
)

// Mailer sends the "mail" action's multipart (text + html + inline image)
// notification over an authenticated SMTP-over-TLS endpoint,
// mirroring ActionManager.send_mail's smtplib.SMTP_SSL usage.
type Mailer struct{}

// NewMailer constructs a Mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

// Send builds and delivers the notification for one camera/frame/object set.
func (m *Mailer) Send(cfg config.MailConfig, cameraName, framePath string, objects []Object) error {
	if cfg.SMTPHost == "" || cfg.From == "" || cfg.To == "" {
		return fmt.Errorf("mail: smtp_host, from, and to must all be configured")
	}

	msg, err := buildMessage(cfg, cameraName, framePath, objects)
	if err != nil {
		return fmt.Errorf("mail: build message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("mail: tls dial %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.SMTPHost)
	if err != nil {
		return fmt.Errorf("mail: smtp client: %w", err)
	}
	defer client.Quit()

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := client.Rcpt(cfg.To); err != nil {
		return fmt.Errorf("mail: RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("mail: write body: %w", err)
	}
	return w.Close()
}

// buildMessage assembles a multipart/mixed message with a plain-text part,
// an HTML part listing the detections, and the frame attached inline.
func buildMessage(cfg config.MailConfig, cameraName, framePath string, objects []Object) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "Subject: %s motion detected on %s\r\n", cameraName, cameraName)
	fmt.Fprintf(&buf, "From: %s\r\n", cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", cfg.To)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	textPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(textPart, "%s detected %d object(s):\n", cameraName, len(objects))
	for _, o := range objects {
		fmt.Fprintf(textPart, "- %s (%.1f%%)\n", o.Detection.Class, o.Detection.Score)
	}

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(htmlPart, "<html><body><h3>%s</h3><ul>", cameraName)
	for _, o := range objects {
		fmt.Fprintf(htmlPart, "<li>%s (%.1f%%)</li>", o.Detection.Class, o.Detection.Score)
	}
	fmt.Fprintf(htmlPart, "</ul><img src=\"cid:frame\"/></body></html>")

	if data, err := os.ReadFile(framePath); err == nil {
		imgHeader := textproto.MIMEHeader{
			"Content-Type":              {"image/jpeg"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-ID":                {"<frame>"},
			"Content-Disposition":       {fmt.Sprintf("inline; filename=%q", filepath.Base(framePath))},
		}
		imgPart, err := w.CreatePart(imgHeader)
		if err != nil {
			return nil, err
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		imgPart.Write([]byte(encoded))
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
