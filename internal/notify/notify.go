// Package notify sends submission confirmations to applicants.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/JonMunkholm/formulations/internal/core"
	"github.com/JonMunkholm/formulations/internal/logging"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// ErrNoRecipient is returned when a record has no personal email.
var ErrNoRecipient = errors.New("record has no recipient address")

// SendGridOptions configures a SendGrid notifier.
type SendGridOptions struct {
	APIKey      string
	FromAddress string
	AppName     string
	Host        string // defaults to the public API
	Timeout     time.Duration
}

// SendGrid delivers confirmations through the SendGrid v3 mail API.
type SendGrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	client     *rest.Client
}

var _ core.Notifier = (*SendGrid)(nil)

// NewSendGrid returns a SendGrid notifier.
func NewSendGrid(opts SendGridOptions) *SendGrid {
	host := opts.Host
	if host == "" {
		host = defaultHost
	}
	return &SendGrid{
		key:        opts.APIKey,
		host:       host,
		from:       sgmail.NewEmail(opts.AppName, opts.FromAddress),
		subjPrefix: "[" + opts.AppName + "] ",
		client:     &rest.Client{HTTPClient: &http.Client{Timeout: opts.Timeout}},
	}
}

// NotifySubmission emails the applicant that their submission was stored.
func (s *SendGrid) NotifySubmission(ctx context.Context, rec core.Record) error {
	if rec.PersonalEmail == "" {
		return ErrNoRecipient
	}

	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.prepare(rec))

	res, err := s.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send confirmation: sendgrid status %d: %s", res.StatusCode, res.Body)
	}

	logging.FromContext(ctx).Info("confirmation sent", "curp", core.MaskCURP(rec.CURP))
	return nil
}

func (s *SendGrid) prepare(rec core.Record) *sgmail.SGMailV3 {
	name := fullName(rec)

	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + "Registro recibido"
	p.AddTos(sgmail.NewEmail(name, rec.PersonalEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)

	text, htmlBody := confirmationBody(name, rec)
	m.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", htmlBody),
	)
	return m
}

func fullName(rec core.Record) string {
	return strings.Join(strings.Fields(rec.FirstName+" "+rec.PaternalSurname+" "+rec.MaternalSurname), " ")
}

func confirmationBody(name string, rec core.Record) (string, string) {
	greeting := "Hola"
	if name != "" {
		greeting += " " + name
	}

	lines := []string{
		greeting + ",",
		"Recibimos tu registro con CURP " + core.MaskCURP(rec.CURP) + ".",
	}
	if rec.PDFURL != "" {
		lines = append(lines, "Documento: "+rec.PDFURL)
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(l))
		b.WriteString("</p>")
	}
	return strings.Join(lines, "\n\n"), b.String()
}

// Log records confirmations in the log instead of sending them. It is used
// when no SendGrid key is configured.
type Log struct{}

var _ core.Notifier = Log{}

func (Log) NotifySubmission(ctx context.Context, rec core.Record) error {
	logging.FromContext(ctx).Info("confirmation not sent, mail disabled",
		"curp", core.MaskCURP(rec.CURP),
		"has_recipient", rec.PersonalEmail != "",
	)
	return nil
}
