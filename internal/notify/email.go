package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/resend/resend-go/v2"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// Email is an outbound message.
type Email struct {
	To      []string
	Subject string
	HTML    string
}

// Sender delivers email through an external provider.
type Sender interface {
	Send(ctx context.Context, msg Email) error
}

// ResendSender sends email via the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a ResendSender for the given API key and from address.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Email) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}

// Raw HTML in the markdown source is escaped because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

var subjects = map[Kind]string{
	KindConfirmed:    "You're registered: %s",
	KindWaitlisted:   "You're on the waiting list: %s",
	KindPromoted:     "A spot opened up: %s",
	KindUnregistered: "Registration cancelled: %s",
	KindRejected:     "Registration not accepted: %s",
}

var bodies = template.Must(template.New("body").Parse(`
{{- define "confirmed" -}}
Your registration for **{{.ActivityName}}** is confirmed for {{.PartySize}} {{if eq .PartySize 1}}person{{else}}people{{end}}.
{{- end -}}
{{- define "waitlisted" -}}
**{{.ActivityName}}** is full, so your party of {{.PartySize}} has been added to the waiting list.
We'll let you know as soon as a spot opens up.
{{- end -}}
{{- define "promoted" -}}
Good news: a spot opened up for **{{.ActivityName}}** and your party of {{.PartySize}} is now confirmed.
{{- end -}}
{{- define "unregistered" -}}
You are no longer registered for **{{.ActivityName}}**.
{{- end -}}
{{- define "rejected" -}}
We couldn't process your registration for **{{.ActivityName}}**: {{if .Detail}}{{.Detail}}{{else}}{{.Reason}}{{end}}.
{{- end -}}
`))

// EmailNotifier emails registrants whose id is an email address.
// Other registrant ids are skipped.
type EmailNotifier struct {
	sender Sender
	logger *slog.Logger
}

// NewEmailNotifier constructs an EmailNotifier.
func NewEmailNotifier(sender Sender, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{sender: sender, logger: logger}
}

// Notify implements Notifier.
func (e *EmailNotifier) Notify(ctx context.Context, n Notification) {
	if !strings.Contains(n.RegistrantID, "@") {
		return
	}
	msg, err := Render(n)
	if err != nil {
		e.logger.Error("render notification email", "kind", n.Kind, "error", err)
		return
	}
	msg.To = []string{n.RegistrantID}
	if err := e.sender.Send(ctx, msg); err != nil {
		e.logger.Error("send notification email",
			"kind", n.Kind,
			"registrant_id", n.RegistrantID,
			"activity_id", n.ActivityID,
			"error", err,
		)
	}
}

// Render builds the subject and HTML body for n.
func Render(n Notification) (Email, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return Email{}, fmt.Errorf("no email template for %q", n.Kind)
	}
	name := n.ActivityName
	if name == "" {
		name = n.ActivityID
	}
	data := n
	data.ActivityName = name

	var md bytes.Buffer
	if err := bodies.ExecuteTemplate(&md, string(n.Kind), data); err != nil {
		return Email{}, fmt.Errorf("execute template: %w", err)
	}
	var html bytes.Buffer
	if err := mdRenderer.Convert(md.Bytes(), &html); err != nil {
		return Email{}, fmt.Errorf("render markdown: %w", err)
	}
	return Email{Subject: fmt.Sprintf(subject, name), HTML: html.String()}, nil
}
