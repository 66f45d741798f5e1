package notifications

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/subtrackhq/subtrack/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const reminderBodyTemplate = `{{ .Name }} renews on {{ formatDate .PaymentDate }} ({{ .Timezone }}) — {{ title (printf "%s" .BillingCycle) }} plan, {{ .Price }} {{ .Currency }}.`

// Renderer produces the reminder title and body stored on a job payload.
type Renderer struct {
	body *template.Template
}

// NewRenderer creates a renderer with its template parsed.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"formatDate": formatDate,
	}

	tmpl, err := template.New("reminder_body").Funcs(funcMap).Parse(reminderBodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse reminder template: %w", err)
	}

	return &Renderer{body: tmpl}, nil
}

// RenderReminder renders the title and body for a subscription reminder.
func (r *Renderer) RenderReminder(sub *domain.Subscription) (title, body string, err error) {
	title = fmt.Sprintf("Subscription renewal — %s", sub.Name)

	data := struct {
		Name         string
		PaymentDate  time.Time
		Timezone     string
		BillingCycle domain.BillingCycle
		Price        string
		Currency     string
	}{
		Name:         sub.Name,
		PaymentDate:  sub.NextPaymentDate,
		Timezone:     sub.Timezone,
		BillingCycle: sub.BillingCycle,
		Price:        sub.Price.StringFixed(2),
		Currency:     sub.Currency,
	}

	var buf bytes.Buffer
	if err := r.body.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute reminder template: %w", err)
	}

	return title, strings.TrimSpace(buf.String()), nil
}

// MessageText joins a payload into the text handed to a sender, optionally
// appending the service link.
func MessageText(payload JobPayload, serviceURL string) string {
	lines := make([]string, 0, 3)
	if payload.Title != "" {
		lines = append(lines, payload.Title)
	}
	if payload.Body != "" {
		lines = append(lines, payload.Body)
	}
	if serviceURL != "" {
		lines = append(lines, fmt.Sprintf("Link: %s", serviceURL))
	}

	text := strings.TrimSpace(strings.Join(lines, "\n\n"))
	if text == "" {
		return "Subscription reminder"
	}
	return text
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func formatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}
