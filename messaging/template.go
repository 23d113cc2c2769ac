package messaging

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const DefaultConfirmationTemplate = `Hi {{.ClientName}}! Your appointment on {{.Date}} at {{.Time}} is confirmed.
{{- if .Services}} Services: {{.Services}}{{end}}
{{- if .Duration}} ({{.Duration}}){{end}}
{{- if .Address}} Address: {{.Address}}.{{end}}
{{- if .VideoLink}} Join: {{.VideoLink}}{{end}}`

const DefaultReminderTemplate = `Hi {{.ClientName}}, this is a reminder of your appointment on {{.Date}} at {{.Time}}.
{{- if .Services}} Services: {{.Services}}.{{end}}
{{- if .VideoLink}} Join: {{.VideoLink}}{{end}}
{{- if .ConfirmURL}} Please confirm here: {{.ConfirmURL}}{{end}}`

const DefaultCancellationTemplate = `Hi {{.ClientName}}, your appointment on {{.Date}} at {{.Time}} was cancelled.`

// TemplateData is everything a message template may reference.
type TemplateData struct {
	ClientName string
	Date       string
	Time       string
	Services   string
	Duration   string
	Address    string
	VideoLink  string
	ConfirmURL string
}

// Templates holds the parsed template per message kind.
type Templates struct {
	byKind map[Kind]*template.Template
}

// NewTemplates parses the defaults; overrides replace them per kind.
func NewTemplates(overrides map[Kind]string) (*Templates, error) {
	src := map[Kind]string{
		KindConfirmation: DefaultConfirmationTemplate,
		KindReminder:     DefaultReminderTemplate,
		KindCancellation: DefaultCancellationTemplate,
	}
	for k, v := range overrides {
		src[k] = v
	}

	t := &Templates{byKind: make(map[Kind]*template.Template, len(src))}
	for k, body := range src {
		parsed, err := template.New(string(k)).Option("missingkey=zero").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", k, err)
		}
		t.byKind[k] = parsed
	}
	return t, nil
}

// MustTemplates panics on a bad default; used at wiring time.
func MustTemplates() *Templates {
	t, err := NewTemplates(nil)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Templates) Render(kind Kind, data TemplateData) (string, error) {
	tmpl, ok := t.byKind[kind]
	if !ok {
		return "", fmt.Errorf("no template for %s", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", kind, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
