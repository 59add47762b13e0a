package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Fleet {{.EventLabel}}]
Vehicle: {{.Vehicle}} ({{.VehicleID}})
Owner: {{.Owner}}
{{- if .Center }}
Service Center: {{.Center}}
{{- end }}
{{- if .Date }}
Date: {{.Date}} {{.Time}}
{{- end }}
{{- if .ServiceType }}
Service: {{.ServiceType}}
{{- end }}
{{- if .Status }}
Status: {{.Status}}
{{- end }}
{{- if .Score }}
Health Score: {{.Score}} (was {{.Previous}})
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event       string
	EventLabel  string
	VehicleID   string
	Vehicle     string
	Owner       string
	OwnerEmail  string
	OwnerPhone  string
	CenterID    string
	Center      string
	Date        string
	Time        string
	ServiceType string
	Priority    string
	Status      string
	Score       string
	Previous    string
	Band        string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("fleet-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
