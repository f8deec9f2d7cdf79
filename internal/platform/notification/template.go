package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template defines a reusable notification. Subject doubles as the push
// title; Push is the short push body.
type Template struct {
	ID      string
	Subject string
	Body    string
	Push    string
}

// Rendered is a template with its placeholders filled in.
type Rendered struct {
	Subject string
	Body    string
	Push    string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAppointmentRequested,
			Subject: "New appointment request from {{patient_name}}",
			Body:    "Dear Dr. {{doctor_name}},\n\n{{patient_name}} has requested an {{type}} appointment on {{date}}.\n\nSymptoms: {{symptoms}}\n\nPlease accept or decline the request in MindMate.",
			Push:    "{{patient_name}} requested an appointment on {{date}}",
		},
		{
			ID:      TemplateAppointmentAccepted,
			Subject: "Your appointment with Dr. {{doctor_name}} is confirmed",
			Body:    "Dear {{patient_name}},\n\nDr. {{doctor_name}} accepted your appointment on {{date}}.\n\n{{notes}}",
			Push:    "Dr. {{doctor_name}} accepted your appointment on {{date}}",
		},
		{
			ID:      TemplateAppointmentRejected,
			Subject: "Your appointment request was declined",
			Body:    "Dear {{patient_name}},\n\nDr. {{doctor_name}} is unable to take your appointment on {{date}}.\n\n{{notes}}\n\nYou can request another time or choose a different doctor.",
			Push:    "Dr. {{doctor_name}} declined your appointment on {{date}}",
		},
		{
			ID:      TemplateAppointmentCancelled,
			Subject: "Appointment on {{date}} cancelled",
			Body:    "Dear {{recipient_name}},\n\nThe appointment on {{date}} was cancelled by {{actor_name}}.\n\n{{notes}}",
			Push:    "Appointment on {{date}} was cancelled",
		},
		{
			ID:      TemplateAppointmentCompleted,
			Subject: "Visit summary from Dr. {{doctor_name}}",
			Body:    "Dear {{patient_name}},\n\nYour appointment on {{date}} is complete. Your visit summary is available in MindMate.\n\n{{notes}}",
			Push:    "Your visit with Dr. {{doctor_name}} is complete",
		},
		{
			ID:      TemplateAppointmentReminder,
			Subject: "Appointment reminder for {{patient_name}}",
			Body:    "Dear {{patient_name}},\n\nThis is a reminder of your {{type}} appointment on {{date}} with Dr. {{doctor_name}}.",
			Push:    "Reminder: appointment with Dr. {{doctor_name}} at {{date}}",
		},
		{
			ID:      TemplateNewMessage,
			Subject: "New message from {{sender_name}}",
			Body:    "Dear {{recipient_name}},\n\nYou have a new message from {{sender_name}} in MindMate.",
			Push:    "{{sender_name}}: {{preview}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys absent from data render as empty strings.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Rendered, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("template %q not found", templateID)
	}

	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)

	return Rendered{
		Subject: stripPlaceholders(r.Replace(t.Subject)),
		Body:    strings.TrimSpace(stripPlaceholders(r.Replace(t.Body))),
		Push:    stripPlaceholders(r.Replace(t.Push)),
	}, nil
}

func stripPlaceholders(s string) string {
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			return s
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return s
		}
		s = s[:start] + s[start+end+2:]
	}
}
