package templates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"sustainflow-service/internal/domain/entity"
)

// NotificationData is the view model passed to every template
type NotificationData struct {
	RecipientName string
	PickupID      string
	WasteType     string
	ItemType      string
	QuantityKg    float64
	Payload       map[string]interface{}
}

type eventTemplate struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

const htmlLayout = `<html><body style="font-family:sans-serif">
<p>Hello {{.RecipientName}},</p>
<p>%s</p>
<p style="color:#666">Pickup {{.PickupID}} &middot; {{.WasteType}} / {{.ItemType}} &middot; {{printf "%%.1f" .QuantityKg}} kg</p>
<p>SustainFlow</p>
</body></html>`

const textLayout = `Hello {{.RecipientName}},

%s

Pickup {{.PickupID}} - {{.WasteType}} / {{.ItemType}} - {{printf "%%.1f" .QuantityKg}} kg
SustainFlow`

var bodies = map[entity.EventType]struct {
	subject string
	line    string
}{
	entity.EventPickupCreated: {
		"New pickup request",
		`A donor has requested a pickup from you. Please propose pickup dates.`,
	},
	entity.EventDatesProposed: {
		"Pickup dates proposed",
		`The receiver proposed {{index .Payload "dateCount"}} date(s) for your pickup. Please confirm one.`,
	},
	entity.EventDateConfirmed: {
		"Pickup date confirmed",
		`The donor confirmed the pickup for {{index .Payload "date"}} ({{index .Payload "timeSlot"}}).`,
	},
	entity.EventQRRequested: {
		"QR code requested",
		`The other party requested the QR verification step for this pickup.`,
	},
	entity.EventQRAccepted: {
		"QR request accepted",
		`The QR verification request was accepted. The donor can now generate the code.`,
	},
	entity.EventPickupCompleted: {
		"Pickup completed",
		`Your pickup has been completed. You earned {{index .Payload "bonusPoints"}} bonus point(s). Thank you!`,
	},
	entity.EventPickupCancelled: {
		"Pickup cancelled",
		`This pickup has been cancelled.`,
	},
}

var registry = buildRegistry()

func buildRegistry() map[entity.EventType]eventTemplate {
	out := make(map[entity.EventType]eventTemplate, len(bodies))
	for event, b := range bodies {
		out[event] = eventTemplate{
			subject: b.subject,
			text:    template.Must(template.New(string(event)).Parse(fmt.Sprintf(textLayout, b.line))),
			html:    htmltemplate.Must(htmltemplate.New(string(event)).Parse(fmt.Sprintf(htmlLayout, b.line))),
		}
	}
	return out
}

// Supports reports whether a template exists for event
func Supports(event entity.EventType) bool {
	_, ok := registry[event]
	return ok
}

// Render produces the subject, text and HTML bodies for an event
func Render(event entity.EventType, data NotificationData) (*entity.Message, error) {
	tpl, ok := registry[event]
	if !ok {
		return nil, fmt.Errorf("no template for event %q", event)
	}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text for %s: %w", event, err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html for %s: %w", event, err)
	}

	return &entity.Message{
		Subject:  "SustainFlow: " + tpl.subject,
		Text:     text.String(),
		HTMLBody: html.String(),
	}, nil
}
