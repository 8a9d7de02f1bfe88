package notify

import (
	"context"
	"strings"
)

const (
	TemplateLeaveApproved = "leave_approved"
	TemplateLeaveRejected = "leave_rejected"
)

// Notifier delivers a rendered notification to a recipient address. Callers
// treat delivery as best-effort: a returned error is logged, never propagated
// into the state change that triggered it.
type Notifier interface {
	Notify(ctx context.Context, recipient, template string, data map[string]string) error
}

type notifier struct {
	provider Provider
}

// New builds a Notifier backed by the named provider kind (log, noop, fail,
// webhook, or a webhook URL).
func New(kind string) Notifier {
	return &notifier{provider: newProvider(kind)}
}

func (n *notifier) Notify(ctx context.Context, recipient, template string, data map[string]string) error {
	message := renderTemplate(defaultTemplate(template), data)
	if message == "" {
		return nil
	}
	return n.provider.Send(ctx, message, recipient)
}

func defaultTemplate(template string) string {
	switch template {
	case TemplateLeaveApproved:
		return "Hi {name}, your leave from {start_date} to {end_date} has been approved."
	case TemplateLeaveRejected:
		return "Hi {name}, your leave from {start_date} to {end_date} has been rejected. Reason: {reason}"
	default:
		return ""
	}
}

func renderTemplate(template string, data map[string]string) string {
	result := template
	for key, value := range data {
		result = strings.ReplaceAll(result, "{"+key+"}", value)
	}
	return result
}
