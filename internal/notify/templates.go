package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/segyhp/emi-engine/internal/domain"
)

type message struct {
	subject string
	body    string
}

var templateSources = map[domain.NotificationTemplate]struct{ subject, body string }{
	domain.TemplateEMICreated: {
		subject: "Your EMI plan for {{.course_title}} is active",
		body: `Hi {{.name}},

Your installment plan for {{.course_title}} has been set up.
Installment amount: {{.amount}}
Installments remaining: {{.installments_remaining}}
Next installment due: {{.due_date}}
`,
	},
	domain.TemplateEMIReminder: {
		subject: "EMI reminder: {{.course_title}} due in {{.days_left}} day(s)",
		body: `Hi {{.name}},

Your installment of {{.amount}} for {{.course_title}} is due on {{.due_date}} ({{.days_left}} day(s) left).
`,
	},
	domain.TemplateEMIOverdue: {
		subject: "EMI overdue: {{.course_title}}",
		body: `Hi {{.name}},

Your installment of {{.amount}} for {{.course_title}} was due on {{.due_date}} and has not been received.
Please complete the payment to keep access to the course.
`,
	},
	domain.TemplateEMIPaymentReceived: {
		subject: "Payment received for {{.course_title}}",
		body: `Hi {{.name}},

We received your installment of {{.amount}} for {{.course_title}}.
Installments remaining: {{.installments_remaining}}
Next installment due: {{.due_date}}
`,
	},
	domain.TemplateEMICompleted: {
		subject: "EMI plan for {{.course_title}} completed",
		body: `Hi {{.name}},

Your final installment for {{.course_title}} has been received. Your plan is complete.
`,
	},
}

var templates = mustParse()

func mustParse() map[domain.NotificationTemplate]*template.Template {
	parsed := make(map[domain.NotificationTemplate]*template.Template, len(templateSources))
	for name, src := range templateSources {
		t := template.New(string(name))
		template.Must(t.New("subject").Parse(src.subject))
		template.Must(t.New("body").Parse(src.body))
		parsed[name] = t
	}
	return parsed
}

func render(name domain.NotificationTemplate, data map[string]interface{}) (*message, error) {
	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q", name)
	}

	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := t.ExecuteTemplate(&body, "body", data); err != nil {
		return nil, fmt.Errorf("render %s body: %w", name, err)
	}

	return &message{subject: subject.String(), body: body.String()}, nil
}
