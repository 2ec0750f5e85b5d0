package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"feedback-collector/backend/internal/email"
	"feedback-collector/backend/internal/session/domain"
)

// templateData is what every email template can draw on.
type templateData struct {
	Name         string
	SessionTitle string
	PIN          string
	Actor        string
	AdminLink    string
	ResultsLink  string
}

type template struct {
	subject func(d templateData) string
	body    func(d templateData) templ.Component
}

var templates = map[domain.EventKind]template{
	domain.EventOrganiserAdded: {
		subject: func(d templateData) string { return "You are an organiser of " + d.SessionTitle },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("You have been added as an organiser of "+d.SessionTitle+"."),
				pinBlock(d.PIN),
				linkBlock(d.AdminLink, "Manage the session"),
			)
		},
	},
	domain.EventOrganiserEdited: {
		subject: func(d templateData) string { return "Your organiser details for " + d.SessionTitle + " changed" },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("Your name or edit rights for "+d.SessionTitle+" were updated. Your PIN is unchanged."),
				linkBlock(d.AdminLink, "Manage the session"),
			)
		},
	},
	domain.EventOrganiserRemoved: {
		subject: func(d templateData) string { return "You are no longer an organiser of " + d.SessionTitle },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("You have been removed from the organisers of "+d.SessionTitle+". Your PIN no longer grants access."),
			)
		},
	},
	domain.EventSubsessionCreated: {
		subject: func(d templateData) string { return "You are the organiser of " + d.SessionTitle },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("A session has been created with you as its organiser: "+d.SessionTitle+"."),
				pinBlock(d.PIN),
				linkBlock(d.AdminLink, "Manage the session"),
			)
		},
	},
	domain.EventSubsessionOrganiserAdded: {
		subject: func(d templateData) string { return "You are the organiser of " + d.SessionTitle },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("You have been added as the organiser of "+d.SessionTitle+"."),
				pinBlock(d.PIN),
				linkBlock(d.AdminLink, "Manage the session"),
			)
		},
	},
	domain.EventSubsessionEdited: {
		subject: func(d templateData) string { return d.SessionTitle + " was updated" },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("The details of "+d.SessionTitle+" were updated. Your PIN is unchanged."),
				linkBlock(d.AdminLink, "Review the session"),
			)
		},
	},
	domain.EventSubsessionRemoved: {
		subject: func(d templateData) string { return d.SessionTitle + " was removed" },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph(d.SessionTitle+" was removed from its parent session and is now closed."),
			)
		},
	},
	domain.EventNonLeadEdited: {
		subject: func(d templateData) string { return d.SessionTitle + " was edited by " + d.Actor },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph(d.Actor+" edited "+d.SessionTitle+"."),
				linkBlock(d.AdminLink, "Review the changes"),
			)
		},
	},
	domain.EventClosureNotice: {
		subject: func(d templateData) string { return d.SessionTitle + " is closed" },
		body: func(d templateData) templ.Component {
			by := ""
			if d.Actor != "" {
				by = " by " + d.Actor
			}
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph(d.SessionTitle+" was closed"+by+". No further feedback will be accepted."),
				linkBlock(d.ResultsLink, "View the results"),
			)
		},
	},
	domain.EventCredentialReset: {
		subject: func(d templateData) string { return "Your PIN for " + d.SessionTitle + " was reset" },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("Your PIN for "+d.SessionTitle+" was reset. The previous PIN no longer works."),
				pinBlock(d.PIN),
			)
		},
	},
	domain.EventFeedbackSubmitted: {
		subject: func(d templateData) string { return "New feedback for " + d.SessionTitle },
		body: func(d templateData) templ.Component {
			return page(d.SessionTitle,
				greeting(d.Name),
				paragraph("New feedback has been submitted for "+d.SessionTitle+"."),
				linkBlock(d.ResultsLink, "View the results"),
			)
		},
	},
}

// Compose renders the email for ev. It fails for event kinds without a template.
func Compose(ctx context.Context, ev domain.Event, baseURL string) (email.Message, error) {
	tpl, ok := templates[ev.Kind]
	if !ok {
		return email.Message{}, fmt.Errorf("notify: no template for event %q", ev.Kind)
	}
	base := strings.TrimRight(baseURL, "/")
	d := templateData{
		Name:         ev.Recipient.Name,
		SessionTitle: ev.SessionTitle,
		PIN:          ev.PIN,
		Actor:        ev.Actor,
		AdminLink:    base + "/sessions/" + ev.SessionID + "/admin",
		ResultsLink:  base + "/sessions/" + ev.SessionID + "/results",
	}
	html, err := render(ctx, tpl.body(d))
	if err != nil {
		return email.Message{}, err
	}
	return email.Message{
		To:      ev.Recipient.Email,
		Subject: tpl.subject(d),
		HTML:    html,
		Tag:     string(ev.Kind),
	}, nil
}

func render(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func page(title string, parts ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>"+
			templ.EscapeString(title)+"</title></head><body>"); err != nil {
			return err
		}
		for _, p := range parts {
			if err := p.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func greeting(name string) templ.Component {
	if name == "" {
		return paragraph("Hello,")
	}
	return paragraph("Hello " + name + ",")
}

func paragraph(text string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<p>"+templ.EscapeString(text)+"</p>")
		return err
	})
}

func pinBlock(pin string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if pin == "" {
			return nil
		}
		_, err := io.WriteString(w, `<p>Your PIN: <strong style="font-family:monospace">`+templ.EscapeString(pin)+`</strong></p>`)
		return err
	})
}

func linkBlock(href, label string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<p><a href="`+templ.EscapeString(href)+`">`+templ.EscapeString(label)+`</a></p>`)
		return err
	})
}
