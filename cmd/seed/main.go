// seed creates a demo session with two subsessions and one feedback response for local testing.
// Every run creates a new session; the lead PIN is printed once.
package main

import (
	"context"
	"fmt"
	"log"

	"feedback-collector/backend/internal/cli"
	"feedback-collector/backend/internal/config"
	"feedback-collector/backend/internal/session/domain"
)

func demoSession() domain.SessionInput {
	return domain.SessionInput{
		Title:       "Go in Production",
		Name:        "go-prod",
		Date:        "2026-11-02",
		Certificate: true,
		Attendance:  true,
		Questions: []domain.Question{
			{ID: "pace", Text: "How was the pace?", Type: domain.QuestionRating, Required: true},
			{ID: "again", Text: "Would you attend again?", Type: domain.QuestionChoice, Options: []string{"yes", "no"}},
			{ID: "comments", Text: "Anything else?", Type: domain.QuestionText},
		},
		Organisers: []domain.OrganiserInput{
			{Name: "Dev Lead", Email: "lead@example.com", IsLead: true, CanEdit: true, Notifications: true},
			{Name: "Dev Helper", Email: "helper@example.com"},
		},
		Subsessions: []domain.SubsessionInput{
			{Title: "Profiling", OrganiserName: "Speaker One", OrganiserEmail: "speaker1@example.com"},
			{Title: "Tracing", OrganiserName: "Speaker Two"},
		},
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()
	app, err := cli.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	defer app.Close(ctx)

	created, err := app.Service.Create(ctx, demoSession())
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	for _, f := range created.NotificationFailures {
		log.Printf("seed: notification to %s failed: %s", f.Email, f.Error)
	}

	if _, err := app.Service.SubmitFeedback(ctx, created.ID, domain.FeedbackInput{
		Attended: true,
		Answers: []domain.Answer{
			{QuestionID: "pace", Value: "4"},
			{QuestionID: "again", Value: "yes"},
		},
	}); err != nil {
		log.Fatalf("submit feedback: %v", err)
	}

	s, err := app.Service.Get(ctx, created.ID)
	if err != nil {
		log.Fatalf("get session: %v", err)
	}
	log.Println("Seed completed successfully.")
	fmt.Printf("Session: %s\n", created.ID)
	fmt.Printf("Subsessions: %v\n", s.Subsessions)
	fmt.Printf("Lead login: lead@example.com / %s\n", created.LeadPIN)
}
