package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"feedback-collector/backend/internal/session/domain"
)

// sessionDocument is the YAML (or JSON) shape of a session given to create and update.
type sessionDocument struct {
	Title         string               `yaml:"title"`
	Name          string               `yaml:"name"`
	Date          string               `yaml:"date"`
	MultipleDates bool                 `yaml:"multipleDates"`
	Attendance    bool                 `yaml:"attendance"`
	Certificate   bool                 `yaml:"certificate"`
	Questions     []questionDocument   `yaml:"questions"`
	Organisers    []organiserDocument  `yaml:"organisers"`
	Subsessions   []subsessionDocument `yaml:"subsessions"`
}

type questionDocument struct {
	ID       string   `yaml:"id"`
	Text     string   `yaml:"text"`
	Type     string   `yaml:"type"`
	Options  []string `yaml:"options"`
	Required bool     `yaml:"required"`
}

type organiserDocument struct {
	Name          string `yaml:"name"`
	Email         string `yaml:"email"`
	ExistingEmail string `yaml:"existingEmail"`
	IsLead        bool   `yaml:"isLead"`
	CanEdit       bool   `yaml:"canEdit"`
	Notifications bool   `yaml:"notifications"`
}

type subsessionDocument struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Title          string `yaml:"title"`
	OrganiserName  string `yaml:"organiserName"`
	OrganiserEmail string `yaml:"organiserEmail"`
}

// feedbackDocument is the shape of a feedback submission. Answers map question id to value.
type feedbackDocument struct {
	ParentID string            `yaml:"parentId"`
	Attended bool              `yaml:"attended"`
	Answers  map[string]string `yaml:"answers"`
}

func (d sessionDocument) input() domain.SessionInput {
	in := domain.SessionInput{
		Title:         d.Title,
		Name:          d.Name,
		Date:          d.Date,
		MultipleDates: d.MultipleDates,
		Attendance:    d.Attendance,
		Certificate:   d.Certificate,
	}
	for _, q := range d.Questions {
		in.Questions = append(in.Questions, domain.Question{
			ID: q.ID, Text: q.Text, Type: domain.QuestionType(q.Type), Options: q.Options, Required: q.Required,
		})
	}
	for _, o := range d.Organisers {
		in.Organisers = append(in.Organisers, domain.OrganiserInput(o))
	}
	for _, c := range d.Subsessions {
		in.Subsessions = append(in.Subsessions, domain.SubsessionInput(c))
	}
	return in
}

// input sorts answers by question id. parentOverride, when set, replaces the document's parent.
func (d feedbackDocument) input(parentOverride string) domain.FeedbackInput {
	in := domain.FeedbackInput{ParentID: d.ParentID, Attended: d.Attended}
	if parentOverride != "" {
		in.ParentID = parentOverride
	}
	for _, id := range slices.Sorted(maps.Keys(d.Answers)) {
		in.Answers = append(in.Answers, domain.Answer{QuestionID: id, Value: d.Answers[id]})
	}
	return in
}

// readDocument decodes the YAML or JSON document at path into v. "-" reads from stdin.
// Unknown fields are rejected.
func readDocument(path string, stdin io.Reader, v any) error {
	if path == "" {
		return usageError("--file is required")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s is empty", domain.ErrValidation, path)
		}
		return fmt.Errorf("%w: decode %s: %v", domain.ErrValidation, path, err)
	}
	return nil
}
