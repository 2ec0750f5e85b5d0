package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	auditdomain "feedback-collector/backend/internal/audit/domain"
	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
)

type credentialFlags struct {
	Email string
	PIN   string
}

func (c *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Email, "email", "", "organiser email")
	cmd.Flags().StringVar(&c.PIN, "pin", "", "organiser PIN")
}

func (c *credentialFlags) authenticate(ctx context.Context, app *App, id string) (domain.Actor, error) {
	if c.Email == "" || c.PIN == "" {
		return domain.Actor{}, usageError("--email and --pin are required")
	}
	return app.Service.Authenticate(ctx, id, c.Email, c.PIN)
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create --file session.yaml",
		Short: "Create a session and mail every organiser their PIN",
		Long: `Create a session from a YAML or JSON document.

The lead organiser's PIN is printed once; every organiser with an email also
receives their own PIN by mail.

Example:
  feedbackctl create --file workshop.yaml`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc sessionDocument
			if err := readDocument(file, cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				res, err := app.Service.Create(ctx, doc.input())
				if err != nil {
					return nil, err
				}
				return createView{
					ID:                   res.ID,
					LeadPIN:              res.LeadPIN,
					NotificationFailures: failureViews(res.NotificationFailures),
				}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "session document (YAML or JSON, - for stdin)")
	return cmd
}

func newUpdateCommand(opts *RootOptions) *cobra.Command {
	var (
		file  string
		creds credentialFlags
	)
	cmd := &cobra.Command{
		Use:   "update <session-id> --file session.yaml --email <email> --pin <pin>",
		Short: "Replace a session with a new representation",
		Long: `Reconcile a session against a YAML or JSON document.

Organisers are matched by existingEmail, subsessions by id. Organisers and
subsessions missing from the document are removed and notified.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc sessionDocument
			if err := readDocument(file, cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				actor, err := creds.authenticate(ctx, app, args[0])
				if err != nil {
					return nil, err
				}
				res, err := app.Service.Update(ctx, args[0], doc.input(), actor)
				if err != nil {
					return nil, err
				}
				return updateView{
					ID:                   args[0],
					Organisers:           classificationView(res.Organisers),
					Subsessions:          classificationView(res.Subsessions),
					NotificationFailures: failureViews(res.NotificationFailures),
				}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "session document (YAML or JSON, - for stdin)")
	creds.register(cmd)
	return cmd
}

func newCloseCommand(opts *RootOptions) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "close <session-id> --email <email> --pin <pin>",
		Short: "Close a session and its subsessions",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				actor, err := creds.authenticate(ctx, app, args[0])
				if err != nil {
					return nil, err
				}
				res, err := app.Service.Close(ctx, args[0], actor)
				if err != nil {
					return nil, err
				}
				return resultView{ID: args[0], Action: "closed", NotificationFailures: failureViews(res.NotificationFailures)}, nil
			})
		},
	}
	creds.register(cmd)
	return cmd
}

func newResetCredentialCommand(opts *RootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-credential <session-id> --email <email>",
		Short: "Mint a new PIN for an organiser and mail it to them",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return usageError("--email is required")
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				res, err := app.Service.ResetCredential(ctx, args[0], email)
				if err != nil {
					return nil, err
				}
				return resultView{ID: args[0], Action: "credential reset", NotificationFailures: failureViews(res.NotificationFailures)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "organiser email")
	return cmd
}

func newAuthenticateCommand(opts *RootOptions) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "authenticate <session-id> --email <email> --pin <pin>",
		Short: "Check an organiser PIN",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				actor, err := creds.authenticate(ctx, app, args[0])
				if err != nil {
					return nil, err
				}
				return actorView{SessionID: args[0], Email: actor.Email, Name: actor.Name}, nil
			})
		},
	}
	creds.register(cmd)
	return cmd
}

func newSubmitCommand(opts *RootOptions) *cobra.Command {
	var file, parent string
	cmd := &cobra.Command{
		Use:   "submit <session-id> --file feedback.yaml",
		Short: "Record one feedback response",
		Long: `Record one feedback response from a YAML or JSON document.

Feedback for a subsession answers the parent's questions; pass the parent
with --parent or parentId in the document.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc feedbackDocument
			if err := readDocument(file, cmd.InOrStdin(), &doc); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				res, err := app.Service.SubmitFeedback(ctx, args[0], doc.input(parent))
				if err != nil {
					return nil, err
				}
				return feedbackView{
					SessionID:            args[0],
					FeedbackID:           res.FeedbackID,
					NotificationFailures: failureViews(res.NotificationFailures),
				}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "feedback document (YAML or JSON, - for stdin)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent session id when submitting to a subsession")
	return cmd
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show a session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				s, err := app.Service.Get(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return newSessionView(s), nil
			})
		},
	}
}

type auditEntryView struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type auditView struct {
	Entries []auditEntryView `json:"entries"`
}

func newAuditView(entries []*auditdomain.AuditLog) auditView {
	v := auditView{Entries: make([]auditEntryView, len(entries))}
	for i, e := range entries {
		v.Entries[i] = auditEntryView{
			ID: e.ID, Actor: e.Actor, Action: e.Action, Resource: e.Resource,
			Metadata: e.Metadata, CreatedAt: e.CreatedAt,
		}
	}
	return v
}

func (v auditView) String() string {
	var b strings.Builder
	for i, e := range v.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-20s %-10s %s %s", e.CreatedAt.Format(time.RFC3339), e.Action, e.Resource, e.Actor, e.Metadata)
	}
	return b.String()
}

func newAuditCommand(opts *RootOptions) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "audit <session-id>",
		Short: "List audit log entries of a session",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return usageError("--limit must be positive")
			}
			return withApp(cmd, opts, func(ctx context.Context, app *App) (any, error) {
				entries, err := app.Audit.ListBySession(ctx, args[0], limit, offset)
				if err != nil {
					return nil, err
				}
				return newAuditView(entries), nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}

type hashView struct {
	Hash string `json:"hash"`
}

func (v hashView) String() string { return v.Hash }

// newHashPINCommand prints a bcrypt hash for OVERRIDE_PIN_HASH. The PIN is read from stdin so it
// stays out of shell history.
func newHashPINCommand(opts *RootOptions) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-pin",
		Short: "Hash an override PIN read from stdin",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			pin := strings.TrimSpace(line)
			if pin == "" {
				return usageError("no PIN on stdin")
			}
			hash, err := security.NewHasher(cost).Hash([]byte(pin))
			if err != nil {
				return err
			}
			return (&Output{Format: opts.Format, Writer: cmd.OutOrStdout()}).Success(hashView{Hash: hash})
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost (4-31)")
	return cmd
}
